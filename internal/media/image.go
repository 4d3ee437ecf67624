package media

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/timmy/reelsense/internal/domain"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const frameJPEGQuality = 90

// fitFrame reads the dimensions of the image at path and, when its long edge exceeds
// maxEdge, rewrites it as a downscaled JPEG. It returns the final resolution.
func fitFrame(path string, maxEdge int) (domain.Resolution, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Resolution{}, err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("failed to decode image header: %w", err)
	}

	res := domain.Resolution{Width: cfg.Width, Height: cfg.Height}
	if maxEdge <= 0 || (res.Width <= maxEdge && res.Height <= maxEdge) {
		return res, nil
	}

	w, h := scaledSize(res.Width, res.Height, maxEdge)
	if err := downscale(path, w, h); err != nil {
		return domain.Resolution{}, err
	}
	return domain.Resolution{Width: w, Height: h}, nil
}

// scaledSize keeps the aspect ratio while fitting the long edge to maxEdge.
func scaledSize(width, height, maxEdge int) (int, int) {
	if width >= height {
		h := height * maxEdge / width
		if h < 1 {
			h = 1
		}
		return maxEdge, h
	}
	w := width * maxEdge / height
	if w < 1 {
		w = 1
	}
	return w, maxEdge
}

func downscale(path string, width, height int) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	src, _, err := image.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return out.Close()
}
