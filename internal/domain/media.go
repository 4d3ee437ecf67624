package domain

import "fmt"

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String formats the resolution as WxH.
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// VideoFile is a handle to a video on local disk.
type VideoFile struct {
	Path       string     `json:"path"`
	Duration   float64    `json:"duration"` // seconds
	FPS        float64    `json:"fps"`
	Resolution Resolution `json:"resolution"`
}

// TotalFrames estimates the number of frames from duration and frame rate.
func (v VideoFile) TotalFrames() int {
	if v.FPS <= 0 || v.Duration <= 0 {
		return 0
	}
	return int(v.Duration * v.FPS)
}

// AudioFile is a handle to an audio track on local disk.
type AudioFile struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"` // seconds
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

// ImageFrame is a still image sampled from a video.
// Path points at a temporary file owned by whoever received the frame.
type ImageFrame struct {
	Path       string     `json:"path"`
	Timestamp  *float64   `json:"timestamp,omitempty"` // seconds into the source video
	Resolution Resolution `json:"resolution"`
}

// TimestampOrZero returns the frame timestamp, or 0 when unknown.
func (f ImageFrame) TimestampOrZero() float64 {
	if f.Timestamp == nil {
		return 0
	}
	return *f.Timestamp
}
