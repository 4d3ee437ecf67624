package domain

import "time"

// SavedPost is one saved social-media post handed over by the retrieval collaborator.
// Media paths are local files; any of them may be empty.
type SavedPost struct {
	ContentID string    `json:"content_id"`
	URL       string    `json:"url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Hashtags  []string  `json:"hashtags,omitempty"`
	VideoPath string    `json:"video_path,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	SavedAt   time.Time `json:"saved_at,omitempty"`
}

// HasMedia reports whether the post references any local media file.
func (p SavedPost) HasMedia() bool {
	return p.VideoPath != "" || p.AudioPath != ""
}
