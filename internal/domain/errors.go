package domain

import "errors"

var (
	// ErrNotFound means a referenced file or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt means the media backend could not open or decode a file.
	ErrCorrupt = errors.New("corrupt or unreadable media")

	// ErrExtraction means the demux backend failed or produced no audio stream.
	ErrExtraction = errors.New("audio extraction failed")

	// ErrFileTooLarge means a file exceeds the transcription size ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrBackend wraps model, transcription and embedding call failures.
	ErrBackend = errors.New("backend call failed")
)
