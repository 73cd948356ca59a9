package types

import "time"

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Frame is one encoded still taken from the live source by the capture loop.
type Frame struct {
	Data      []byte    // Encoded image bytes (JPEG or PNG)
	MimeType  string    // "image/jpeg" or "image/png"
	Timestamp time.Time // Snapshot time
	Width     int       // Snapshot width
	Height    int       // Snapshot height
}

// Image MIME types produced by the capture encoder
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)
