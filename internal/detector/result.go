// Package detector talks to the remote detection service and turns its
// polymorphic responses into a single Result value.
package detector

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register decoders for b64_output
	_ "image/png"
	"strings"
	"time"
)

var (
	// ErrMalformedResponse is returned when a response body carries neither
	// usable coords nor a decodable image.
	ErrMalformedResponse = errors.New("malformed detector response")
	// ErrStatus is returned for non-2xx detector replies.
	ErrStatus = errors.New("detector returned non-2xx status")
)

// Kind identifies which variant a Result holds.
type Kind int

const (
	KindCoords Kind = iota + 1 // Sparse detections, drawn as circles
	KindImage                  // Processed image replacing the overlay
)

func (k Kind) String() string {
	switch k {
	case KindCoords:
		return "coords"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Detection is one point of interest in source pixel space.
// Radius is zero when the detector did not send one.
type Detection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Result is a resolved detector response.
type Result struct {
	Kind       Kind
	Detections []Detection // KindCoords
	Image      image.Image // KindImage
	Source     image.Point // Size of the frame the result refers to
	ReceivedAt time.Time
}

// request is the body POSTed to the detector.
type request struct {
	Input string `json:"b64_input"`
}

// response is the union of every shape the detector may answer with.
type response struct {
	Output string      `json:"b64_output"`
	Coords [][]float64 `json:"coords"`
	Labels []string    `json:"labels,omitempty"`
}

// decodeResponse resolves a raw body into a Result. Coords take precedence
// when both fields are present; an empty b64_output counts as absent.
func decodeResponse(body []byte) (Result, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.Coords != nil {
		dets := make([]Detection, 0, len(resp.Coords))
		for i, c := range resp.Coords {
			if len(c) < 2 {
				return Result{}, fmt.Errorf("%w: coord %d has %d elements", ErrMalformedResponse, i, len(c))
			}
			d := Detection{X: c[0], Y: c[1]}
			if len(c) >= 3 && c[2] > 0 {
				d.Radius = c[2]
			}
			if i < len(resp.Labels) {
				d.Label = resp.Labels[i]
			}
			dets = append(dets, d)
		}
		return Result{Kind: KindCoords, Detections: dets}, nil
	}

	if resp.Output != "" {
		img, err := decodeImage(resp.Output)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return Result{Kind: KindImage, Image: img}, nil
	}

	return Result{}, fmt.Errorf("%w: neither coords nor b64_output", ErrMalformedResponse)
}

// decodeImage accepts bare base64 or a data URL.
func decodeImage(s string) (image.Image, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// encodeRequest builds the request body for one encoded frame.
func encodeRequest(data []byte, mimeType string, dataURL bool) ([]byte, error) {
	b64 := base64.StdEncoding.EncodeToString(data)
	if dataURL {
		b64 = "data:" + mimeType + ";base64," + b64
	}
	return json.Marshal(request{Input: b64})
}
