package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/rommelskii/foundation/pkg/types"
)

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 32 << 20

// Client posts frames to a detector endpoint.
type Client struct {
	url     string
	dataURL bool
	http    *http.Client
}

// NewClient creates a client for the detector at url. When dataURL is set
// the frame is sent as a data: URL instead of bare base64.
func NewClient(url string, dataURL bool) *Client {
	return &Client{
		url:     url,
		dataURL: dataURL,
		http:    &http.Client{},
	}
}

// Detect sends one frame and resolves the reply. The deadline comes from ctx.
func (c *Client) Detect(ctx context.Context, frame types.Frame) (Result, error) {
	body, err := encodeRequest(frame.Data, frame.MimeType, c.dataURL)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Result{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	res, err := decodeResponse(raw)
	if err != nil {
		return Result{}, err
	}
	res.Source = image.Pt(frame.Width, frame.Height)
	res.ReceivedAt = time.Now()
	return res, nil
}
