package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/rommelskii/foundation/pkg/types"
)

// Snapshot encodings
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Encode serialises img in the given format and returns the bytes and MIME type.
func Encode(img image.Image, format string, quality int) ([]byte, string, error) {
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("empty image %v", img.Bounds())
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG, "jpg", "":
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), types.MimeJPEG, nil
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), types.MimePNG, nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q", format)
	}
}
