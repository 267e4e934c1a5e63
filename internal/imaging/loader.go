package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"

	"github.com/disintegration/imaging"
)

// ErrImageTooLarge is returned by Fetch when the remote body exceeds the
// configured byte limit.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// ImageInfo describes a decoded source image.
type ImageInfo struct {
	// Width is the stored image width in pixels.
	Width int `json:"width"`

	// Height is the stored image height in pixels.
	Height int `json:"height"`

	// Format is the sniffed container format: "png" or "jpeg".
	Format string `json:"format"`
}

// Decode turns raw PNG or JPEG bytes into an image.
//
// The container format is sniffed from the bytes, not from a filename or a
// MIME type. Other registered formats (GIF, BMP, TIFF) are rejected so that
// the outline pipeline only ever sees the two formats uploads are validated
// against. JPEG EXIF orientation is ignored: the outline keeps the stored
// pixel grid and its dimensions.
//
// # Errors
//
// Every failure is a *DecodeError:
//   - empty input
//   - bytes that no registered decoder recognises
//   - a recognised but unsupported format
//   - a truncated or corrupt PNG/JPEG body
//   - an image with zero width or height
func Decode(data []byte) (image.Image, *ImageInfo, error) {
	if len(data) == 0 {
		return nil, nil, &DecodeError{Err: errors.New("empty input")}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &DecodeError{Err: err}
	}
	if format != "png" && format != "jpeg" {
		return nil, nil, &DecodeError{Format: format}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil, &DecodeError{Err: fmt.Errorf("image has no pixels (%dx%d)", bounds.Dx(), bounds.Dy())}
	}

	return img, &ImageInfo{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// Fetch downloads the body at url, refusing anything larger than maxBytes.
//
// Fetch does not decode; pass the bytes to Decode or ExtractOutline. A
// non-2xx response is an error. The context bounds the whole transfer.
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrImageTooLarge
	}

	return data, nil
}

// ToPNG returns data as PNG bytes. PNG input is returned unchanged; JPEG
// input is decoded and re-encoded.
func ToPNG(data []byte) ([]byte, error) {
	img, info, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if info.Format == "png" {
		return data, nil
	}
	return EncodePNG(img)
}
