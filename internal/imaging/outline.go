package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

// Default outline tunables.
const (
	DefaultMaxDimension  = 2000
	DefaultLowThreshold  = 20.0
	DefaultHighThreshold = 40.0
)

// OutlineOptions tunes the outline pipeline.
type OutlineOptions struct {
	// MaxDimension caps both sides of the working image. Larger inputs are
	// downscaled uniformly so the longer side equals MaxDimension.
	MaxDimension int `json:"max_dimension"`

	// LowThreshold and HighThreshold are the Canny hysteresis thresholds on
	// the 0-255 luminance scale.
	LowThreshold  float64 `json:"low_threshold"`
	HighThreshold float64 `json:"high_threshold"`
}

// DefaultOutlineOptions returns the options used for coloring templates.
func DefaultOutlineOptions() OutlineOptions {
	return OutlineOptions{
		MaxDimension:  DefaultMaxDimension,
		LowThreshold:  DefaultLowThreshold,
		HighThreshold: DefaultHighThreshold,
	}
}

// Validate reports options the pipeline cannot run with.
func (o OutlineOptions) Validate() error {
	if o.MaxDimension <= 0 {
		return fmt.Errorf("max dimension must be positive, got %d", o.MaxDimension)
	}
	if o.LowThreshold < 0 || o.HighThreshold < 0 {
		return fmt.Errorf("thresholds must be non-negative, got %v/%v", o.LowThreshold, o.HighThreshold)
	}
	if o.LowThreshold > o.HighThreshold {
		return fmt.Errorf("low threshold %v exceeds high threshold %v", o.LowThreshold, o.HighThreshold)
	}
	return nil
}

// OutlineResult is the product of ExtractOutline.
type OutlineResult struct {
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	SourceWidth  int          `json:"source_width"`
	SourceHeight int          `json:"source_height"`
	SourceFormat string       `json:"source_format"`
	Scaled       bool         `json:"scaled"`
	Stats        OutlineStats `json:"stats"`

	// PNG holds the encoded outline. It is omitted from JSON; transports
	// decide how to ship the bytes.
	PNG []byte `json:"-"`
}

// ExtractOutline converts a PNG or JPEG photograph into a black-line on
// white coloring template.
//
// The pipeline is linear:
//
//	decode -> normalize -> bound -> grayscale -> edges -> invert -> expand -> encode
//
// Every stage returns a new image; none mutates its input. The same bytes
// and options always produce the same PNG.
//
// # Errors
//
//   - *DecodeError when data is not a decodable PNG or JPEG
//   - *ProcessingError when a stage cannot produce pixels, for example when
//     bounding would collapse a side to zero
func ExtractOutline(data []byte, opts OutlineOptions) (*OutlineResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, &ProcessingError{Stage: "options", Err: err}
	}

	src, info, err := Decode(data)
	if err != nil {
		return nil, err
	}

	rgb := Normalize(src)

	bounded, err := Bound(rgb, opts.MaxDimension)
	if err != nil {
		return nil, err
	}

	gray := Grayscale(bounded)
	mask := DetectEdges(gray, opts.LowThreshold, opts.HighThreshold)
	stats := MeasureOutline(mask)
	outline := ExpandRGB(Invert(mask))

	encoded, err := EncodePNG(outline)
	if err != nil {
		return nil, &ProcessingError{Stage: "encode", Err: err}
	}

	b := outline.Bounds()
	return &OutlineResult{
		Width:        b.Dx(),
		Height:       b.Dy(),
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		SourceFormat: info.Format,
		Scaled:       b.Dx() != info.Width || b.Dy() != info.Height,
		Stats:        stats,
		PNG:          encoded,
	}, nil
}

// Normalize copies img into an opaque NRGBA image with its origin at (0,0).
// Colour channels are kept as stored; alpha is forced to 255.
func Normalize(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Bound downscales img so neither side exceeds maxDim, preserving aspect
// ratio. Images already within bounds are returned as a copy.
func Bound(img *image.NRGBA, maxDim int) (*image.NRGBA, error) {
	if maxDim <= 0 {
		return nil, &ProcessingError{Stage: "bound", Err: fmt.Errorf("max dimension must be positive, got %d", maxDim)}
	}

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, &ProcessingError{Stage: "bound", Err: errors.New("image has zero area")}
	}
	if w <= maxDim && h <= maxDim {
		return imaging.Clone(img), nil
	}

	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	if newW < 1 || newH < 1 {
		return nil, &ProcessingError{
			Stage: "bound",
			Err:   fmt.Errorf("downscaling %dx%d to fit %d yields %dx%d", w, h, maxDim, newW, newH),
		}
	}

	return imaging.Resize(img, newW, newH, imaging.Lanczos), nil
}

// Grayscale reduces img to single-channel luminance. The result has its
// origin at (0,0).
func Grayscale(img image.Image) *image.Gray {
	rgba := effect.Grayscale(img)
	b := rgba.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			// R, G and B carry the same value.
			row[x] = src[x*4]
		}
	}
	return dst
}

// Invert flips a luminance image so that edge pixels become black.
func Invert(mask *image.Gray) *image.Gray {
	b := mask.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := mask.Pix[mask.PixOffset(b.Min.X, b.Min.Y+y):]
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			row[x] = 255 - src[x]
		}
	}
	return dst
}

// ExpandRGB replicates a luminance image across R, G and B with full opacity.
func ExpandRGB(gray *image.Gray) *image.NRGBA {
	b := gray.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			dst.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 0xff})
		}
	}
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imgio.PNGEncoder()(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
