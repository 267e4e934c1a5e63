package imaging

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultFillTolerance is the per-channel distance under which a pixel is
// considered part of the region being filled.
const DefaultFillTolerance = 30

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// FillResult describes a completed flood fill.
type FillResult struct {
	// Start is the seed after clamping into the image.
	Start Point `json:"start"`

	// Target is the colour that was replaced.
	Target RGBColor `json:"target"`

	// Color is the fill colour as "#RRGGBB".
	Color string `json:"color"`

	// FilledPixels counts the pixels that were repainted.
	FilledPixels int `json:"filled_pixels"`
}

// ParseHexColor parses "#RRGGBB", "RRGGBB" or the three-digit short form.
func ParseHexColor(hex string) (RGBColor, error) {
	s := strings.TrimSpace(hex)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGBColor{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return RGBColor{R: r, G: g, B: b}, nil
}

// FloodFill paints the 4-connected region around (x, y) whose pixels are
// within tolerance of the seed colour on every channel.
//
// Parameters:
//   - img: Source image; it is not modified.
//   - x, y: Seed point. Values outside the image are clamped to the nearest
//     edge pixel.
//   - hexColor: Fill colour, see ParseHexColor.
//   - tolerance: Maximum per-channel difference (0-255). Negative values use
//     DefaultFillTolerance.
//
// Alpha is left as it was on every pixel. Outline pixels act as walls because
// black differs from a white background by more than any sensible tolerance.
func FloodFill(img image.Image, x, y int, hexColor string, tolerance int) (*image.NRGBA, *FillResult, error) {
	fill, err := ParseHexColor(hexColor)
	if err != nil {
		return nil, nil, err
	}
	if tolerance < 0 {
		tolerance = DefaultFillTolerance
	}

	dst := imaging.Clone(img)
	width := dst.Bounds().Dx()
	height := dst.Bounds().Dy()
	if width == 0 || height == 0 {
		return nil, nil, fmt.Errorf("cannot fill an empty image")
	}

	x = clamp(x, 0, width-1)
	y = clamp(y, 0, height-1)

	seed := dst.PixOffset(x, y)
	target := RGBColor{R: dst.Pix[seed], G: dst.Pix[seed+1], B: dst.Pix[seed+2]}

	matches := func(i int) bool {
		return absDiff(dst.Pix[i], target.R) <= tolerance &&
			absDiff(dst.Pix[i+1], target.G) <= tolerance &&
			absDiff(dst.Pix[i+2], target.B) <= tolerance
	}

	visited := make([]bool, width*height)
	stack := []Point{{X: x, Y: y}}
	filled := 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y*width+p.X] {
			continue
		}
		i := dst.PixOffset(p.X, p.Y)
		if !matches(i) {
			continue
		}

		visited[p.Y*width+p.X] = true
		dst.Pix[i] = fill.R
		dst.Pix[i+1] = fill.G
		dst.Pix[i+2] = fill.B
		filled++

		stack = append(stack,
			Point{X: p.X + 1, Y: p.Y},
			Point{X: p.X - 1, Y: p.Y},
			Point{X: p.X, Y: p.Y + 1},
			Point{X: p.X, Y: p.Y - 1},
		)
	}

	return dst, &FillResult{
		Start:        Point{X: x, Y: y},
		Target:       target,
		Color:        fmt.Sprintf("#%02X%02X%02X", fill.R, fill.G, fill.B),
		FilledPixels: filled,
	}, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
