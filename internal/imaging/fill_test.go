package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createDividedCanvas returns a white canvas with a black vertical line at lineX.
func createDividedCanvas(width, height, lineX int) *image.RGBA {
	img := createInMemoryImage(width, height, color.White)
	for y := 0; y < height; y++ {
		img.Set(lineX, y, color.Black)
	}
	return img
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    RGBColor
		wantErr bool
	}{
		{"#FF0000", RGBColor{255, 0, 0}, false},
		{"00ff00", RGBColor{0, 255, 0}, false},
		{"#abc", RGBColor{0xaa, 0xbb, 0xcc}, false},
		{" #102030 ", RGBColor{0x10, 0x20, 0x30}, false},
		{"zzz", RGBColor{}, true},
		{"", RGBColor{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHexColor(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFloodFill_StopsAtOutline(t *testing.T) {
	src := createDividedCanvas(10, 8, 5)

	out, res, err := FloodFill(src, 1, 1, "#FF0000", DefaultFillTolerance)
	if err != nil {
		t.Fatalf("FloodFill failed: %v", err)
	}

	if res.FilledPixels != 5*8 {
		t.Errorf("filled: got %d, want %d", res.FilledPixels, 5*8)
	}
	if res.Color != "#FF0000" {
		t.Errorf("color: got %s", res.Color)
	}
	if res.Target != (RGBColor{255, 255, 255}) {
		t.Errorf("target: got %+v", res.Target)
	}

	if c := out.NRGBAAt(0, 7); c != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("left region: got %v", c)
	}
	if c := out.NRGBAAt(5, 3); c != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("outline should be untouched, got %v", c)
	}
	if c := out.NRGBAAt(9, 0); c != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("right region should be untouched, got %v", c)
	}
	if r, _, _, _ := src.At(0, 0).RGBA(); r>>8 != 255 {
		t.Error("FloodFill must not modify its input")
	}
}

func TestFloodFill_ClampsSeed(t *testing.T) {
	src := createDividedCanvas(10, 8, 5)

	_, res, err := FloodFill(src, 100, -20, "#00FF00", DefaultFillTolerance)
	if err != nil {
		t.Fatalf("FloodFill failed: %v", err)
	}

	if res.Start != (Point{X: 9, Y: 0}) {
		t.Errorf("start: got %+v, want (9,0)", res.Start)
	}
	if res.FilledPixels != 4*8 {
		t.Errorf("filled: got %d, want %d", res.FilledPixels, 4*8)
	}
}

func TestFloodFill_Tolerance(t *testing.T) {
	// Left half pure white, right half off-white.
	src := createInMemoryImage(10, 4, color.White)
	for y := 0; y < 4; y++ {
		for x := 5; x < 10; x++ {
			src.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	tests := []struct {
		name      string
		tolerance int
		want      int
	}{
		{"default spans both", DefaultFillTolerance, 40},
		{"tight stops at shade", 5, 20},
		{"negative uses default", -1, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := FloodFill(src, 0, 0, "#0000FF", tt.tolerance)
			if err != nil {
				t.Fatalf("FloodFill failed: %v", err)
			}
			if res.FilledPixels != tt.want {
				t.Errorf("filled: got %d, want %d", res.FilledPixels, tt.want)
			}
		})
	}
}

func TestFloodFill_KeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 128})
	src.SetNRGBA(1, 0, color.NRGBA{255, 255, 255, 128})

	out, _, err := FloodFill(src, 0, 0, "#112233", 0)
	if err != nil {
		t.Fatalf("FloodFill failed: %v", err)
	}

	if c := out.NRGBAAt(1, 0); c != (color.NRGBA{0x11, 0x22, 0x33, 128}) {
		t.Errorf("got %v", c)
	}
}

func TestFloodFill_InvalidColor(t *testing.T) {
	src := createInMemoryImage(4, 4, color.White)
	if _, _, err := FloodFill(src, 0, 0, "not-a-color", 10); err == nil {
		t.Error("expected error for invalid color")
	}
}
