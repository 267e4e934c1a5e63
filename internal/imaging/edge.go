package imaging

import (
	"image"
	"image/color"
	"math"
)

// Mask values written by DetectEdges.
const (
	EdgeOff uint8 = 0
	EdgeOn  uint8 = 255
)

// DetectEdges performs Canny-style edge detection on a luminance image.
//
// Parameters:
//   - gray: Single-channel luminance (0-255). The bounds origin may be
//     anywhere; the returned mask always starts at (0,0).
//   - low: Weak-edge threshold on the gradient magnitude, in luminance units.
//   - high: Strong-edge threshold, in luminance units. Must be >= low.
//
// Returns a binary mask of the same size: EdgeOn where an edge was kept,
// EdgeOff elsewhere.
//
// # Algorithm
//
//  1. Gaussian blur: 5x5 kernel (sigma ≈ 1.4) to reduce noise
//
//  2. Gradient computation: Sobel operators for X and Y
//     magnitude = sqrt(Gx² + Gy²), direction = atan2(Gy, Gx)
//
//  3. Non-maximum suppression: keep only local maxima along the gradient
//     direction, thinning edges to one pixel
//
//  4. Hysteresis: pixels >= high seed edges; pixels >= low are kept only
//     when 8-connected (directly or through other weak pixels) to a seed
//
// Magnitudes are measured on the raw 0-255 scale, so thresholds are directly
// comparable to luminance differences. The detector is deterministic.
func DetectEdges(gray *image.Gray, low, high float64) *image.Gray {
	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	lum := make([]float64, width*height)
	for y := 0; y < height; y++ {
		off := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		row := gray.Pix[off : off+width]
		for x, v := range row {
			lum[y*width+x] = float64(v)
		}
	}

	blurred := gaussianBlur(lum, width, height)
	magnitude, direction := sobel(blurred, width, height)
	thin := suppressNonMaxima(magnitude, direction, width, height)

	return hysteresis(thin, width, height, low, high)
}

// gaussianBlur applies a 5x5 Gaussian blur to reduce noise before edge detection.
//
// Uses a standard 5x5 Gaussian kernel with sigma ≈ 1.4:
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
//
// Total kernel sum = 273, used for normalization.
// Border pixels use clamped (replicated) edge values.
func gaussianBlur(src []float64, width, height int) []float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273.0

	out := make([]float64, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				py := clamp(y+ky, 0, height-1)
				for kx := -2; kx <= 2; kx++ {
					px := clamp(x+kx, 0, width-1)
					sum += src[py*width+px] * kernel[ky+2][kx+2]
				}
			}
			out[y*width+x] = sum / kernelSum
		}
	}
	return out
}

// sobel returns the gradient magnitude and direction (radians) per pixel.
func sobel(src []float64, width, height int) (magnitude, direction []float64) {
	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	magnitude = make([]float64, len(src))
	direction = make([]float64, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				py := clamp(y+ky, 0, height-1)
				for kx := -1; kx <= 1; kx++ {
					px := clamp(x+kx, 0, width-1)
					v := src[py*width+px]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			i := y*width + x
			magnitude[i] = math.Sqrt(gx*gx + gy*gy)
			direction[i] = math.Atan2(gy, gx)
		}
	}
	return magnitude, direction
}

// suppressNonMaxima zeroes every pixel that is not a local maximum along its
// gradient direction. Border pixels are always suppressed.
func suppressNonMaxima(magnitude, direction []float64, width, height int) []float64 {
	out := make([]float64, len(magnitude))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			mag := magnitude[i]
			if mag == 0 {
				continue
			}

			// Fold the direction into [0, π); opposite gradients share neighbours.
			angle := direction[i]
			if angle < 0 {
				angle += math.Pi
			}

			var n1, n2 float64
			switch {
			case angle < math.Pi/8 || angle >= 7*math.Pi/8:
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			case angle < 3*math.Pi/8:
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			case angle < 5*math.Pi/8:
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			default:
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				out[i] = mag
			}
		}
	}
	return out
}

// hysteresis applies the double threshold and grows strong edges through
// 8-connected weak pixels.
func hysteresis(thin []float64, width, height int, low, high float64) *image.Gray {
	const (
		none uint8 = iota
		weak
		strong
	)

	labels := make([]uint8, len(thin))
	stack := make([]int, 0, 1024)
	for i, v := range thin {
		switch {
		case v >= high && v > 0:
			labels[i] = strong
			stack = append(stack, i)
		case v >= low && v > 0:
			labels[i] = weak
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if nx < 0 || nx >= width || (dx == 0 && dy == 0) {
					continue
				}
				j := ny*width + nx
				if labels[j] == weak {
					labels[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	mask := image.NewGray(image.Rect(0, 0, width, height))
	for i, l := range labels {
		if l == strong {
			mask.Pix[(i/width)*mask.Stride+i%width] = EdgeOn
		}
	}
	return mask
}

// isEdge reports whether a mask pixel is set.
func isEdge(c color.Gray) bool {
	return c.Y != EdgeOff
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
