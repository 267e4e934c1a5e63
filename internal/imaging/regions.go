package imaging

import "image"

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// OutlineStats summarises how busy a coloring template is.
type OutlineStats struct {
	// EdgePixels is the number of outline (black) pixels.
	EdgePixels int `json:"edge_pixels"`

	// EdgeRatio is EdgePixels divided by the total pixel count.
	EdgeRatio float64 `json:"edge_ratio"`

	// Regions counts 4-connected areas of background, i.e. the separate
	// places a bucket fill would paint.
	Regions int `json:"regions"`
}

// MeasureOutline computes OutlineStats from an edge mask as produced by
// DetectEdges (non-zero = edge).
func MeasureOutline(mask *image.Gray) OutlineStats {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return OutlineStats{}
	}

	edges := make([]bool, width*height)
	var edgePixels int
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if isEdge(mask.GrayAt(b.Min.X+x, b.Min.Y+y)) {
				edges[y*width+x] = true
				edgePixels++
			}
		}
	}

	return OutlineStats{
		EdgePixels: edgePixels,
		EdgeRatio:  float64(edgePixels) / float64(width*height),
		Regions:    countRegions(edges, width, height),
	}
}

// countRegions labels every non-edge pixel and returns the number of
// 4-connected background components.
func countRegions(edges []bool, width, height int) int {
	visited := make([]bool, len(edges))
	regions := 0
	for i := range edges {
		if edges[i] || visited[i] {
			continue
		}
		regions++
		fillRegion(edges, visited, Point{X: i % width, Y: i / width}, width, height)
	}
	return regions
}

// fillRegion marks the background component containing start as visited.
func fillRegion(edges, visited []bool, start Point, width, height int) {
	stack := []Point{start}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if visited[i] || edges[i] {
			continue
		}
		visited[i] = true

		stack = append(stack,
			Point{X: p.X + 1, Y: p.Y},
			Point{X: p.X - 1, Y: p.Y},
			Point{X: p.X, Y: p.Y + 1},
			Point{X: p.X, Y: p.Y - 1},
		)
	}
}
