// Package imaging turns photographs into coloring-book outlines and provides
// the raster helpers the coloring canvas needs.
//
// The centre of the package is ExtractOutline, a linear pipeline:
//
//	decode -> normalize -> bound -> grayscale -> edges -> invert -> expand -> encode
//
// Each stage is exported so callers and tests can run them individually.
// No stage mutates its input.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// Images produced by the pipeline always have their origin at (0,0).
//
// # Thread Safety
//
// The OutlineCache type is safe for concurrent use. All other functions are
// stateless and can be called concurrently.
//
// # Error Handling
//
// Outline failures fall into two types:
//   - *DecodeError: the bytes are not a PNG or JPEG image
//   - *ProcessingError: a stage could not produce pixels
//
// Neither is worth retrying with the same input.
//
// # Performance Considerations
//
// Edge detection cost grows with pixel count. The bound stage caps the
// working size at OutlineOptions.MaxDimension per side; callers that accept
// arbitrary uploads should still apply their own time budget.
package imaging
