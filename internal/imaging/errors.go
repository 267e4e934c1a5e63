package imaging

import "fmt"

// DecodeError reports input bytes that are not a supported raster image.
//
// Retrying with the same bytes cannot succeed; callers should surface the
// error and ask for a different image.
type DecodeError struct {
	// Format is the sniffed format name when one was detected ("gif", "bmp"),
	// or empty when the bytes were not recognised at all.
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode image: unsupported format %q", e.Format)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProcessingError reports a pipeline stage that could not produce valid pixel
// data, such as a bound step that would collapse one side to zero pixels.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("outline %s stage: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
