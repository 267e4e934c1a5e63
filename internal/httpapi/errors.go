package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/coloring-care/internal/care"
	"github.com/ironsheep/coloring-care/internal/imaging"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

var (
	errNoStore = errors.New("storage is not configured")

	// errBadRequest marks request validation failures raised by handlers.
	errBadRequest = errors.New("bad request")
)

// badRequest wraps msg so statusFor maps it to 400.
func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var decodeErr *imaging.DecodeError
	var procErr *imaging.ProcessingError
	var eventErr *care.EventError

	switch {
	case errors.Is(err, errBadRequest),
		errors.As(err, &decodeErr),
		errors.As(err, &eventErr),
		errors.Is(err, imaging.ErrImageTooLarge),
		errors.Is(err, store.ErrMissingImageID),
		errors.Is(err, store.ErrEmptyImage),
		errors.Is(err, store.ErrUnsupportedExt),
		errors.Is(err, care.ErrNotCareMode),
		errors.Is(err, care.ErrNoActiveSession),
		errors.Is(err, care.ErrNudgeInjected),
		errors.Is(err, care.ErrInvalidCanvas),
		errors.Is(err, care.ErrMissingImage):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, care.ErrTrackerNotFound):
		return http.StatusNotFound
	case errors.As(err, &procErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNoStore),
		errors.Is(err, care.ErrNoStore),
		errors.Is(err, report.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"error": ...} with the mapped status and records
// err on the context for the request logger.
func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
