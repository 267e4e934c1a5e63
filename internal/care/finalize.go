package care

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// FinalizeRequest carries what a client supplies when saving a session.
// Either CanvasPNG or ImageID must be set.
type FinalizeRequest struct {
	// CanvasPNG is the rendered canvas, saved to the gallery.
	CanvasPNG []byte
	// ImageID references an already saved gallery image.
	ImageID string
	// Context names the subject of the picture for the report.
	Context    string
	UserID     *string
	SkipReport bool
}

// FinalizeResult is the outcome of a successful Finalize.
type FinalizeResult struct {
	SessionID     string                 `json:"sessionId"`
	Metrics       metrics.SessionMetrics `json:"metrics"`
	Analysis      string                 `json:"analysis,omitempty"`
	AnalysisError string                 `json:"analysisError,omitempty"`
	Image         *store.GalleryImage    `json:"image,omitempty"`
	Record        *store.SessionRecord   `json:"session"`
}

// Finalize computes the session metrics, writes the caregiver report, saves
// the canvas and the session record, then ends the session.
//
// A failed report does not fail the call; the error text is returned in the
// result. A storage failure returns an error and leaves the session live so
// the client can retry.
func (t *Tracker) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	if len(req.CanvasPNG) == 0 && req.ImageID == "" {
		return nil, ErrMissingImage
	}
	if t.deps.Store == nil {
		return nil, ErrNoStore
	}

	t.mu.Lock()
	s := t.session
	if s == nil {
		t.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	m := s.compute(t.deps.Clock.Now(), t.settings.Metrics)
	t.mu.Unlock()

	result := &FinalizeResult{SessionID: s.id, Metrics: m}

	if t.deps.Reporter != nil && !req.SkipReport {
		analysis, err := t.deps.Reporter.Analyze(ctx, report.InputFromMetrics(m, req.Context))
		if err != nil {
			t.log.Warn("Could not generate session report", zap.String("session", s.id), zap.Error(err))
			result.AnalysisError = err.Error()
		} else {
			result.Analysis = analysis
		}
	}

	imageID := req.ImageID
	if len(req.CanvasPNG) > 0 {
		img, err := t.deps.Store.SaveGalleryImage(ctx, req.CanvasPNG, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("save canvas: %w", err)
		}
		result.Image = img
		imageID = img.ID
	}

	rec := store.NewSessionRecord(imageID, m, result.Analysis)
	rec.UserID = req.UserID
	if err := t.deps.Store.RecordSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	result.Record = rec

	t.mu.Lock()
	if t.session == s {
		t.teardownLocked("finalized")
	}
	t.mu.Unlock()

	t.log.Info("Care session finalized",
		zap.String("session", s.id),
		zap.String("image_id", imageID),
		zap.Float64("neglect_ratio", m.NeglectRatio),
		zap.Float64("tremor_score", m.TremorScore),
		zap.Int("nudges", m.NudgeCount),
	)
	return result, nil
}
