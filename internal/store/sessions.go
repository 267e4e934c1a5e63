package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/metrics"
)

// RecordSession inserts rec, assigning its ID and creation time.
func (s *Store) RecordSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ImageID == "" {
		return ErrMissingImageID
	}
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.log.Info("Recorded care session",
		zap.String("id", rec.ID),
		zap.String("image_id", rec.ImageID),
		zap.Int("nudges", rec.NudgeCount),
	)
	return nil
}

// ListSessions returns stored sessions, newest first. limit <= 0 means all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	records := []SessionRecord{}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// Overview aggregates every stored session for the progress dashboard.
func (s *Store) Overview(ctx context.Context) (metrics.Overview, error) {
	images, err := s.CountGalleryImages(ctx)
	if err != nil {
		// A missing count only affects the header figure.
		s.log.Warn("Could not count gallery images", zap.Error(err))
		images = 0
	}

	records, err := s.ListSessions(ctx, 0)
	if err != nil {
		return metrics.Overview{}, err
	}

	samples := make([]metrics.SessionSample, len(records))
	for i, r := range records {
		samples[i] = r.Sample()
	}
	return metrics.Summarize(samples, images, s.now()), nil
}
