package store

import (
	"math"
	"time"

	"github.com/ironsheep/coloring-care/internal/metrics"
)

// GalleryImage is a saved rendering of a finished canvas.
type GalleryImage struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StorageURL  string    `gorm:"not null" json:"storageUrl"`
	StoragePath string    `gorm:"not null" json:"storagePath"`
	UserID      *string   `gorm:"type:varchar(64);index" json:"userId"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (GalleryImage) TableName() string { return "gallery_images" }

// SessionRecord is the persisted summary of a finalized care session.
// CompletionTime is in whole seconds.
type SessionRecord struct {
	ID             string                    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ImageID        string                    `gorm:"type:varchar(36);not null;index" json:"imageId"`
	CompletionTime *int                      `json:"completionTime"`
	NeglectRatio   *float64                  `json:"neglectRatio"`
	TremorIndex    *float64                  `json:"tremorIndex"`
	QuadrantData   *metrics.QuadrantActivity `gorm:"type:text;serializer:json" json:"quadrantData"`
	NudgeCount     int                       `json:"nudgeCount"`
	AIInsight      *string                   `gorm:"type:text" json:"aiInsight"`
	UserID         *string                   `gorm:"type:varchar(64);index" json:"userId"`
	CreatedAt      time.Time                 `gorm:"index" json:"createdAt"`
}

func (SessionRecord) TableName() string { return "care_sessions" }

// NewSessionRecord builds a record from computed metrics. The completion
// time is rounded to the nearest second.
func NewSessionRecord(imageID string, m metrics.SessionMetrics, insight string) *SessionRecord {
	seconds := int(math.Round(m.TotalTimeSeconds))
	neglect := m.NeglectRatio
	tremor := m.TremorScore
	quadrants := m.QuadrantActivity

	rec := &SessionRecord{
		ImageID:        imageID,
		CompletionTime: &seconds,
		NeglectRatio:   &neglect,
		TremorIndex:    &tremor,
		QuadrantData:   &quadrants,
		NudgeCount:     m.NudgeCount,
	}
	if insight != "" {
		rec.AIInsight = &insight
	}
	return rec
}

// Sample converts the record into the form metrics.Summarize consumes.
func (r SessionRecord) Sample() metrics.SessionSample {
	s := metrics.SessionSample{
		ID:           r.ID,
		ImageID:      r.ImageID,
		CreatedAt:    r.CreatedAt,
		NeglectRatio: r.NeglectRatio,
		TremorIndex:  r.TremorIndex,
		QuadrantData: r.QuadrantData,
		NudgeCount:   r.NudgeCount,
	}
	if r.CompletionTime != nil {
		v := float64(*r.CompletionTime)
		s.CompletionTime = &v
	}
	if r.AIInsight != nil {
		s.AIInsight = *r.AIInsight
	}
	return s
}

// TemplateUpload describes an uploaded original image.
type TemplateUpload struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
}

// Snapshot holds the object keys of a stored outline input/output pair.
type Snapshot struct {
	InputKey  string `json:"inputKey"`
	OutputKey string `json:"outputKey"`
	InputURL  string `json:"inputUrl"`
	OutputURL string `json:"outputUrl"`
}
