package metrics

import (
	"sort"
	"time"
)

// Overview window sizes.
const (
	TrendWindow    = 30 * 24 * time.Hour
	TrendSessions  = 20
	RecentSessions = 10
)

const dateLayout = "2006-01-02"

// SessionSample is the stored summary of one finalized session. Nil metric
// fields mean the value was not recorded.
type SessionSample struct {
	ID             string            `json:"id"`
	ImageID        string            `json:"imageId"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletionTime *float64          `json:"completionTime"`
	NeglectRatio   *float64          `json:"neglectRatio"`
	TremorIndex    *float64          `json:"tremorIndex"`
	QuadrantData   *QuadrantActivity `json:"quadrantData"`
	NudgeCount     int               `json:"nudgeCount"`
	AIInsight      string            `json:"aiInsight,omitempty"`
}

// TrendPoint is one dated value in a trend series.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// DateCount is the number of sessions recorded on one day.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// QuadrantTrendPoint is a dated quadrant distribution.
type QuadrantTrendPoint struct {
	Date string `json:"date"`
	QuadrantActivity
}

// Trends groups the chart series of an Overview.
type Trends struct {
	NeglectRatio     []TrendPoint         `json:"neglectRatio"`
	TremorIndex      []TrendPoint         `json:"tremorIndex"`
	ActivityByDate   []DateCount          `json:"activityByDate"`
	QuadrantActivity []QuadrantTrendPoint `json:"quadrantActivity"`
}

// Overview aggregates stored sessions for the progress dashboard.
type Overview struct {
	TotalSessions         int             `json:"totalSessions"`
	TotalImages           int64           `json:"totalImages"`
	AverageNeglectRatio   *float64        `json:"averageNeglectRatio"`
	AverageTremorIndex    *float64        `json:"averageTremorIndex"`
	AverageCompletionTime *float64        `json:"averageCompletionTime"`
	Sessions              []SessionSample `json:"sessions"`
	Trends                Trends          `json:"trends"`
}

// Summarize builds an Overview from stored sessions.
//
// Averages cover every session with a recorded value. Activity counts use
// sessions from the last 30 days, grouped by UTC date. Trend series use the
// latest 20 of those sessions and are returned oldest first. Sessions lists
// the latest 10 overall. samples may be in any order and is not modified.
func Summarize(samples []SessionSample, imageCount int64, now time.Time) Overview {
	sorted := make([]SessionSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	ov := Overview{
		TotalSessions:         len(sorted),
		TotalImages:           imageCount,
		AverageNeglectRatio:   average(sorted, func(s SessionSample) *float64 { return s.NeglectRatio }),
		AverageTremorIndex:    average(sorted, func(s SessionSample) *float64 { return s.TremorIndex }),
		AverageCompletionTime: average(sorted, func(s SessionSample) *float64 { return s.CompletionTime }),
		Sessions:              sorted[:min(RecentSessions, len(sorted))],
		Trends: Trends{
			NeglectRatio:     []TrendPoint{},
			TremorIndex:      []TrendPoint{},
			ActivityByDate:   []DateCount{},
			QuadrantActivity: []QuadrantTrendPoint{},
		},
	}

	cutoff := now.Add(-TrendWindow)
	var recent []SessionSample
	for _, s := range sorted {
		if !s.CreatedAt.Before(cutoff) {
			recent = append(recent, s)
		}
	}

	perDay := make(map[string]int)
	for _, s := range recent {
		perDay[s.CreatedAt.UTC().Format(dateLayout)]++
	}
	for date, count := range perDay {
		ov.Trends.ActivityByDate = append(ov.Trends.ActivityByDate, DateCount{Date: date, Count: count})
	}
	sort.Slice(ov.Trends.ActivityByDate, func(i, j int) bool {
		return ov.Trends.ActivityByDate[i].Date < ov.Trends.ActivityByDate[j].Date
	})

	latest := recent[:min(TrendSessions, len(recent))]
	for i := len(latest) - 1; i >= 0; i-- {
		s := latest[i]
		date := s.CreatedAt.UTC().Format(dateLayout)
		if s.NeglectRatio != nil {
			ov.Trends.NeglectRatio = append(ov.Trends.NeglectRatio, TrendPoint{Date: date, Value: *s.NeglectRatio})
		}
		if s.TremorIndex != nil {
			ov.Trends.TremorIndex = append(ov.Trends.TremorIndex, TrendPoint{Date: date, Value: *s.TremorIndex})
		}
		if s.QuadrantData != nil {
			ov.Trends.QuadrantActivity = append(ov.Trends.QuadrantActivity, QuadrantTrendPoint{Date: date, QuadrantActivity: *s.QuadrantData})
		}
	}

	return ov
}

func average(samples []SessionSample, field func(SessionSample) *float64) *float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if v := field(s); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
