package domain

import (
	"strings"
	"time"
)

// Activity is the canonical activity record derived from an upstream payload.
// All numeric fields default to zero and optional fields to nil; nothing past
// the normalization seam trusts the raw upstream shape.
type Activity struct {
	Type                string
	DistanceMeters      float64
	MovingTimeSeconds   int64
	ElevationGainMeters float64
	AverageCadence      *float64
	Calories            *float64
	StartDateLocal      string
}

// DayKey returns the local calendar day ("2006-01-02") the activity belongs
// to, discarding time-of-day. An empty string means the day is unresolvable
// and the activity contributes to nothing.
func (a Activity) DayKey() string {
	if len(a.StartDateLocal) < 10 {
		return ""
	}
	day := a.StartDateLocal[:10]
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return ""
	}
	return day
}

// Ambulatory reports whether the activity can score at all. Only
// cardio/ambulatory activity (run, walk, hike) counts toward challenges;
// rides, swims and anything else are excluded regardless of challenge type.
func (a Activity) Ambulatory() bool {
	t := strings.ToLower(a.Type)
	return strings.Contains(t, "run") || strings.Contains(t, "walk") || strings.Contains(t, "hike")
}

// CachedActivity is a raw upstream record retained for auditing, keyed by the
// upstream identifier so repeated syncs overwrite in place.
type CachedActivity struct {
	ExternalID          string
	Source              string
	Type                string
	StartDate           time.Time
	DistanceMeters      float64
	MovingTimeSeconds   int64
	ElevationGainMeters float64
	Payload             []byte
}
