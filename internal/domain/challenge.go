package domain

import (
	"math"
	"time"
)

// ScoringType selects which increment formula applies to a challenge.
type ScoringType string

const (
	ScoringSteps     ScoringType = "steps"
	ScoringDistance  ScoringType = "distance"
	ScoringTime      ScoringType = "time"
	ScoringElevation ScoringType = "elevation"
	ScoringCalories  ScoringType = "calories"
)

// KnownScoringType reports whether the value is one of the supported scoring
// rules. Unknown types are still tolerated at sync time (they score zero),
// but creation rejects them.
func KnownScoringType(t ScoringType) bool {
	switch t {
	case ScoringSteps, ScoringDistance, ScoringTime, ScoringElevation, ScoringCalories:
		return true
	}
	return false
}

// ChallengeStatus is derived from the clock, never stored.
type ChallengeStatus string

const (
	StatusUpcoming ChallengeStatus = "upcoming"
	StatusActive   ChallengeStatus = "active"
	StatusEnded    ChallengeStatus = "ended"
)

// Challenge is a time-boxed competition with a scoring rule.
type Challenge struct {
	ID           string
	Title        string
	Type         ScoringType
	StartDate    time.Time
	EndDate      time.Time
	CreatorID    string
	Participants []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Status computes the lifecycle phase at the given instant.
func (c Challenge) Status(now time.Time) ChallengeStatus {
	if now.Before(c.StartDate) {
		return StatusUpcoming
	}
	if now.After(c.EndDate) {
		return StatusEnded
	}
	return StatusActive
}

// HasMember reports whether the user participates in the challenge.
func (c Challenge) HasMember(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Increment computes the score contribution of a single activity under the
// challenge's scoring rule. Unknown scoring types contribute zero rather than
// failing, so adding a rule never breaks old clients mid-challenge.
func (c Challenge) Increment(a Activity) int64 {
	switch c.Type {
	case ScoringSteps:
		return EstimateSteps(a)
	case ScoringDistance:
		return int64(math.Round(a.DistanceMeters))
	case ScoringTime:
		return a.MovingTimeSeconds
	case ScoringElevation:
		return int64(math.Round(a.ElevationGainMeters))
	case ScoringCalories:
		if a.Calories == nil {
			return 0
		}
		return int64(math.Round(*a.Calories))
	default:
		return 0
	}
}

// DailyTotals reduces a fetched activity window into per-day score sums.
// Non-ambulatory activities and activities without a resolvable day are
// skipped. The reduction is pure: running it twice over the same window
// yields identical totals, which is what makes sync idempotent.
func (c Challenge) DailyTotals(activities []Activity) map[string]int64 {
	totals := make(map[string]int64)
	for _, a := range activities {
		if !a.Ambulatory() {
			continue
		}
		day := a.DayKey()
		if day == "" {
			continue
		}
		totals[day] += c.Increment(a)
	}
	return totals
}

// Cursor models the pagination token for challenge listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
