package domain

import "time"

// ProgressRow is one user's one day's accumulated score within one challenge.
// The (challenge, user, day) key is unique; sync replaces the value rather
// than incrementing it.
type ProgressRow struct {
	ChallengeID string
	UserID      string
	Day         string
	Value       int64
}

// SyncResult summarises a completed sync run.
type SyncResult struct {
	DaysUpdated       int
	ActivitiesFetched int
}

// UserTotal is a per-user score aggregate across a challenge.
type UserTotal struct {
	UserID string
	Total  int64
}

// LeaderboardEntry is a ranked, display-ready leaderboard line. Derived per
// request from progress aggregates; never persisted.
type LeaderboardEntry struct {
	Rank   int
	UserID string
	Name   string
	Total  int64
}

// SyncSummary is the payload recorded for a finished sync run.
type SyncSummary struct {
	ChallengeID       string
	UserID            string
	DaysUpdated       int
	ActivitiesFetched int
	CompletedAt       time.Time
}
