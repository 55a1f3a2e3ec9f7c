// Package events defines the payloads published by the challenge service.
package events

import "time"

// ProgressUpdated is emitted whenever a per-day progress row is replaced.
type ProgressUpdated struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Day         string    `json:"day"`
	Value       int64     `json:"value"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChallengeSynced summarises a completed sync run.
type ChallengeSynced struct {
	ChallengeID       string    `json:"challenge_id"`
	UserID            string    `json:"user_id"`
	DaysUpdated       int       `json:"days_updated"`
	ActivitiesFetched int       `json:"activities_fetched"`
	CompletedAt       time.Time `json:"completed_at"`
}
