package domain

import "errors"

var (
	// ErrChallengeNotFound is returned when a challenge cannot be located.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrNotAuthorized indicates the caller is neither participant nor creator.
	ErrNotAuthorized = errors.New("not a participant or creator of the challenge")
	// ErrNotConnected indicates the user has no stored fitness credential.
	ErrNotConnected = errors.New("fitness source not connected")
	// ErrRefreshFailed indicates the credential refresh was rejected; the
	// user must re-authorize with the upstream source.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrUpstream wraps activity-fetch failures from the external source.
	ErrUpstream = errors.New("upstream activity fetch failed")
	// ErrInvalidChallenge is returned for malformed create/update input.
	ErrInvalidChallenge = errors.New("invalid challenge")
)
