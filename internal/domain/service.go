// Package domain defines the business logic for the challenge service.
package domain

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChallengeRepository captures challenge persistence operations.
type ChallengeRepository interface {
	Get(ctx context.Context, challengeID string) (*Challenge, error)
	Create(ctx context.Context, challenge Challenge) error
	Update(ctx context.Context, challenge Challenge) error
	Delete(ctx context.Context, challengeID string) error
	List(ctx context.Context, filter ChallengeFilter, cursor *Cursor, limit int) ([]Challenge, *Cursor, error)
	Join(ctx context.Context, challengeID, userID string) error
	Leave(ctx context.Context, challengeID, userID string) error
}

// ProgressRepository persists per-day progress and serves leaderboard totals.
type ProgressRepository interface {
	UpsertDay(ctx context.Context, row ProgressRow) error
	TotalsByUser(ctx context.Context, challengeID string, limit int) ([]UserTotal, error)
	RecordSync(ctx context.Context, summary SyncSummary) error
}

// ActivityCacheRepository retains raw upstream records.
type ActivityCacheRepository interface {
	UpsertCached(ctx context.Context, userID string, activity CachedActivity) error
}

// UserDirectory resolves display names; missing ids are simply absent from
// the result, never an error.
type UserDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// CredentialSource yields a valid upstream access token for a user,
// refreshing the stored credential when needed.
type CredentialSource interface {
	EnsureAccessToken(ctx context.Context, userID string) (string, error)
}

// ActivityFetcher retrieves activity records from the external source for a
// time window, already normalized into canonical records.
type ActivityFetcher interface {
	FetchWindow(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64) ([]Activity, error)
	FetchRaw(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64) ([]CachedActivity, error)
}

// ChallengeFilter narrows challenge listings.
type ChallengeFilter struct {
	Type      ScoringType
	Status    ChallengeStatus
	CreatorID string
}

// Service orchestrates challenge workflows.
type Service struct {
	challenges  ChallengeRepository
	progress    ProgressRepository
	cache       ActivityCacheRepository
	users       UserDirectory
	credentials CredentialSource
	fetcher     ActivityFetcher
	logger      *log.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(
	challenges ChallengeRepository,
	progress ProgressRepository,
	cache ActivityCacheRepository,
	users UserDirectory,
	credentials CredentialSource,
	fetcher ActivityFetcher,
) *Service {
	return &Service{
		challenges:  challenges,
		progress:    progress,
		cache:       cache,
		users:       users,
		credentials: credentials,
		fetcher:     fetcher,
		logger:      log.New(log.Writer(), "[challenge] ", log.LstdFlags),
		now:         time.Now,
	}
}

// CreateChallengeInput captures the payload from the API layer.
type CreateChallengeInput struct {
	Title     string
	Type      ScoringType
	StartDate time.Time
	EndDate   time.Time
	CreatorID string
}

// Validate ensures the input describes a well-formed challenge.
func (in CreateChallengeInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidChallenge)
	}
	if !KnownScoringType(in.Type) {
		return fmt.Errorf("%w: unknown scoring type %q", ErrInvalidChallenge, in.Type)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidChallenge)
	}
	if !in.EndDate.After(in.StartDate) {
		return fmt.Errorf("%w: end date must follow start date", ErrInvalidChallenge)
	}
	return nil
}

// CreateChallenge registers a new challenge; the creator joins automatically.
func (s *Service) CreateChallenge(ctx context.Context, input CreateChallengeInput) (*Challenge, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	challenge := Challenge{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(input.Title),
		Type:         input.Type,
		StartDate:    input.StartDate.UTC(),
		EndDate:      input.EndDate.UTC(),
		CreatorID:    input.CreatorID,
		Participants: []string{input.CreatorID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// GetChallenge fetches a challenge by id.
func (s *Service) GetChallenge(ctx context.Context, challengeID string) (*Challenge, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, ErrChallengeNotFound
	}
	return challenge, nil
}

// ListChallenges returns challenges with cursor pagination.
func (s *Service) ListChallenges(ctx context.Context, filter ChallengeFilter, cursor *Cursor, limit int) ([]Challenge, *Cursor, error) {
	return s.challenges.List(ctx, filter, cursor, limit)
}

// UpdateChallengeInput carries mutable challenge fields.
type UpdateChallengeInput struct {
	Title     string
	StartDate time.Time
	EndDate   time.Time
}

// UpdateChallenge applies changes; only the creator may modify a challenge.
func (s *Service) UpdateChallenge(ctx context.Context, challengeID, callerID string, input UpdateChallengeInput) (*Challenge, error) {
	challenge, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.CreatorID != callerID {
		return nil, ErrNotAuthorized
	}

	if title := strings.TrimSpace(input.Title); title != "" {
		challenge.Title = title
	}
	if !input.StartDate.IsZero() {
		challenge.StartDate = input.StartDate.UTC()
	}
	if !input.EndDate.IsZero() {
		challenge.EndDate = input.EndDate.UTC()
	}
	if !challenge.EndDate.After(challenge.StartDate) {
		return nil, fmt.Errorf("%w: end date must follow start date", ErrInvalidChallenge)
	}
	challenge.UpdatedAt = s.now().UTC()

	if err := s.challenges.Update(ctx, *challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// DeleteChallenge removes a challenge; only the creator may delete it.
func (s *Service) DeleteChallenge(ctx context.Context, challengeID, callerID string) error {
	challenge, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if challenge.CreatorID != callerID {
		return ErrNotAuthorized
	}
	return s.challenges.Delete(ctx, challengeID)
}

// JoinChallenge adds a user to the participant set. Joining twice is a no-op.
func (s *Service) JoinChallenge(ctx context.Context, challengeID, userID string) error {
	if _, err := s.GetChallenge(ctx, challengeID); err != nil {
		return err
	}
	return s.challenges.Join(ctx, challengeID, userID)
}

// LeaveChallenge removes a user from the participant set. Leaving a
// challenge never joined is a no-op.
func (s *Service) LeaveChallenge(ctx context.Context, challengeID, userID string) error {
	if _, err := s.GetChallenge(ctx, challengeID); err != nil {
		return err
	}
	return s.challenges.Leave(ctx, challengeID, userID)
}

// Participant pairs an id with a resolved display name.
type Participant struct {
	UserID string
	Name   string
}

// placeholderName renders for users the directory cannot resolve.
const placeholderName = "Unknown"

// Participants lists challenge members with display names.
func (s *Service) Participants(ctx context.Context, challengeID string) ([]Participant, error) {
	challenge, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	names, err := s.users.DisplayNames(ctx, challenge.Participants)
	if err != nil {
		return nil, err
	}

	out := make([]Participant, 0, len(challenge.Participants))
	for _, id := range challenge.Participants {
		name, ok := names[id]
		if !ok || name == "" {
			name = placeholderName
		}
		out = append(out, Participant{UserID: id, Name: name})
	}
	return out, nil
}

// SyncChallenge pulls the user's activities for the challenge window from
// the external source and rebuilds their per-day progress rows. The whole
// day value is recomputed from the fetched window and written with replace
// semantics, so re-running a sync never double-counts. Rows upserted before
// a later failure are retained; there is no compensating rollback.
func (s *Service) SyncChallenge(ctx context.Context, challengeID, userID string) (SyncResult, error) {
	challenge, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return SyncResult{}, err
	}
	if !challenge.HasMember(userID) && challenge.CreatorID != userID {
		return SyncResult{}, ErrNotAuthorized
	}

	accessToken, err := s.credentials.EnsureAccessToken(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	after := challenge.StartDate.Unix()
	before := challenge.EndDate.Unix()

	activities, err := s.fetcher.FetchWindow(ctx, accessToken, after, before)
	if err != nil {
		return SyncResult{}, err
	}

	totals := challenge.DailyTotals(activities)

	// Deterministic write order keeps partial-failure reports stable.
	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)

	// Upserts are independent: one failed day must not block the rest.
	updated := 0
	for _, day := range days {
		row := ProgressRow{
			ChallengeID: challengeID,
			UserID:      userID,
			Day:         day,
			Value:       totals[day],
		}
		if err := s.progress.UpsertDay(ctx, row); err != nil {
			s.logger.Printf("progress upsert failed (challenge=%s, user=%s, day=%s): %v", challengeID, userID, day, err)
			continue
		}
		updated++
	}

	result := SyncResult{DaysUpdated: updated, ActivitiesFetched: len(activities)}

	summary := SyncSummary{
		ChallengeID:       challengeID,
		UserID:            userID,
		DaysUpdated:       result.DaysUpdated,
		ActivitiesFetched: result.ActivitiesFetched,
		CompletedAt:       s.now().UTC(),
	}
	if err := s.progress.RecordSync(ctx, summary); err != nil {
		s.logger.Printf("sync summary record failed (challenge=%s, user=%s): %v", challengeID, userID, err)
	}

	return result, nil
}

// SyncActivities refreshes the raw activity cache for a user. This is an
// auditing concern separate from challenge scoring; cached rows are keyed by
// upstream id so repeat syncs overwrite in place.
func (s *Service) SyncActivities(ctx context.Context, userID string, afterEpoch, beforeEpoch int64) (int, error) {
	accessToken, err := s.credentials.EnsureAccessToken(ctx, userID)
	if err != nil {
		return 0, err
	}

	raw, err := s.fetcher.FetchRaw(ctx, accessToken, afterEpoch, beforeEpoch)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, activity := range raw {
		if err := s.cache.UpsertCached(ctx, userID, activity); err != nil {
			s.logger.Printf("activity cache upsert failed (user=%s, external_id=%s): %v", userID, activity.ExternalID, err)
			continue
		}
		stored++
	}
	return stored, nil
}

// defaultLeaderboardLimit caps leaderboard length when the caller does not
// ask for one.
const defaultLeaderboardLimit = 50

// Leaderboard ranks challenge participants by total progress. Ties are
// broken by user id ascending so repeated calls render identically.
func (s *Service) Leaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, error) {
	if _, err := s.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultLeaderboardLimit {
		limit = defaultLeaderboardLimit
	}

	totals, err := s.progress.TotalsByUser(ctx, challengeID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}

	names, err := s.users.DisplayNames(ctx, ids)
	if err != nil {
		// Leaderboard still renders with placeholders when the directory is
		// unavailable; totals are the load-bearing part.
		s.logger.Printf("display name lookup failed (challenge=%s): %v", challengeID, err)
		names = map[string]string{}
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for i, t := range totals {
		name, ok := names[t.UserID]
		if !ok || name == "" {
			name = placeholderName
		}
		entries = append(entries, LeaderboardEntry{
			Rank:   i + 1,
			UserID: t.UserID,
			Name:   name,
			Total:  t.Total,
		})
	}
	return entries, nil
}
