package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubChallenges struct {
	items map[string]Challenge
}

func newStubChallenges() *stubChallenges {
	return &stubChallenges{items: map[string]Challenge{}}
}

func (s *stubChallenges) Get(_ context.Context, id string) (*Challenge, error) {
	c, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *stubChallenges) Create(_ context.Context, c Challenge) error {
	s.items[c.ID] = c
	return nil
}

func (s *stubChallenges) Update(_ context.Context, c Challenge) error {
	s.items[c.ID] = c
	return nil
}

func (s *stubChallenges) Delete(_ context.Context, id string) error {
	delete(s.items, id)
	return nil
}

func (s *stubChallenges) List(_ context.Context, _ ChallengeFilter, _ *Cursor, _ int) ([]Challenge, *Cursor, error) {
	out := make([]Challenge, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, c)
	}
	return out, nil, nil
}

func (s *stubChallenges) Join(_ context.Context, id, userID string) error {
	c := s.items[id]
	if !c.HasMember(userID) {
		c.Participants = append(c.Participants, userID)
	}
	s.items[id] = c
	return nil
}

func (s *stubChallenges) Leave(_ context.Context, id, userID string) error {
	c := s.items[id]
	kept := c.Participants[:0]
	for _, p := range c.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	s.items[id] = c
	return nil
}

type stubProgress struct {
	rows       map[string]int64 // keyed challenge|user|day
	failDays   map[string]bool
	totals     []UserTotal
	totalLimit int
	summaries  []SyncSummary
}

func newStubProgress() *stubProgress {
	return &stubProgress{rows: map[string]int64{}, failDays: map[string]bool{}}
}

func (s *stubProgress) UpsertDay(_ context.Context, row ProgressRow) error {
	if s.failDays[row.Day] {
		return errors.New("write refused")
	}
	s.rows[row.ChallengeID+"|"+row.UserID+"|"+row.Day] = row.Value
	return nil
}

func (s *stubProgress) TotalsByUser(_ context.Context, _ string, limit int) ([]UserTotal, error) {
	s.totalLimit = limit
	if limit > 0 && limit < len(s.totals) {
		return s.totals[:limit], nil
	}
	return s.totals, nil
}

func (s *stubProgress) RecordSync(_ context.Context, summary SyncSummary) error {
	s.summaries = append(s.summaries, summary)
	return nil
}

type stubCache struct {
	stored map[string]CachedActivity
}

func (s *stubCache) UpsertCached(_ context.Context, _ string, a CachedActivity) error {
	if s.stored == nil {
		s.stored = map[string]CachedActivity{}
	}
	s.stored[a.ExternalID] = a
	return nil
}

type stubDirectory struct {
	names map[string]string
	err   error
}

func (s *stubDirectory) DisplayNames(_ context.Context, _ []string) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.names, nil
}

type stubCredentials struct {
	token string
	err   error
}

func (s *stubCredentials) EnsureAccessToken(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

type stubFetcher struct {
	activities []Activity
	raw        []CachedActivity
	err        error
	calls      int
}

func (s *stubFetcher) FetchWindow(_ context.Context, _ string, _, _ int64) ([]Activity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.activities, nil
}

func (s *stubFetcher) FetchRaw(_ context.Context, _ string, _, _ int64) ([]CachedActivity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

type harness struct {
	challenges *stubChallenges
	progress   *stubProgress
	cache      *stubCache
	users      *stubDirectory
	creds      *stubCredentials
	fetcher    *stubFetcher
	service    *Service
}

func newHarness() *harness {
	h := &harness{
		challenges: newStubChallenges(),
		progress:   newStubProgress(),
		cache:      &stubCache{},
		users:      &stubDirectory{names: map[string]string{}},
		creds:      &stubCredentials{token: "access"},
		fetcher:    &stubFetcher{},
	}
	h.service = NewService(h.challenges, h.progress, h.cache, h.users, h.creds, h.fetcher)
	return h
}

func (h *harness) seed(id string, scoring ScoringType, members ...string) {
	creator := "creator"
	if len(members) > 0 {
		creator = members[0]
	}
	h.challenges.items[id] = Challenge{
		ID:           id,
		Title:        "Seeded",
		Type:         scoring,
		StartDate:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
		CreatorID:    creator,
		Participants: members,
	}
}

func TestCreateChallengeValidatesInput(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.service.CreateChallenge(ctx, CreateChallengeInput{
		Title:     "",
		Type:      ScoringSteps,
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)

	_, err = h.service.CreateChallenge(ctx, CreateChallengeInput{
		Title:     "Backwards",
		Type:      ScoringSteps,
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now(),
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)

	_, err = h.service.CreateChallenge(ctx, CreateChallengeInput{
		Title:     "Strange",
		Type:      ScoringType("swimming"),
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestCreateChallengeCreatorAutoJoins(t *testing.T) {
	h := newHarness()

	c, err := h.service.CreateChallenge(context.Background(), CreateChallengeInput{
		Title:     "May Steps",
		Type:      ScoringSteps,
		StartDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
		CreatorID: "user-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, []string{"user-1"}, c.Participants)
}

func TestSyncChallengeReplaceSemantics(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringDistance, "user-1")
	h.fetcher.activities = []Activity{
		{Type: "Run", DistanceMeters: 5000, StartDateLocal: "2024-05-01T07:00:00Z"},
		{Type: "Walk", DistanceMeters: 2000, StartDateLocal: "2024-05-01T19:00:00Z"},
		{Type: "Hike", DistanceMeters: 8000, StartDateLocal: "2024-05-02T09:00:00Z"},
	}

	first, err := h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, first.DaysUpdated)
	require.Equal(t, 3, first.ActivitiesFetched)
	require.Equal(t, int64(7000), h.progress.rows["ch-1|user-1|2024-05-01"])
	require.Equal(t, int64(8000), h.progress.rows["ch-1|user-1|2024-05-02"])

	// A second run over the same window rewrites the same values.
	second, err := h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int64(7000), h.progress.rows["ch-1|user-1|2024-05-01"])
	require.Len(t, h.progress.rows, 2)
}

func TestSyncChallengeUnknownChallenge(t *testing.T) {
	h := newHarness()

	_, err := h.service.SyncChallenge(context.Background(), "missing", "user-1")
	require.ErrorIs(t, err, ErrChallengeNotFound)
	require.Zero(t, h.fetcher.calls)
}

func TestSyncChallengeRequiresMembership(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "member-1")

	_, err := h.service.SyncChallenge(context.Background(), "ch-1", "outsider")
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Zero(t, h.fetcher.calls)
}

func TestSyncChallengeCredentialErrors(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "user-1")
	h.creds.err = ErrNotConnected

	_, err := h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.ErrorIs(t, err, ErrNotConnected)

	h.creds.err = ErrRefreshFailed
	_, err = h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.ErrorIs(t, err, ErrRefreshFailed)
}

func TestSyncChallengePartialUpsertFailure(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringDistance, "user-1")
	h.fetcher.activities = []Activity{
		{Type: "Run", DistanceMeters: 5000, StartDateLocal: "2024-05-01T07:00:00Z"},
		{Type: "Hike", DistanceMeters: 8000, StartDateLocal: "2024-05-02T09:00:00Z"},
	}
	h.progress.failDays["2024-05-01"] = true

	result, err := h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.DaysUpdated)
	require.Equal(t, 2, result.ActivitiesFetched)
	require.Equal(t, int64(8000), h.progress.rows["ch-1|user-1|2024-05-02"])
}

func TestSyncChallengeRecordsSummary(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringTime, "user-1")
	h.fetcher.activities = []Activity{
		{Type: "Walk", MovingTimeSeconds: 2400, StartDateLocal: "2024-05-05T08:00:00Z"},
	}

	_, err := h.service.SyncChallenge(context.Background(), "ch-1", "user-1")
	require.NoError(t, err)
	require.Len(t, h.progress.summaries, 1)
	require.Equal(t, "ch-1", h.progress.summaries[0].ChallengeID)
	require.Equal(t, 1, h.progress.summaries[0].DaysUpdated)
}

func TestSyncActivitiesCachesRawRecords(t *testing.T) {
	h := newHarness()
	h.fetcher.raw = []CachedActivity{
		{ExternalID: "100", Source: "strava", Type: "Run"},
		{ExternalID: "101", Source: "strava", Type: "Ride"},
	}

	stored, err := h.service.SyncActivities(context.Background(), "user-1", 1000, 2000)
	require.NoError(t, err)
	require.Equal(t, 2, stored)
	require.Len(t, h.cache.stored, 2)
}

func TestLeaderboardRanksAndPlaceholders(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "user-1")
	h.progress.totals = []UserTotal{
		{UserID: "user-2", Total: 9000},
		{UserID: "user-1", Total: 5100},
		{UserID: "user-3", Total: 5100},
	}
	h.users.names = map[string]string{"user-1": "Ada"}

	entries, err := h.service.Leaderboard(context.Background(), "ch-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 1, entries[0].Rank)
	require.Equal(t, "user-2", entries[0].UserID)
	require.Equal(t, "Unknown", entries[0].Name)
	require.Equal(t, "Ada", entries[1].Name)
	require.Equal(t, 50, h.progress.totalLimit)
}

func TestLeaderboardSurvivesDirectoryFailure(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "user-1")
	h.progress.totals = []UserTotal{{UserID: "user-1", Total: 100}}
	h.users.err = errors.New("directory down")

	entries, err := h.service.Leaderboard(context.Background(), "ch-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Unknown", entries[0].Name)
}

func TestLeaderboardCapsLimit(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "user-1")

	_, err := h.service.Leaderboard(context.Background(), "ch-1", 500)
	require.NoError(t, err)
	require.Equal(t, 50, h.progress.totalLimit)
}

func TestUpdateChallengeCreatorOnly(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "owner")

	_, err := h.service.UpdateChallenge(context.Background(), "ch-1", "intruder", UpdateChallengeInput{Title: "Hijacked"})
	require.ErrorIs(t, err, ErrNotAuthorized)

	updated, err := h.service.UpdateChallenge(context.Background(), "ch-1", "owner", UpdateChallengeInput{Title: "Renamed"})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
}

func TestDeleteChallengeCreatorOnly(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "owner")

	require.ErrorIs(t, h.service.DeleteChallenge(context.Background(), "ch-1", "intruder"), ErrNotAuthorized)
	require.NoError(t, h.service.DeleteChallenge(context.Background(), "ch-1", "owner"))
	require.Empty(t, h.challenges.items)
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "owner")
	ctx := context.Background()

	require.NoError(t, h.service.JoinChallenge(ctx, "ch-1", "user-2"))
	require.NoError(t, h.service.JoinChallenge(ctx, "ch-1", "user-2"))
	require.Equal(t, []string{"owner", "user-2"}, h.challenges.items["ch-1"].Participants)

	require.NoError(t, h.service.LeaveChallenge(ctx, "ch-1", "user-2"))
	require.NoError(t, h.service.LeaveChallenge(ctx, "ch-1", "user-2"))
	require.Equal(t, []string{"owner"}, h.challenges.items["ch-1"].Participants)
}

func TestParticipantsResolveNames(t *testing.T) {
	h := newHarness()
	h.seed("ch-1", ScoringSteps, "user-1", "user-2")
	h.users.names = map[string]string{"user-1": "Ada"}

	members, err := h.service.Participants(context.Background(), "ch-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "Ada", members[0].Name)
	require.Equal(t, "Unknown", members[1].Name)
}
