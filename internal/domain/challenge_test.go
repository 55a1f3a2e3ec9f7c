package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mayChallenge(scoring ScoringType) Challenge {
	return Challenge{
		ID:        "ch-1",
		Title:     "May Challenge",
		Type:      scoring,
		StartDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.May, 31, 23, 59, 59, 0, time.UTC),
		CreatorID: "user-1",
	}
}

func TestChallengeStatusLifecycle(t *testing.T) {
	c := mayChallenge(ScoringSteps)

	require.Equal(t, StatusUpcoming, c.Status(time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, StatusActive, c.Status(time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, StatusEnded, c.Status(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIncrementDistanceRounds(t *testing.T) {
	c := mayChallenge(ScoringDistance)
	a := Activity{Type: "Run", DistanceMeters: 5432.7}
	require.Equal(t, int64(5433), c.Increment(a))
}

func TestIncrementTimeUsesMovingSeconds(t *testing.T) {
	c := mayChallenge(ScoringTime)
	a := Activity{Type: "Walk", MovingTimeSeconds: 2400}
	require.Equal(t, int64(2400), c.Increment(a))
}

func TestIncrementElevationRounds(t *testing.T) {
	c := mayChallenge(ScoringElevation)
	a := Activity{Type: "Hike", ElevationGainMeters: 312.49}
	require.Equal(t, int64(312), c.Increment(a))
}

func TestIncrementCaloriesNilScoresZero(t *testing.T) {
	c := mayChallenge(ScoringCalories)
	require.Equal(t, int64(0), c.Increment(Activity{Type: "Run"}))

	cal := 451.6
	require.Equal(t, int64(452), c.Increment(Activity{Type: "Run", Calories: &cal}))
}

func TestIncrementUnknownScoringTypeScoresZero(t *testing.T) {
	c := mayChallenge(ScoringType("swimming"))
	a := Activity{Type: "Run", DistanceMeters: 5000, MovingTimeSeconds: 1500}
	require.Equal(t, int64(0), c.Increment(a))
}

func TestDailyTotalsFiltersAndGroups(t *testing.T) {
	c := mayChallenge(ScoringDistance)

	activities := []Activity{
		{Type: "Run", DistanceMeters: 5000, StartDateLocal: "2024-05-01T07:30:00Z"},
		{Type: "Walk", DistanceMeters: 2000, StartDateLocal: "2024-05-01T19:00:00Z"},
		{Type: "Ride", DistanceMeters: 40000, StartDateLocal: "2024-05-01T12:00:00Z"},
		{Type: "Hike", DistanceMeters: 8000, StartDateLocal: "2024-05-02T09:00:00Z"},
		{Type: "Run", DistanceMeters: 3000, StartDateLocal: "bogus"},
		{Type: "Run", DistanceMeters: 3000},
	}

	totals := c.DailyTotals(activities)

	require.Len(t, totals, 2)
	require.Equal(t, int64(7000), totals["2024-05-01"])
	require.Equal(t, int64(8000), totals["2024-05-02"])
}

func TestDailyTotalsIsPure(t *testing.T) {
	c := mayChallenge(ScoringSteps)
	cadence := 160.0
	activities := []Activity{
		{Type: "Run", MovingTimeSeconds: 1800, AverageCadence: &cadence, StartDateLocal: "2024-05-03T06:00:00Z"},
	}

	first := c.DailyTotals(activities)
	second := c.DailyTotals(activities)
	require.Equal(t, first, second)
	require.Equal(t, int64(4800), first["2024-05-03"])
}

func TestDayKeyValidation(t *testing.T) {
	require.Equal(t, "2024-05-01", Activity{StartDateLocal: "2024-05-01T07:30:00Z"}.DayKey())
	require.Equal(t, "", Activity{StartDateLocal: "2024-13-01T00:00:00Z"}.DayKey())
	require.Equal(t, "", Activity{StartDateLocal: "short"}.DayKey())
	require.Equal(t, "", Activity{}.DayKey())
}

func TestAmbulatoryMatching(t *testing.T) {
	require.True(t, Activity{Type: "Run"}.Ambulatory())
	require.True(t, Activity{Type: "TrailRun"}.Ambulatory())
	require.True(t, Activity{Type: "walk"}.Ambulatory())
	require.True(t, Activity{Type: "Hike"}.Ambulatory())
	require.False(t, Activity{Type: "Ride"}.Ambulatory())
	require.False(t, Activity{Type: "Swim"}.Ambulatory())
}

func TestHasMember(t *testing.T) {
	c := mayChallenge(ScoringSteps)
	c.Participants = []string{"user-1", "user-2"}

	require.True(t, c.HasMember("user-2"))
	require.False(t, c.HasMember("user-3"))
}
