package strava

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeMapsFields(t *testing.T) {
	cadence := 84.5
	calories := 512.0
	raw := RawActivity{
		ID:                 7,
		Type:               "Run",
		Distance:           5432.7,
		MovingTime:         1800,
		TotalElevationGain: 120.5,
		AverageCadence:     &cadence,
		Calories:           &calories,
		StartDateLocal:     "2024-05-01T07:30:00Z",
	}

	act := Normalize(raw)
	require.Equal(t, "Run", act.Type)
	require.Equal(t, 5432.7, act.DistanceMeters)
	require.Equal(t, int64(1800), act.MovingTimeSeconds)
	require.Equal(t, 120.5, act.ElevationGainMeters)
	require.NotNil(t, act.AverageCadence)
	require.Equal(t, 84.5, *act.AverageCadence)
	require.NotNil(t, act.Calories)
	require.Equal(t, "2024-05-01T07:30:00Z", act.StartDateLocal)
}

func TestNormalizeZeroesMissingFields(t *testing.T) {
	act := Normalize(RawActivity{Type: "Walk", Distance: -10, MovingTime: -5})

	require.Equal(t, "Walk", act.Type)
	require.Zero(t, act.DistanceMeters)
	require.Zero(t, act.MovingTimeSeconds)
	require.Zero(t, act.ElevationGainMeters)
	require.Nil(t, act.AverageCadence)
	require.Nil(t, act.Calories)
}

func TestNormalizeCopiesOptionalPointers(t *testing.T) {
	cadence := 90.0
	raw := RawActivity{Type: "Run", AverageCadence: &cadence}

	act := Normalize(raw)
	cadence = 999

	require.Equal(t, 90.0, *act.AverageCadence)
}
