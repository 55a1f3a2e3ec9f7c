package strava

import "example.com/challenge/internal/domain"

// Normalize maps an upstream record into the canonical activity record.
// Pure and total: missing numeric fields become zero, optional fields stay
// nil. All upstream schema variability is absorbed here.
func Normalize(raw RawActivity) domain.Activity {
	act := domain.Activity{
		Type:           raw.Type,
		StartDateLocal: raw.StartDateLocal,
	}
	if raw.Distance > 0 {
		act.DistanceMeters = raw.Distance
	}
	if raw.MovingTime > 0 {
		act.MovingTimeSeconds = raw.MovingTime
	}
	if raw.TotalElevationGain > 0 {
		act.ElevationGainMeters = raw.TotalElevationGain
	}
	if raw.AverageCadence != nil {
		cadence := *raw.AverageCadence
		act.AverageCadence = &cadence
	}
	if raw.Calories != nil {
		calories := *raw.Calories
		act.Calories = &calories
	}
	return act
}
