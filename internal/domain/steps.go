package domain

import (
	"math"
	"strings"
)

// Average stride lengths used when no cadence data is available. Per-user
// calibration would beat these constants, but most records carry enough
// distance data for the estimate to stay in a plausible range.
const (
	stepLengthRunMeters  = 1.20
	stepLengthWalkMeters = 0.78
)

// EstimateSteps derives a step count for an activity. Cadence is preferred
// when present because it reflects actual gait; the distance fallback covers
// the majority of records, which lack cadence for non-running activities.
// The result is best-effort, never authoritative.
func EstimateSteps(a Activity) int64 {
	if steps := stepsFromCadence(a.AverageCadence, a.MovingTimeSeconds); steps > 0 {
		return steps
	}
	return stepsFromDistance(a.DistanceMeters, inferStrideMode(a.Type))
}

// stepsFromCadence converts average cadence into total steps. Upstream
// devices report cadence either as steps/min or as per-leg strides/min; a
// value under 100 is assumed per-leg and doubled. The true unit is not
// recoverable from the record, so this stays a heuristic.
func stepsFromCadence(avgCadence *float64, movingSeconds int64) int64 {
	if avgCadence == nil || *avgCadence <= 0 || movingSeconds <= 0 {
		return 0
	}
	spm := *avgCadence
	if spm < 100 {
		spm *= 2
	}
	minutes := float64(movingSeconds) / 60.0
	return int64(math.Round(spm * minutes))
}

func stepsFromDistance(distanceMeters float64, mode string) int64 {
	if distanceMeters <= 0 {
		return 0
	}
	stepLength := stepLengthWalkMeters
	if mode == "run" {
		stepLength = stepLengthRunMeters
	}
	return int64(math.Round(distanceMeters / stepLength))
}

// inferStrideMode classifies an activity label into a stride mode. Walk is
// the default for unrecognized types.
func inferStrideMode(activityType string) string {
	t := strings.ToLower(activityType)
	if strings.Contains(t, "run") {
		return "run"
	}
	return "walk"
}
