package routing

import "math"

const (
	// WalkingMetersPerMinute is an average adult walking pace.
	WalkingMetersPerMinute = 80.0
	// DefaultSpeedMps is ~28.8 km/h, a typical city driving speed.
	DefaultSpeedMps = 8.0
)

// WalkMinutes rounds up the minutes needed to walk meters at pace meters
// per minute. A non-positive pace selects WalkingMetersPerMinute.
func WalkMinutes(meters, pace float64) int {
	if meters <= 0 {
		return 0
	}
	if pace <= 0 {
		pace = WalkingMetersPerMinute
	}
	return int(math.Ceil(meters / pace))
}

// EstimateSeconds is the naive duration for meters at speedMps, used when no
// routing engine answered.
func EstimateSeconds(meters, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	return meters / speedMps
}
