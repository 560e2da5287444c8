package submit

import "fmt"

// maxIdleDuration is the longest a workout may run with zero distance.
const maxIdleDuration = 30 * 60 // seconds

// paceBounds are physical-plausibility limits per activity type. Pace is in
// seconds per km; a pace below the floor means impossibly fast.
type paceBounds struct {
	minPace     float64 // sec/km, floor
	maxPace     float64 // sec/km, ceiling
	maxDistance float64 // meters
	maxDuration int64   // seconds
}

var activityBounds = map[string]paceBounds{
	"running": {minPace: 120, maxPace: 900, maxDistance: 200_000, maxDuration: 24 * 3600},
	"walking": {minPace: 240, maxPace: 1800, maxDistance: 100_000, maxDuration: 24 * 3600},
	"hiking":  {minPace: 240, maxPace: 3600, maxDistance: 100_000, maxDuration: 24 * 3600},
	"cycling": {minPace: 45, maxPace: 600, maxDistance: 500_000, maxDuration: 24 * 3600},
}

// CheckPlausibility gates a submission on physical limits. A failure is a
// soft business outcome routed to the flagged path, never a transport error.
func CheckPlausibility(activityType string, distanceMeters float64, durationSeconds int64) (ok bool, reason string) {
	if distanceMeters > 0 && durationSeconds == 0 {
		return false, "distance recorded with zero duration"
	}
	if distanceMeters == 0 && durationSeconds > maxIdleDuration {
		return false, "no distance over a workout longer than 30 minutes"
	}

	bounds, known := activityBounds[activityType]
	if !known {
		// Unrecognized types passed the generic gates; nothing more to check.
		return true, ""
	}

	if distanceMeters > bounds.maxDistance {
		return false, fmt.Sprintf("distance %.0fm exceeds %s maximum", distanceMeters, activityType)
	}
	if durationSeconds > bounds.maxDuration {
		return false, fmt.Sprintf("duration %ds exceeds %s maximum", durationSeconds, activityType)
	}

	if distanceMeters > 0 && durationSeconds > 0 {
		pace := float64(durationSeconds) / (distanceMeters / 1000)
		if pace < bounds.minPace {
			return false, fmt.Sprintf("pace %.0fs/km too fast for %s", pace, activityType)
		}
		if pace > bounds.maxPace {
			return false, fmt.Sprintf("pace %.0fs/km too slow for %s", pace, activityType)
		}
	}

	return true, ""
}
