package submit

// Pace thresholds for auto-classification, in seconds per km.
const (
	runningPaceCeiling = 480 // faster than 8:00/km is running
	walkingPaceFloor   = 720 // slower than 12:00/km is walking
)

// genericTypes are activity labels that carry no useful classification.
var genericTypes = map[string]bool{
	"":        true,
	"workout": true,
	"other":   true,
	"generic": true,
	"unknown": true,
}

// Classify resolves a generic or unlabeled activity type from pace. Labeled
// types pass through unchanged; the classified type drives every later stage
// and is what gets stored.
func Classify(activityType string, distanceMeters float64, durationSeconds int64) string {
	if !genericTypes[activityType] {
		return activityType
	}
	if distanceMeters <= 0 || durationSeconds <= 0 {
		return activityType
	}

	pace := float64(durationSeconds) / (distanceMeters / 1000) // sec per km
	switch {
	case pace < runningPaceCeiling:
		return "running"
	case pace > walkingPaceFloor:
		return "walking"
	case distanceMeters >= 1000:
		// Ambiguous band: most tracked workouts over a km are runs.
		return "running"
	default:
		return activityType
	}
}
