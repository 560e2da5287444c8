package submit

import (
	"math"
	"sort"
	"strconv"
)

// Leaderboard target distances in km.
var targetDistances = []float64{5, 10, 21.1, 42.2}

// ParseSplits extracts the sparse km -> elapsed-seconds map from event tags
// of the form ["split", "<km>", "<seconds>"]. Malformed tags are skipped.
func ParseSplits(tags [][]string) map[float64]int64 {
	splits := make(map[float64]int64)
	for _, tag := range tags {
		if len(tag) < 3 || tag[0] != "split" {
			continue
		}
		km, err := strconv.ParseFloat(tag[1], 64)
		if err != nil || km <= 0 {
			continue
		}
		secs, err := strconv.ParseInt(tag[2], 10, 64)
		if err != nil || secs <= 0 {
			continue
		}
		splits[km] = secs
	}
	return splits
}

// ParseStepCount extracts the optional ["steps", "<n>"] tag.
func ParseStepCount(tags [][]string) *int64 {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "steps" {
			n, err := strconv.ParseInt(tag[1], 10, 64)
			if err != nil || n < 0 {
				return nil
			}
			return &n
		}
	}
	return nil
}

// TargetTime estimates the elapsed time at targetKm. Preference order: an
// exact split, interpolation from the nearest lower split's average pace,
// extrapolation from overall average pace. The estimate is clamped to the
// total duration and only computable when the workout covered the target.
func TargetTime(splits map[float64]int64, targetKm, distanceKm float64, durationSeconds int64) *int64 {
	if distanceKm < targetKm || durationSeconds <= 0 {
		return nil
	}

	if secs, ok := splits[targetKm]; ok {
		clamped := min64(secs, durationSeconds)
		return &clamped
	}

	if km, secs, ok := nearestLowerSplit(splits, targetKm); ok {
		estimate := int64(math.Round(float64(secs) / km * targetKm))
		clamped := min64(estimate, durationSeconds)
		return &clamped
	}

	estimate := int64(math.Round(float64(durationSeconds) / distanceKm * targetKm))
	clamped := min64(estimate, durationSeconds)
	return &clamped
}

// TargetTimes computes all leaderboard target times for a workout.
func TargetTimes(splits map[float64]int64, distanceMeters float64, durationSeconds int64) (time5k, time10k, timeHalf, timeMarathon *int64) {
	distanceKm := distanceMeters / 1000
	results := make([]*int64, len(targetDistances))
	for i, target := range targetDistances {
		results[i] = TargetTime(splits, target, distanceKm, durationSeconds)
	}
	return results[0], results[1], results[2], results[3]
}

// nearestLowerSplit finds the greatest split km strictly below targetKm.
func nearestLowerSplit(splits map[float64]int64, targetKm float64) (km float64, secs int64, ok bool) {
	kms := make([]float64, 0, len(splits))
	for k := range splits {
		if k < targetKm {
			kms = append(kms, k)
		}
	}
	if len(kms) == 0 {
		return 0, 0, false
	}
	sort.Float64s(kms)
	best := kms[len(kms)-1]
	return best, splits[best], true
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
