// Package activity holds the pure classification functions behind the
// sleep/activity analysis endpoints. They operate on aggregates and are
// independent of the storage engine.
package activity

import (
	"math"
	"time"

	"roommon/internal/model"
)

// Score is the percentage of readings in a window that showed motion.
func Score(motionReadings, totalReadings int64) float64 {
	if totalReadings == 0 {
		return 0
	}
	return float64(motionReadings) / float64(totalReadings) * 100.0
}

// Level buckets an activity score into the rest classification used by the
// dashboard.
func Level(score float64) string {
	switch {
	case score < 20.0:
		return "deep_sleep"
	case score < 40.0:
		return "light_sleep"
	case score < 60.0:
		return "restless"
	default:
		return "active"
	}
}

// RestQuality is the human-facing description of a score. Less motion
// during a sleep window means better rest.
func RestQuality(score float64) string {
	switch {
	case score < 20.0:
		return "Excellent"
	case score < 40.0:
		return "Good"
	case score < 60.0:
		return "Fair"
	default:
		return "Poor"
	}
}

// LongestStill returns the longest contiguous run of motionless readings,
// in wall-clock minutes. readings must be ordered ascending by timestamp. A
// run still open at the end of the window extends to windowEnd.
func LongestStill(readings []model.SensorReading, windowEnd time.Time) int64 {
	var longest int64
	var stillStart *time.Time
	for _, r := range readings {
		if !r.Motion {
			if stillStart == nil {
				ts := r.Timestamp
				stillStart = &ts
			}
			continue
		}
		if stillStart != nil {
			mins := int64(r.Timestamp.Sub(*stillStart).Minutes())
			if mins > longest {
				longest = mins
			}
			stillStart = nil
		}
	}
	if stillStart != nil {
		mins := int64(windowEnd.Sub(*stillStart).Minutes())
		if mins > longest {
			longest = mins
		}
	}
	return longest
}

// Round2 rounds to two decimals for the JSON aggregates.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
