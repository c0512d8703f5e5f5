package engine

import (
	"math"
	"time"
)

// Decay maps time since last access to a staleness score on a logistic
// curve. Calibration: ~0.33 after 24h of inactivity, ~0.95 after a week.
// The ceiling keeps every record theoretically retrievable; the score never
// reaches 1.
//
// Pure and deterministic: the same (lastAccess, now) pair always yields the
// same score, which makes decay refresh idempotent under last-write-wins.
const (
	decayCeiling      = 0.95
	decayMidpointHrs  = 36.0
	decaySteepnessHrs = 20.0
)

func Decay(lastAccess, now time.Time) float64 {
	hours := now.Sub(lastAccess).Hours()
	if hours < 0 {
		hours = 0
	}
	return decayCeiling / (1 + math.Exp(-(hours-decayMidpointHrs)/decaySteepnessHrs))
}
