// Package classify decides whether a post is old enough to delete.
package classify

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// MaxDays is the largest threshold a time.Duration can hold. Any larger
// threshold keeps every post.
const MaxDays = int(math.MaxInt64 / int64(day))

// Action is the outcome of classifying a single post.
type Action int

const (
	Keep Action = iota
	Delete
)

func (a Action) String() string {
	switch a {
	case Delete:
		return "delete"
	default:
		return "keep"
	}
}

// Classify returns Delete when the post is strictly older than maxAgeDays
// relative to now. A post whose age equals the threshold exactly is kept.
// Negative thresholds are treated as zero.
func Classify(createdAt, now time.Time, maxAgeDays int) Action {
	if maxAgeDays < 0 {
		maxAgeDays = 0
	}
	if maxAgeDays > MaxDays {
		return Keep
	}
	if Age(createdAt, now) > time.Duration(maxAgeDays)*day {
		return Delete
	}
	return Keep
}

// Age returns how long before now the post was created. Posts stamped in
// the future have age zero.
func Age(createdAt, now time.Time) time.Duration {
	age := now.Sub(createdAt)
	if age < 0 {
		return 0
	}
	return age
}

// Days returns the whole number of days in d, rounded down.
func Days(d time.Duration) int {
	return int(d / day)
}
