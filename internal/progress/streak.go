package progress

import (
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// Percent derive the completion percentage from the completed set size,
// rounded to the nearest integer
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// ComputeStreak count consecutive qualifying days ending today or yesterday,
// given the learner's distinct completion days in descending order. A streak
// whose last qualifying day is older than yesterday has been broken.
func ComputeStreak(days []time.Time, now time.Time) (int, string) {
	if len(days) == 0 {
		return 0, ""
	}

	today := now.UTC().Truncate(24 * time.Hour)
	head := days[0].UTC().Truncate(24 * time.Hour)
	if today.Sub(head) > 24*time.Hour {
		return 0, ""
	}

	streak := 1
	prev := head
	for _, d := range days[1:] {
		day := d.UTC().Truncate(24 * time.Hour)
		if prev.Sub(day) != 24*time.Hour {
			break
		}
		streak++
		prev = day
	}
	return streak, head.Format(dayLayout)
}
