package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 0, Percent(3, 0))
	assert.Equal(t, 0, Percent(0, 5))
	assert.Equal(t, 50, Percent(2, 4))
	assert.Equal(t, 60, Percent(3, 5))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(5, 5))
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestComputeStreak(t *testing.T) {
	now := day(t, "2021-03-10").Add(15 * time.Hour)

	t.Run("no completions", func(t *testing.T) {
		streak, last := ComputeStreak(nil, now)
		assert.Equal(t, 0, streak)
		assert.Empty(t, last)
	})

	t.Run("consecutive days ending today", func(t *testing.T) {
		days := []time.Time{day(t, "2021-03-10"), day(t, "2021-03-09"), day(t, "2021-03-08")}
		streak, last := ComputeStreak(days, now)
		assert.Equal(t, 3, streak)
		assert.Equal(t, "2021-03-10", last)
	})

	t.Run("streak ending yesterday still counts", func(t *testing.T) {
		days := []time.Time{day(t, "2021-03-09"), day(t, "2021-03-08")}
		streak, last := ComputeStreak(days, now)
		assert.Equal(t, 2, streak)
		assert.Equal(t, "2021-03-09", last)
	})

	t.Run("gap breaks the streak", func(t *testing.T) {
		days := []time.Time{day(t, "2021-03-10"), day(t, "2021-03-08"), day(t, "2021-03-07")}
		streak, _ := ComputeStreak(days, now)
		assert.Equal(t, 1, streak)
	})

	t.Run("stale streak resets to zero", func(t *testing.T) {
		days := []time.Time{day(t, "2021-03-05"), day(t, "2021-03-04")}
		streak, last := ComputeStreak(days, now)
		assert.Equal(t, 0, streak)
		assert.Empty(t, last)
	})
}
