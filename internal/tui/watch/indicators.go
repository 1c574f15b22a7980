package watch

import (
	"strings"
	"time"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Activity counts hub events per second over a sliding window and draws the
// window as a sparkline. The newest second is the last bucket.
type Activity struct {
	buckets   []int
	head      time.Time
	lastEvent time.Time
}

// NewActivity returns a window of the given number of one-second buckets.
func NewActivity(seconds int, now time.Time) Activity {
	if seconds < 1 {
		seconds = 1
	}
	return Activity{buckets: make([]int, seconds), head: now.Truncate(time.Second)}
}

// Advance shifts the window so its last bucket covers now.
func (a *Activity) Advance(now time.Time) {
	now = now.Truncate(time.Second)
	steps := int(now.Sub(a.head) / time.Second)
	if steps <= 0 {
		return
	}
	if steps >= len(a.buckets) {
		clear(a.buckets)
	} else {
		copy(a.buckets, a.buckets[steps:])
		clear(a.buckets[len(a.buckets)-steps:])
	}
	a.head = now
}

// Record counts one event at now.
func (a *Activity) Record(now time.Time) {
	a.Advance(now)
	a.buckets[len(a.buckets)-1]++
	a.lastEvent = now
}

// Total returns the number of events in the window.
func (a Activity) Total() int {
	n := 0
	for _, c := range a.buckets {
		n += c
	}
	return n
}

func (a Activity) LastEvent() time.Time { return a.lastEvent }

// Sparkline scales buckets against the busiest second. Empty seconds render
// as the lowest bar.
func (a Activity) Sparkline() string {
	peak := 0
	for _, c := range a.buckets {
		peak = max(peak, c)
	}
	var b strings.Builder
	for _, c := range a.buckets {
		level := 0
		if peak > 0 && c > 0 {
			level = 1 + (c*(len(sparkLevels)-2))/peak
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

func (a Activity) Render(theme Theme) string {
	if a.Total() == 0 {
		return theme.SparkIdle.Render(a.Sparkline())
	}
	return theme.SparkActive.Render(a.Sparkline())
}
