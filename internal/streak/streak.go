// Package streak derives contribution streaks from a GitHub contribution
// calendar.
//
// A streak is a run of consecutive calendar days that each have at least one
// contribution. Both values are recomputed from the full calendar on every
// call; nothing is carried over from earlier results.
package streak

import (
	"sort"
	"time"

	"github.com/sakif/easgit/internal/model"
)

// Result holds the two streak values stored on model.Stats.
type Result struct {
	Current int
	Longest int
}

// Calculate returns the current and longest streak for days as seen on today.
//
// days may arrive in any order and may contain the same date twice (counts
// are summed). Dates are compared as UTC calendar dates; a date missing from the
// input counts as a day without contributions.
//
// The current streak starts on today if today has contributions, otherwise on
// yesterday. The one-day grace covers the viewer's day not having any
// contribution recorded yet because of timezone lag.
func Calculate(days []model.ContributionDay, today time.Time) Result {
	if len(days) == 0 {
		return Result{}
	}

	counts := make(map[time.Time]int, len(days))
	for _, d := range days {
		counts[dateOf(d.Date)] += d.Count
	}

	return Result{
		Current: current(counts, dateOf(today)),
		Longest: longest(counts),
	}
}

func current(counts map[time.Time]int, today time.Time) int {
	day := today
	if counts[day] <= 0 {
		day = day.AddDate(0, 0, -1)
		if counts[day] <= 0 {
			return 0
		}
	}

	n := 0
	for counts[day] > 0 {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func longest(counts map[time.Time]int) int {
	dates := make([]time.Time, 0, len(counts))
	for d, c := range counts {
		if c > 0 {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	best, run := 0, 0
	var prev time.Time
	for i, d := range dates {
		if i > 0 && prev.AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = d
	}
	return best
}

// dateOf truncates t to midnight of its UTC calendar date. GitHub calendar
// dates are UTC midnights, so the same instant gives the same date on any host.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
