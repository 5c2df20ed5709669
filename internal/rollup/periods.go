// Package rollup implements the hierarchical summarisation pipeline and its
// downtime-aware scheduler. Raw turns condense into weekly summaries, weeks
// into months, months into years; each run also feeds the timeline index.
package rollup

import (
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
)

// midnight truncates t to the start of its calendar day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOffset returns the number of days since the most recent Monday
// (0 when t is a Monday).
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// lastWeekWindow returns the most recently completed Monday–Sunday window
// relative to now, as inclusive calendar days.
func lastWeekWindow(now time.Time) (start, end time.Time) {
	start = midnight(now).AddDate(0, 0, -(mondayOffset(now) + 7))
	end = start.AddDate(0, 0, 6)
	return start, end
}

// lastMonthWindow returns the most recently completed calendar month
// relative to now, as inclusive calendar days.
func lastMonthWindow(now time.Time) (start, end time.Time) {
	firstOfCurrent := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end = firstOfCurrent.AddDate(0, 0, -1)
	start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, end
}

// lastYearWindow returns the most recently completed calendar year relative
// to now, as inclusive calendar days.
func lastYearWindow(now time.Time) (start, end time.Time) {
	year := now.Year() - 1
	start = time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
	end = time.Date(year, time.December, 31, 0, 0, 0, 0, now.Location())
	return start, end
}

// periodWindow returns the most recently completed period of the given kind.
func periodWindow(kind memory.SummaryKind, now time.Time) (start, end time.Time) {
	switch kind {
	case memory.SummaryMonthly:
		return lastMonthWindow(now)
	case memory.SummaryYearly:
		return lastYearWindow(now)
	default:
		return lastWeekWindow(now)
	}
}
