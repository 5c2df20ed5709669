package rollup

import (
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
)

// DefaultDowntimeThreshold is the downtime span beyond which a catch-up
// weekly rollup is triggered regardless of boundary crossings.
const DefaultDowntimeThreshold = 24 * time.Hour

// MissedJobs computes which rollup jobs a process that was down between
// lastShutdown and now must run immediately on startup, before scheduling
// future triggers.
//
//   - Weekly: triggered when the downtime exceeds threshold, or when a week
//     boundary (the midnight that ends a Sunday) fell strictly inside the
//     downtime interval.
//   - Monthly: triggered when now is in a different calendar month than
//     lastShutdown.
//   - Yearly: triggered when now is in a different calendar year.
//
// The function is pure; it reads no clocks and no storage.
func MissedJobs(lastShutdown, now time.Time, threshold time.Duration) []memory.SummaryKind {
	if threshold <= 0 {
		threshold = DefaultDowntimeThreshold
	}

	var jobs []memory.SummaryKind
	if now.Sub(lastShutdown) > threshold || weekBoundaryInside(lastShutdown, now) {
		jobs = append(jobs, memory.SummaryWeekly)
	}
	if lastShutdown.Year() != now.Year() || lastShutdown.Month() != now.Month() {
		jobs = append(jobs, memory.SummaryMonthly)
	}
	if lastShutdown.Year() != now.Year() {
		jobs = append(jobs, memory.SummaryYearly)
	}
	return jobs
}

// weekBoundaryInside reports whether a Sunday→Monday midnight lies strictly
// between from and to.
func weekBoundaryInside(from, to time.Time) bool {
	if !to.After(from) {
		return false
	}
	// The first week boundary after from: midnight of the Monday following
	// from's week position.
	daysToMonday := 7 - mondayOffset(from)
	boundary := midnight(from).AddDate(0, 0, daysToMonday)
	return boundary.After(from) && boundary.Before(to)
}
