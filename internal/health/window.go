package health

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/model"
)

// DefaultHistoricalWeeks is used when a caller asks for zero or fewer weeks.
const DefaultHistoricalWeeks = 4

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CurrentWindow returns the window from the most recent Friday through
// yesterday. On a Friday the window reaches back to the previous Friday, so
// it never collapses to zero days and never includes today.
func CurrentWindow(today time.Time) model.RollupPeriod {
	today = Day(today)
	back := daysBackToFriday(today.Weekday())
	return model.RollupPeriod{
		Start: today.AddDate(0, 0, -back),
		End:   today.AddDate(0, 0, -1),
	}
}

// daysBackToFriday is the distance from today to the Friday that opens the
// current window.
func daysBackToFriday(wd time.Weekday) int {
	switch wd {
	case time.Saturday:
		return 1
	case time.Sunday:
		return 2
	default:
		// Monday=0 .. Friday=4
		return int(wd-time.Monday) + 3
	}
}

// HistoricalWeeks returns up to n completed Friday→Thursday weeks that end
// strictly before yesterday, most recent first and numbered from 1.
func HistoricalWeeks(today time.Time, n int) []model.RollupPeriod {
	if n <= 0 {
		zap.L().Warn("health: non-positive historical week count, using default",
			zap.Int("requested", n),
			zap.Int("default", DefaultHistoricalWeeks),
		)
		n = DefaultHistoricalWeeks
	}

	yesterday := Day(today).AddDate(0, 0, -1)
	cursor := yesterday
	weeks := make([]model.RollupPeriod, 0, n)
	for len(weeks) < n {
		thursday := onOrBefore(cursor, time.Thursday)
		start := thursday.AddDate(0, 0, -6)
		cursor = start.AddDate(0, 0, -1)
		if !thursday.Before(yesterday) {
			// Current, incomplete week.
			continue
		}
		weeks = append(weeks, model.RollupPeriod{
			Start:      start,
			End:        thursday,
			WeekNumber: len(weeks) + 1,
		})
	}
	return weeks
}

func onOrBefore(d time.Time, wd time.Weekday) time.Time {
	diff := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -diff)
}

// CountSendingDays counts the days in [start, end] on which a client sends.
// Weekday-only clients skip Saturday and Sunday.
func CountSendingDays(start, end time.Time, weekendSending bool) int {
	start, end = Day(start), Day(end)
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if weekendSending || (d.Weekday() != time.Saturday && d.Weekday() != time.Sunday) {
			n++
		}
	}
	return n
}
