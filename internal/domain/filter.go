package domain

import (
	"fmt"
	"time"
)

// StatusFilter restricts a query by issue state.
type StatusFilter string

const (
	StatusOpen   StatusFilter = "open"
	StatusClosed StatusFilter = "closed"
	StatusAll    StatusFilter = "all"
)

// ParseStatusFilter validates s. An empty string means open.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "":
		return StatusOpen, nil
	case StatusOpen, StatusClosed, StatusAll:
		return StatusFilter(s), nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// DateFilter names a creation-date window.
type DateFilter string

const (
	DateThisWeek  DateFilter = "this_week"
	DateLastWeek  DateFilter = "last_week"
	DateThisMonth DateFilter = "this_month"
	DateLastMonth DateFilter = "last_month"
	DateAll       DateFilter = "all"
)

// ParseDateFilter validates s. An empty string means this_week.
func ParseDateFilter(s string) (DateFilter, error) {
	switch DateFilter(s) {
	case "":
		return DateThisWeek, nil
	case DateThisWeek, DateLastWeek, DateThisMonth, DateLastMonth, DateAll:
		return DateFilter(s), nil
	default:
		return "", fmt.Errorf("unknown date filter %q", s)
	}
}

// DateLayout is the day format the tracker expects in date filters.
const DateLayout = "2006-01-02"

// DateRange is an inclusive day range. A nil End means open-ended.
type DateRange struct {
	Start time.Time
	End   *time.Time
}

// StartDay formats Start as YYYY-MM-DD.
func (r DateRange) StartDay() string {
	return r.Start.Format(DateLayout)
}

// EndDay formats End as YYYY-MM-DD, or "" when the range is open-ended.
func (r DateRange) EndDay() string {
	if r.End == nil {
		return ""
	}
	return r.End.Format(DateLayout)
}

// ComputeDateRange resolves filter relative to now. Weeks start on Monday.
// this_week and last_week are closed Monday to Sunday ranges; this_month and
// last_month only carry a lower bound. all and unknown filters return nil.
func ComputeDateRange(filter DateFilter, now time.Time) *DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monday := today.AddDate(0, 0, -daysSinceMonday(today))

	switch filter {
	case DateThisWeek:
		end := monday.AddDate(0, 0, 6)
		return &DateRange{Start: monday, End: &end}
	case DateLastWeek:
		start := monday.AddDate(0, 0, -7)
		end := monday.AddDate(0, 0, -1)
		return &DateRange{Start: start, End: &end}
	case DateThisMonth:
		return &DateRange{Start: time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())}
	case DateLastMonth:
		// Lower bound only, so this window also includes the current month.
		return &DateRange{Start: time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, today.Location())}
	default:
		return nil
	}
}

func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
