package period

import (
	"fmt"
	"time"
)

// Span is an inclusive pair of YYYY-MM-DD bounds.
type Span struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Bounds returns the first and last day of the period identified by key.
func Bounds(t Type, key string) (Span, error) {
	var start, end time.Time
	switch t {
	case Weekly:
		thu, err := WeekThursday(key)
		if err != nil {
			return Span{}, err
		}
		start, end = thu.AddDate(0, 0, -3), thu.AddDate(0, 0, 3)
	case Monthly:
		y, m, err := parseMonthKey(key)
		if err != nil {
			return Span{}, err
		}
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
	case Quarterly:
		y, q, err := parseQuarterKey(key)
		if err != nil {
			return Span{}, err
		}
		start = time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, -1)
	case Yearly:
		y, err := parseYearKey(key)
		if err != nil {
			return Span{}, err
		}
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return Span{}, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return Span{Start: FormatDate(start), End: FormatDate(end)}, nil
}

// Range returns the bounds of the period of type t containing date.
func Range(t Type, date string) (Span, error) {
	key, err := t.Key(date)
	if err != nil {
		return Span{}, err
	}
	return Bounds(t, key)
}

// WeekRange returns Monday through Sunday of the ISO week containing date.
func WeekRange(date string) (Span, error) { return Range(Weekly, date) }

// MonthRange returns the first and last day of date's month.
func MonthRange(date string) (Span, error) { return Range(Monthly, date) }

// QuarterRange returns the first and last day of date's quarter.
func QuarterRange(date string) (Span, error) { return Range(Quarterly, date) }

// YearRange returns January 1 and December 31 of date's year.
func YearRange(date string) (Span, error) { return Range(Yearly, date) }
