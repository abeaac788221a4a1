// Package period computes canonical period keys for journal dates.
//
// Keys are fixed-width strings, so lexical order equals chronological order:
//
//	weekly     2026-W05   (ISO-8601 week, week-year of the week's Thursday)
//	monthly    2026-01
//	quarterly  2026-Q1
//	yearly     2026
//
// All functions are pure and operate on YYYY-MM-DD date strings in UTC.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the layout of journal date strings.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate indicates a date string is not a valid YYYY-MM-DD date.
	ErrInvalidDate = errors.New("period: invalid date, expected YYYY-MM-DD")

	// ErrInvalidKey indicates a period key does not match its type's format.
	ErrInvalidKey = errors.New("period: invalid period key")

	// ErrUnknownType indicates an unrecognized period type.
	ErrUnknownType = errors.New("period: unknown period type")
)

// Type is the closed set of rollup period types.
type Type int

const (
	Weekly Type = iota + 1
	Monthly
	Quarterly
	Yearly
)

// Types lists every period type from narrowest to widest.
var Types = []Type{Weekly, Monthly, Quarterly, Yearly}

// String returns the persisted name of the type.
func (t Type) String() string {
	switch t {
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// ParseType parses a persisted type name.
func ParseType(s string) (Type, error) {
	switch s {
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	case "quarterly":
		return Quarterly, nil
	case "yearly":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if t < Weekly || t > Yearly {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Child returns the next narrower type. Weekly has none.
func (t Type) Child() (Type, bool) {
	switch t {
	case Monthly:
		return Weekly, true
	case Quarterly:
		return Monthly, true
	case Yearly:
		return Quarterly, true
	default:
		return 0, false
	}
}

// Key returns the period key of this type containing date.
func (t Type) Key(date string) (string, error) {
	switch t {
	case Weekly:
		return WeekKey(date)
	case Monthly:
		return MonthKey(date)
	case Quarterly:
		return QuarterKey(date)
	case Yearly:
		return YearKey(date)
	default:
		return "", ErrUnknownType
	}
}

// ParseDate parses a strict YYYY-MM-DD date as midnight UTC.
func ParseDate(date string) (time.Time, error) {
	if len(date) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Today returns the current UTC date string.
func Today(now time.Time) string {
	return FormatDate(now)
}

// WeekKey returns the ISO-8601 week key, e.g. "2026-W01" for 2025-12-29.
func WeekKey(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	year, week := thursdayOf(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week), nil
}

// MonthKey returns "YYYY-MM".
func MonthKey(date string) (string, error) {
	if _, err := ParseDate(date); err != nil {
		return "", err
	}
	return date[:7], nil
}

// QuarterKey returns "YYYY-Qn" with n = ceil(month/3).
func QuarterKey(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-Q%d", t.Year(), quarterOf(t.Month())), nil
}

// YearKey returns "YYYY".
func YearKey(date string) (string, error) {
	if _, err := ParseDate(date); err != nil {
		return "", err
	}
	return date[:4], nil
}

// WeekThursday returns the Thursday of the ISO week identified by key.
// The Thursday decides which month, quarter and year a week belongs to.
func WeekThursday(key string) (time.Time, error) {
	year, week, err := parseWeekKey(key)
	if err != nil {
		return time.Time{}, err
	}
	return weekThursday(year, week), nil
}

// ValidateKey checks that key is well formed for t.
func ValidateKey(t Type, key string) error {
	var err error
	switch t {
	case Weekly:
		_, _, err = parseWeekKey(key)
	case Monthly:
		_, _, err = parseMonthKey(key)
	case Quarterly:
		_, _, err = parseQuarterKey(key)
	case Yearly:
		_, err = parseYearKey(key)
	default:
		return ErrUnknownType
	}
	return err
}

// Contains reports whether childKey, a period of parent.Child(), falls within
// parentKey. Malformed keys are never contained.
//
// A week belongs to the month holding its Thursday. A month belongs to the
// quarter ceil(month/3) of the same year. A quarter belongs to its year.
func Contains(parent Type, parentKey, childKey string) bool {
	switch parent {
	case Monthly:
		py, pm, err := parseMonthKey(parentKey)
		if err != nil {
			return false
		}
		thu, err := WeekThursday(childKey)
		if err != nil {
			return false
		}
		return thu.Year() == py && thu.Month() == pm
	case Quarterly:
		py, pq, err := parseQuarterKey(parentKey)
		if err != nil {
			return false
		}
		cy, cm, err := parseMonthKey(childKey)
		if err != nil {
			return false
		}
		return cy == py && quarterOf(cm) == pq
	case Yearly:
		py, err := parseYearKey(parentKey)
		if err != nil {
			return false
		}
		cy, _, err := parseQuarterKey(childKey)
		if err != nil {
			return false
		}
		return cy == py
	default:
		return false
	}
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func thursdayOf(t time.Time) time.Time {
	return t.AddDate(0, 0, 4-isoWeekday(t))
}

func weekThursday(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, 1-isoWeekday(jan4))
	return monday.AddDate(0, 0, (week-1)*7+3)
}

// weeksInYear returns 52 or 53. Dec 28 is always in the last ISO week.
func weeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func quarterOf(m time.Month) int {
	return (int(m) + 2) / 3
}

func parseYearKey(key string) (int, error) {
	if len(key) != 4 || !digits(key) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	y, err := strconv.Atoi(key)
	if err != nil || y < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return y, nil
}

func parseWeekKey(key string) (year, week int, err error) {
	if len(key) != 8 || key[4:6] != "-W" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if year, err = parseYearKey(key[:4]); err != nil {
		return 0, 0, err
	}
	week, err = strconv.Atoi(key[6:])
	if err != nil || !digits(key[6:]) || week < 1 || week > weeksInYear(year) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return year, week, nil
}

func parseMonthKey(key string) (int, time.Month, error) {
	if len(key) != 7 || key[4] != '-' {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	year, err := parseYearKey(key[:4])
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(key[5:])
	if err != nil || !digits(key[5:]) || m < 1 || m > 12 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return year, time.Month(m), nil
}

func parseQuarterKey(key string) (year, quarter int, err error) {
	if len(key) != 7 || key[4:6] != "-Q" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if year, err = parseYearKey(key[:4]); err != nil {
		return 0, 0, err
	}
	quarter = int(key[6] - '0')
	if quarter < 1 || quarter > 4 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return year, quarter, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
