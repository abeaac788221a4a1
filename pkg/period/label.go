package period

import "fmt"

// Label returns a display label for a period key:
//
//	weekly     Week 9, 2026
//	monthly    February 2026
//	quarterly  Q1 2026
//	yearly     2026
func Label(t Type, key string) (string, error) {
	switch t {
	case Weekly:
		y, w, err := parseWeekKey(key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Week %d, %d", w, y), nil
	case Monthly:
		y, m, err := parseMonthKey(key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %d", m, y), nil
	case Quarterly:
		y, q, err := parseQuarterKey(key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Q%d %d", q, y), nil
	case Yearly:
		y, err := parseYearKey(key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", y), nil
	default:
		return "", ErrUnknownType
	}
}

// DateLabel formats a date as "Wednesday, February 18, 2026".
func DateLabel(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format("Monday, January 2, 2006"), nil
}

// ShortDateLabel formats a date as "Feb 18, 2026".
func ShortDateLabel(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format("Jan 2, 2006"), nil
}
