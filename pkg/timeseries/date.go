package timeseries

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 representation used for dates throughout the service.
const DateFormat = "2006-01-02"

// Date represents a calendar date with day-level granularity.
// Valuation, transactions and bond events are all keyed by Date; anything
// finer-grained (transaction timestamps) is floored to a Date before replay.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today returns the current date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO-8601 date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on error. Intended for tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the canonical time.Time for the date (midnight UTC).
func (d Date) Time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

// Year returns the year.
func (d Date) Year() int { return d.y }

// Month returns the month.
func (d Date) Month() time.Month { return d.m }

// Day returns the day of the month.
func (d Date) Day() int { return d.d }

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// Before reports whether d is before x.
func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }

// After reports whether d is after x.
func (d Date) After(x Date) bool { return d.Compare(x) > 0 }

// Equal reports whether d and x are the same day.
func (d Date) Equal(x Date) bool { return d.Compare(x) == 0 }

// Compare returns -1, 0 or +1 comparing d to x chronologically.
func (d Date) Compare(x Date) int {
	switch {
	case d.y != x.y:
		return cmpInt(d.y, x.y)
	case d.m != x.m:
		return cmpInt(int(d.m), int(x.m))
	default:
		return cmpInt(d.d, x.d)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AddDays returns the date i days after d (i may be negative).
func (d Date) AddDays(i int) Date {
	return NewDate(d.y, d.m, d.d+i)
}

// AddMonths returns the date n months after d, clamping the day of month to
// the target month's length (Jan 31 + 1 month = Feb 28/29, not Mar 2/3).
// Coupon lattices depend on this clamping, so time.Time.AddDate (which
// normalizes overflow forward) is not usable here.
func (d Date) AddMonths(n int) Date {
	months := int(d.m) - 1 + n
	year := d.y + months/12
	month := time.Month(months%12 + 1)
	if month < time.January {
		month += 12
		year--
	}
	day := d.d
	if last := daysIn(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// DaysBetween returns the number of calendar days from d to x (negative when
// x is before d).
func (d Date) DaysBetween(x Date) int {
	return int(x.Time().Sub(d.Time()).Hours() / 24)
}

// String formats the date in ISO-8601.
func (d Date) String() string {
	return d.Time().Format(DateFormat)
}

// MarshalJSON encodes the date as an ISO-8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO-8601 date string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date JSON %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MinDate returns the earlier of a and b.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
