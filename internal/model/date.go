// Package model defines data structures used throughout the application.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the only accepted textual form of a date.
const DateLayout = "2006-01-02"

// MaxDayShift bounds the distance AddDays moves a date in either direction.
const MaxDayShift = math.MaxInt32

// ErrInvalidDate is returned when date text does not match DateLayout.
var ErrInvalidDate = errors.New("invalid date format, please use YYYY-MM-DD")

// Date is a calendar date without time of day or location.
// The zero value is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the date for the given year, month and day.
// Out-of-range values are normalized the way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses text in the YYYY-MM-DD form. Surrounding whitespace
// is ignored.
func ParseDate(text string) (Date, error) {
	text = strings.TrimSpace(text)
	if len(text) != len(DateLayout) {
		return Date{}, ErrInvalidDate
	}

	t, err := time.Parse(DateLayout, text)
	if err != nil {
		return Date{}, ErrInvalidDate
	}

	return DateOf(t), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// AddDays returns d moved by n calendar days. n may be negative and is
// clamped to [-MaxDayShift, MaxDayShift].
func (d Date) AddDays(n int) Date {
	n = max(-MaxDayShift, min(n, MaxDayShift))
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to,
// or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding date: %w", err)
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
