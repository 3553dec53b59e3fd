// Package validation holds the input rules for dialog fields: free-text
// lengths, plate normalisation, seat bounds and the two accepted
// date/datetime formats.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalid marks recoverable input failures. Dialogs re-prompt on it
// without losing collected fields.
var ErrInvalid = errors.New("invalid input")

const (
	MinSeats = 1
	MaxSeats = 10
)

// City validates a city name (at least 2 characters after trimming).
func City(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 {
		return "", fmt.Errorf("%w: city name too short", ErrInvalid)
	}
	return s, nil
}

// FullName validates a person's full name (at least 5 characters).
func FullName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 5 {
		return "", fmt.Errorf("%w: full name too short", ErrInvalid)
	}
	return s, nil
}

// CarMake validates a vehicle make (at least 2 characters).
func CarMake(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 {
		return "", fmt.Errorf("%w: car make too short", ErrInvalid)
	}
	return s, nil
}

// CarModel validates a vehicle model (non-empty).
func CarModel(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: car model empty", ErrInvalid)
	}
	return s, nil
}

// CarColor validates a vehicle color (at least 3 characters).
func CarColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 3 {
		return "", fmt.Errorf("%w: car color too short", ErrInvalid)
	}
	return s, nil
}

// Plate normalises a license plate: trim, uppercase, internal whitespace
// removed. The normalised form must be at least 6 characters.
func Plate(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	if utf8.RuneCountInString(s) < 6 {
		return "", fmt.Errorf("%w: plate too short", ErrInvalid)
	}
	return s, nil
}

// Seats parses a seat count in [MinSeats, MaxSeats].
func Seats(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: seat count is not a number", ErrInvalid)
	}
	if n < MinSeats || n > MaxSeats {
		return 0, fmt.Errorf("%w: seat count out of range", ErrInvalid)
	}
	return n, nil
}

// ParseDateTime parses "02.01.2006 15:04" or "02.01 15:04". The short form
// assumes the current year and rolls over to the next year when the
// resulting instant is already in the past.
func ParseDateTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if dt, err := time.ParseInLocation("02.01.2006 15:04", s, now.Location()); err == nil {
		return dt, nil
	}
	dt, err := time.ParseInLocation("02.01 15:04", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unrecognised date/time format", ErrInvalid)
	}
	dt = dt.AddDate(now.Year(), 0, 0)
	if dt.Before(now) {
		dt = dt.AddDate(1, 0, 0)
	}
	return dt, nil
}

// ParseDate parses "02.01.2006" or "02.01". The short form assumes the
// current year and rolls over to the next year when the date has passed.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseInLocation("02.01.2006", s, now.Location()); err == nil {
		return d, nil
	}
	d, err := time.ParseInLocation("02.01", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unrecognised date format", ErrInvalid)
	}
	d = d.AddDate(now.Year(), 0, 0)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, nil
}
