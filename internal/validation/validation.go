package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted date format for range queries and stored measurement dates.
const DateLayout = "2006-01-02"

// ErrInvalidDateFormat is returned when a path date does not parse as YYYY-MM-DD.
var ErrInvalidDateFormat = errors.New("invalid date format")

// DateError describes which input was malformed. It unwraps to ErrInvalidDateFormat.
type DateError struct {
	Field string // "start" or "end"
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("Invalid %s date format. Please use YYYY-MM-DD.", e.Field)
}

func (e *DateError) Unwrap() error {
	return ErrInvalidDateFormat
}

// ParseDate parses a calendar date in strict YYYY-MM-DD form (zero-padded, valid month and day).
// field names the input in the returned *DateError.
func ParseDate(field, input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	if len(s) != len(DateLayout) {
		return time.Time{}, &DateError{Field: field, Value: input}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &DateError{Field: field, Value: input}
	}
	return t, nil
}

// NormalizeDate validates input and returns it in canonical YYYY-MM-DD form,
// suitable for lexical comparison against stored dates.
func NormalizeDate(field, input string) (string, error) {
	t, err := ParseDate(field, input)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// YearBefore returns the date 365 days before latest, both in YYYY-MM-DD form.
func YearBefore(latest string) (string, error) {
	t, err := time.Parse(DateLayout, latest)
	if err != nil {
		return "", fmt.Errorf("parse latest date %q: %w", latest, err)
	}
	return t.AddDate(0, 0, -365).Format(DateLayout), nil
}
