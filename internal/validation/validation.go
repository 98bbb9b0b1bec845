package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

// DefaultMaxDaysAhead is how far past today a date may be selected.
const DefaultMaxDaysAhead = 7

// DefaultMinDate is the earliest selectable date.
var DefaultMinDate = models.NewDate(2023, 1, 1)

// ErrDateEmpty is returned when the input is empty or whitespace-only after trim.
var ErrDateEmpty = errors.New("date is required")

// ErrDateInvalid is returned when the input is not a YYYY-MM-DD calendar date.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ErrDateTooEarly is returned when the date precedes the minimum.
var ErrDateTooEarly = errors.New("date too early")

// ErrDateTooLate is returned when the date is more than maxAhead days after today.
var ErrDateTooLate = errors.New("date too far ahead")

// ValidateDate trims and parses input, then enforces minDate <= date <= today+maxAhead.
// The returned error wraps one of the Err* sentinels and is suitable for 400 INVALID_DATE responses.
func ValidateDate(input string, minDate, today models.Date, maxAhead int) (models.Date, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return models.Date{}, ErrDateEmpty
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return models.Date{}, fmt.Errorf("%w: %q", ErrDateInvalid, s)
	}
	if !minDate.IsZero() && d.Before(minDate) {
		return models.Date{}, fmt.Errorf("%w: %s is before %s", ErrDateTooEarly, d, minDate)
	}
	if maxAhead < 0 {
		maxAhead = 0
	}
	if latest := today.AddDays(maxAhead); d.After(latest) {
		return models.Date{}, fmt.Errorf("%w: %s is after %s", ErrDateTooLate, d, latest)
	}
	return d, nil
}
