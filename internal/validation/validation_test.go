package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

var today = models.NewDate(2024, time.July, 10)

// TestValidateDate_Valid verifies in-range dates parse, including both inclusive bounds.
func TestValidateDate_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Date
	}{
		{"min bound", "2023-01-01", DefaultMinDate},
		{"past", "2024-06-01", models.NewDate(2024, time.June, 1)},
		{"today", "2024-07-10", today},
		{"max bound", "2024-07-17", models.NewDate(2024, time.July, 17)},
		{"trimmed", "  2024-06-01\n", models.NewDate(2024, time.June, 1)},
		{"leap day", "2024-02-29", models.NewDate(2024, time.February, 29)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateDate(tc.input, DefaultMinDate, today, DefaultMaxDaysAhead)
			if err != nil {
				t.Fatalf("ValidateDate(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateDate(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestValidateDate_Errors verifies each rejection maps to its sentinel.
func TestValidateDate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrDateEmpty},
		{"spaces", "   ", ErrDateEmpty},
		{"garbage", "tomorrow", ErrDateInvalid},
		{"us format", "06/01/2024", ErrDateInvalid},
		{"impossible day", "2023-02-29", ErrDateInvalid},
		{"before min", "2022-12-31", ErrDateTooEarly},
		{"past max", "2024-07-18", ErrDateTooLate},
		{"far future", "2030-01-01", ErrDateTooLate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateDate(tc.input, DefaultMinDate, today, DefaultMaxDaysAhead)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

// TestValidateDate_NoMinimum verifies a zero min disables the lower bound.
func TestValidateDate_NoMinimum(t *testing.T) {
	if _, err := ValidateDate("1950-01-01", models.Date{}, today, 0); err != nil {
		t.Errorf("ValidateDate() error = %v, want nil", err)
	}
	if _, err := ValidateDate("2024-07-11", models.Date{}, today, 0); !errors.Is(err, ErrDateTooLate) {
		t.Errorf("ValidateDate() error = %v, want ErrDateTooLate with maxAhead 0", err)
	}
}
