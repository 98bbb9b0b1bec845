package client

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/temperature-predictor/internal/circuitbreaker"
	"github.com/kjstillabower/temperature-predictor/internal/models"
)

var (
	// ErrUpstreamFailure marks a non-2xx response from Open-Meteo.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrRateLimited marks a 429 response. It is still treated as a transport failure and retried.
	ErrRateLimited = errors.New("rate limited")
	// ErrCircuitOpen is returned (wrapped in FetchError) when the circuit breaker rejects the attempt.
	ErrCircuitOpen = circuitbreaker.ErrOpen
)

// FetchError reports that every attempt failed at the transport level
// (connection error, timeout, non-2xx status).
type FetchError struct {
	Date     models.Date
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch weather for %s: failed after %d attempt(s): %v", e.Date, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DataFormatError reports a 2xx archive response whose body lacks the expected daily fields.
type DataFormatError struct {
	Date   models.Date
	Reason string
	Err    error
}

func (e *DataFormatError) Error() string {
	msg := fmt.Sprintf("unexpected historical data format for %s: %s", e.Date, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// DataUnavailableError reports a forecast response that does not contain the requested date or its fields.
type DataUnavailableError struct {
	Date   models.Date
	Reason string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("forecast data not available for %s: %s", e.Date, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }
