package client

import (
	"context"
	"errors"
	"net"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout         ErrorCategory = "timeout"
	ErrorCategoryCanceled        ErrorCategory = "canceled"
	ErrorCategoryNetwork         ErrorCategory = "network"
	ErrorCategoryRateLimited     ErrorCategory = "rate_limited"
	ErrorCategoryUpstream        ErrorCategory = "upstream_status"
	ErrorCategoryCircuitOpen     ErrorCategory = "circuit_open"
	ErrorCategoryDataFormat      ErrorCategory = "data_format"
	ErrorCategoryDataUnavailable ErrorCategory = "data_unavailable"
	ErrorCategoryUnknown         ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// FetchError is classified by its last underlying cause.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var formatErr *DataFormatError
	if errors.As(err, &formatErr) {
		return ErrorCategoryDataFormat
	}
	var unavailableErr *DataUnavailableError
	if errors.As(err, &unavailableErr) {
		return ErrorCategoryDataUnavailable
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	return ErrorCategoryUnknown
}
