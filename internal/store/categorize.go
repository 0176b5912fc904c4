package store

import (
	"context"
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrorCategory is a stable label for data-source error classification in metrics.
type ErrorCategory string

// Error category constants used as the dbQueryErrorsTotal category label.
const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryCanceled    ErrorCategory = "canceled"
	ErrorCategoryNoData      ErrorCategory = "no_data"
	ErrorCategoryLocked      ErrorCategory = "locked"
	ErrorCategoryUnavailable ErrorCategory = "unavailable"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	if errors.Is(err, ErrNoData) {
		return ErrorCategoryNoData
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ErrorCategoryLocked
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return ErrorCategoryUnavailable
		}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "database is closed") || strings.Contains(errStr, "unable to open") {
		return ErrorCategoryUnavailable
	}
	return ErrorCategoryUnknown
}
