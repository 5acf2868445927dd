package core

/*
domaincheck — WHOIS, DNS, geolocation and TLS lookups for lists of domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import "errors"

// customError is an error type that carries the pipeline stage it came from and a retryable flag.
// Components use the flag to decide whether an operation could succeed on a later attempt.
type customError struct {
	stage     string // Stage or component that failed, empty when not applicable.
	message   string
	retryable bool
	err       error // Wrapped cause, may be nil.
}

// NewError creates a new customError with the given message and retryable status.
func NewError(msg string, retryable bool) error {
	return &customError{
		message:   msg,
		retryable: retryable,
	}
}

// NewStageError wraps err with the stage it occurred in.
func NewStageError(stage string, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	return &customError{
		stage:     stage,
		message:   err.Error(),
		retryable: retryable,
		err:       err,
	}
}

// Error implements the standard Go `error` interface.
func (e *customError) Error() string {
	if e.stage != "" {
		return e.stage + ": " + e.message
	}
	return e.message
}

// Unwrap returns the wrapped cause so errors.Is sees through stage errors.
func (e *customError) Unwrap() error {
	return e.err
}

// IsRetryable returns true if the error is designated as retryable.
func (e *customError) IsRetryable() bool {
	return e.retryable
}

// Stage returns the failing stage, or "".
func (e *customError) Stage() string {
	return e.stage
}

// IsRetryable reports whether err, or any error it wraps, is a retryable *customError.
// Unknown error types are not retryable.
func IsRetryable(err error) bool {
	var e *customError
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) string {
	var e *customError
	if errors.As(err, &e) {
		return e.Stage()
	}
	return ""
}

// Common error values used within the core package.
var (
	// ErrBatchRunning indicates that another batch holds the results file or the service slot.
	// Retryable: the running batch will finish.
	ErrBatchRunning = NewError("a batch is already running", true)
	// ErrNoDomains indicates that nothing was left to check after validation.
	ErrNoDomains = NewError("no domains provided", false)
)
