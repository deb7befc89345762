package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the conversion worker
 *
 * Every public operation either succeeds or returns a *ProcessingError
 * whose Code tells the caller how to render it.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorNotFound             ErrorCode = "NOT_FOUND"
	ErrorUnsupportedOrCorrupt ErrorCode = "UNSUPPORTED_OR_CORRUPT"
	ErrorInvalidJob           ErrorCode = "INVALID_JOB"

	// Capability errors
	ErrorCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"

	// Processing errors
	ErrorConversionFailed  ErrorCode = "CONVERSION_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorIOFailure     ErrorCode = "IO_FAILURE"
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// WithJob tags the error with the job it belongs to and returns it.
func (e *ProcessingError) WithJob(jobID string) *ProcessingError {
	e.JobID = jobID
	return e
}

// Is reports whether err, or any error it wraps, is a ProcessingError with
// the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var pe *ProcessingError
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// CodeOf returns the code of the outermost ProcessingError in err's chain,
// or the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Factory functions for common errors

func NewNotFoundError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("File does not exist: %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewUnsupportedOrCorruptError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedOrCorrupt,
		Message:   fmt.Sprintf("Cannot open or parse file: %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewCapabilityUnavailableError(capability string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCapabilityUnavailable,
		Message:   fmt.Sprintf("Capability not available on this host: %s", capability),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"capability": capability,
		},
		Cause: cause,
	}
}

func NewConversionFailedError(path string, strategy string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorConversionFailed,
		Message:   fmt.Sprintf("Conversion failed for %s (strategy: %s)", path, strategy),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path":     path,
			"strategy": strategy,
		},
		Cause: cause,
	}
}

func NewIOFailureError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorIOFailure,
		Message:   fmt.Sprintf("Failed to write %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewInvalidJobError(jobID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidJob,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store job status",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
