package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrExternalTool  = errors.New("external tool error")
	ErrStorage       = errors.New("storage error")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Error codes surfaced on failed job records and domain errors.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidFileType     = "INVALID_FILE_TYPE"
	CodeMissingFile         = "MISSING_FILE"
	CodeProcessingError     = "PROCESSING_ERROR"
	CodeStorageError        = "STORAGE_ERROR"
	CodeUploadError         = "UPLOAD_ERROR"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeJobAlreadyCompleted = "JOB_ALREADY_COMPLETED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Details is the structured failure pair persisted on failed job records.
type Details struct {
	Code    string
	Message string
}

// codedError attaches an explicit code to an error chain.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Coded tags err with an explicit error code, overriding marker-derived codes.
func Coded(code string, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// Code classifies an error into the code persisted on failed job records.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrExternalTool):
		return CodeProcessingError
	case errors.Is(err, ErrStorage):
		return CodeStorageError
	case errors.Is(err, ErrNotFound):
		return CodeJobNotFound
	default:
		return CodeInternal
	}
}

// ErrorDetails extracts the {code, message} pair for an error chain. Sentinel
// marker prefixes are stripped from the message so job records read cleanly.
func ErrorDetails(err error) Details {
	if err == nil {
		return Details{}
	}
	message := err.Error()
	for _, marker := range []error{ErrValidation, ErrExternalTool, ErrStorage, ErrNotFound, ErrConfiguration, ErrTransient} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return Details{Code: Code(err), Message: strings.TrimSpace(message)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
