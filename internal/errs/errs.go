// Package errs defines the error taxonomy shared by the stores, the completion
// providers and the configuration loader.
package errs

import (
	"errors"
	"fmt"
)

// Error codes reported by Code.
const (
	CodeUnknown       = "UNKNOWN"
	CodeStorage       = "STORAGE"
	CodeCompletion    = "COMPLETION"
	CodeConfiguration = "CONFIGURATION"
)

// ApplicationError is implemented by every error type in this package.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

type base struct {
	code    string
	message string
	err     error
}

func (e *base) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *base) Code() string  { return e.code }
func (e *base) Unwrap() error { return e.err }

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return CodeUnknown
}

// StorageError reports a connectivity or constraint failure in the message
// or profile store.
type StorageError struct {
	base
	Op string
}

// NewStorageError wraps cause as a StorageError for the named store operation.
func NewStorageError(op string, cause error) error {
	return &StorageError{
		base: base{code: CodeStorage, message: "storage: " + op, err: cause},
		Op:   op,
	}
}

// CompletionError reports a non-success response or a transport failure from
// a completion provider. StatusCode is zero when no HTTP response was received.
type CompletionError struct {
	base
	Provider   string
	StatusCode int
}

// NewCompletionError wraps cause as a CompletionError.
func NewCompletionError(provider string, statusCode int, cause error) error {
	msg := "completion: " + provider
	if statusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, statusCode)
	}
	return &CompletionError{
		base:       base{code: CodeCompletion, message: msg, err: cause},
		Provider:   provider,
		StatusCode: statusCode,
	}
}

// ConfigurationError reports missing or invalid startup configuration.
type ConfigurationError struct {
	base
	Key string
}

// NewConfigurationError wraps cause as a ConfigurationError. key may be empty
// when the failure is not tied to a single setting.
func NewConfigurationError(key string, cause error) error {
	msg := "configuration"
	if key != "" {
		msg += ": " + key
	}
	return &ConfigurationError{
		base: base{code: CodeConfiguration, message: msg, err: cause},
		Key:  key,
	}
}
