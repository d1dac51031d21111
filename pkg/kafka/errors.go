package kafka

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProducerClosed     = errors.New("kafka producer is closed")
	ErrConsumerClosed     = errors.New("kafka consumer is closed")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrEmptyKey           = errors.New("message key cannot be empty")
	ErrEmptyValue         = errors.New("message value cannot be empty")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ErrorType classifies failures for retry decisions.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTransient represents network issues and timeouts.
	ErrorTypeTransient

	// ErrorTypePermanent represents schema mismatches and invalid data.
	ErrorTypePermanent
)

// TransportError wraps errors with retry classification.
type TransportError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) IsTransient() bool {
	return e.Type == ErrorTypeTransient
}

func NewTransientError(message string, err error) *TransportError {
	return &TransportError{Type: ErrorTypeTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) *TransportError {
	return &TransportError{Type: ErrorTypePermanent, Message: message, Err: err}
}

var transientPatterns = []string{
	"connection refused",
	"timeout",
	"deadline exceeded",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"connection reset",
	"i/o timeout",
	"temporary failure",
}

// ClassifyError classifies an error as transient or permanent. Unrecognized
// errors default to permanent so they surface instead of retrying forever.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Type
	}

	errorMsg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errorMsg, pattern) {
			return ErrorTypeTransient
		}
	}

	return ErrorTypePermanent
}

func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	if err == nil {
		return false
	}
	if currentRetries >= maxRetries {
		return false
	}
	return ClassifyError(err) == ErrorTypeTransient
}
