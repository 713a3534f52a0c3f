package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePayload represents a missing or undecodable marker payload
	ErrorTypePayload ErrorType = "payload"
	// ErrorTypeRecord represents a single marker that failed field parsing
	ErrorTypeRecord ErrorType = "record"
	// ErrorTypeUnusable represents a parsed listing without an external identifier
	ErrorTypeUnusable ErrorType = "unusable"
	// ErrorTypeStorage represents persistence errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// IngestError represents an error raised somewhere in the ingestion pipeline
type IngestError struct {
	Type      ErrorType
	Component string
	Message   string
	Field     string
	Value     string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *IngestError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s raw=%q)", msg, e.Field, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, msg)
}

// Unwrap returns the underlying error
func (e *IngestError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *IngestError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

// New creates a new IngestError
func New(errType ErrorType, component, message string, err error) *IngestError {
	return &IngestError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(component, message string, err error) *IngestError {
	return New(ErrorTypeNetwork, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, duration time.Duration) *IngestError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, component, message, nil)
}

// NewPayload creates a new malformed payload error
func NewPayload(component, message string, err error) *IngestError {
	return New(ErrorTypePayload, component, message, err)
}

// NewRecord creates a malformed record error carrying the offending field and raw value
func NewRecord(field, raw string, err error) *IngestError {
	e := New(ErrorTypeRecord, "parser", "malformed record", err)
	e.Field = field
	e.Value = raw
	return e
}

// NewUnusable creates a new unusable record error
func NewUnusable(component, message string) *IngestError {
	return New(ErrorTypeUnusable, component, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(component, message string, err error) *IngestError {
	return New(ErrorTypeStorage, component, message, err)
}

// NewCache creates a new cache error
func NewCache(component, message string, err error) *IngestError {
	return New(ErrorTypeCache, component, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(component, message string, err error) *IngestError {
	return New(ErrorTypePublisher, component, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *IngestError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether any IngestError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	var ie *IngestError
	if stderrors.As(err, &ie) {
		return ie.Type == errType
	}
	return false
}
