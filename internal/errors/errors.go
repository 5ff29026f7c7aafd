// Package errors defines the conversation engine's error taxonomy and the
// classification used to decide whether a failed backend call is worth retrying.
//
// Four conditions are distinguished:
//   - ErrBackendUnavailable: transport or backend failure, terminal for the turn
//   - ErrToolNotFound: the model named a tool nobody registered, recovered locally
//   - ErrMalformedToolArguments: tool arguments are not valid JSON, recovered locally
//   - ErrUnboundedToolLoop: the model kept calling tools past the configured limit
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrToolNotFound           = errors.New("tool not found")
	ErrMalformedToolArguments = errors.New("malformed tool arguments")
	ErrUnboundedToolLoop      = errors.New("unbounded tool loop")
)

// BackendError is returned by backend adapters for any transport, status or
// stream failure. It matches ErrBackendUnavailable.
type BackendError struct {
	Backend    string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", ErrBackendUnavailable, e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrBackendUnavailable, e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// NewBackendError wraps err as a BackendError. An error that already is a
// BackendError is returned unchanged.
func NewBackendError(backend string, statusCode int, err error) error {
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, StatusCode: statusCode, Err: err}
}

// ToolNotFoundError names the tool the model asked for.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrToolNotFound, e.Name)
}

func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// MalformedArgumentsError carries the raw argument text that failed to parse.
type MalformedArgumentsError struct {
	Tool string
	Raw  string
	Err  error
}

func (e *MalformedArgumentsError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s for %s: %v", ErrMalformedToolArguments, e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrMalformedToolArguments, e.Err)
}

func (e *MalformedArgumentsError) Unwrap() error {
	return e.Err
}

func (e *MalformedArgumentsError) Is(target error) bool {
	return target == ErrMalformedToolArguments
}

// LoopLimitError is returned when a turn needs more tool rounds than allowed.
type LoopLimitError struct {
	Limit int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("%s: model still calling tools after %d rounds", ErrUnboundedToolLoop, e.Limit)
}

func (e *LoopLimitError) Is(target error) bool {
	return target == ErrUnboundedToolLoop
}

// ErrorType categorizes errors for retry decisions
type ErrorType string

const (
	// ErrorTypeRetryable indicates the error might succeed on retry
	ErrorTypeRetryable ErrorType = "retryable"
	// ErrorTypePermanent indicates the error will not succeed on retry
	ErrorTypePermanent ErrorType = "permanent"
	// ErrorTypePanic indicates a panic was recovered
	ErrorTypePanic ErrorType = "panic"
)

// RetryableError marks an error as worth retrying regardless of its message.
type RetryableError struct {
	Err  error
	Kind string
}

func (e *RetryableError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[retryable:%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[retryable] %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error as final regardless of its message.
type PermanentError struct {
	Err  error
	Kind string
}

func (e *PermanentError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[permanent:%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[permanent] %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an error as retryable
func NewRetryableError(err error, kind string) error {
	return &RetryableError{Err: err, Kind: kind}
}

// NewPermanentError wraps an error as permanent
func NewPermanentError(err error, kind string) error {
	return &PermanentError{Err: err, Kind: kind}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	return GetErrorType(err) == ErrorTypeRetryable
}

// GetErrorType returns the ErrorType for any error. Explicit wrappers win over
// status codes, which win over message patterns.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return ErrorTypePermanent
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return ErrorTypeRetryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypePermanent
	}

	var be *BackendError
	if errors.As(err, &be) && be.StatusCode != 0 {
		return ClassifyStatus(be.StatusCode)
	}

	return ClassifyError(err)
}

// ClassifyStatus maps an HTTP status code to an ErrorType.
func ClassifyStatus(code int) ErrorType {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // anthropic overloaded
		return ErrorTypeRetryable
	default:
		return ErrorTypePermanent
	}
}

// ClassifyError determines the error type based on error message patterns.
// Unknown errors are permanent: a chat turn fails fast instead of stalling.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	msg := strings.ToLower(err.Error())

	retryablePatterns := []string{
		// Network errors
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"temporary failure",
		"network is unreachable",
		"connection timed out",
		"unexpected eof",
		"broken pipe",
		// Rate limiting and overload
		"rate limit",
		"too many requests",
		"service unavailable",
		"temporarily unavailable",
		"overloaded_error",
		"server_error",
		"gateway timeout",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return ErrorTypeRetryable
		}
	}

	return ErrorTypePermanent
}

// RecoveryResult holds the result of a recovered panic
type RecoveryResult struct {
	Recovered  bool
	PanicValue interface{}
	ErrorMsg   string
	ErrorType  ErrorType
}

// Err converts a recovered panic into an error, or nil when nothing was recovered.
func (r RecoveryResult) Err() error {
	if !r.Recovered {
		return nil
	}
	return errors.New(r.ErrorMsg)
}

// RecoverPanic recovers from a panic and returns a RecoveryResult.
// Use with defer:
//
//	defer func() {
//	    if r := errors.RecoverPanic(recover()); r.Recovered {
//	        // Handle recovered panic
//	    }
//	}()
func RecoverPanic(r interface{}) RecoveryResult {
	if r == nil {
		return RecoveryResult{Recovered: false}
	}

	result := RecoveryResult{
		Recovered:  true,
		PanicValue: r,
		ErrorType:  ErrorTypePanic,
	}

	switch v := r.(type) {
	case error:
		result.ErrorMsg = fmt.Sprintf("panic: %v", v)
	case string:
		result.ErrorMsg = fmt.Sprintf("panic: %s", v)
	default:
		result.ErrorMsg = fmt.Sprintf("panic: %+v", v)
	}

	return result
}

// CalculateBackoff calculates exponential backoff delay
// baseDelay: initial delay
// retryCount: current retry attempt (0-indexed)
// maxDelay: maximum delay cap
func CalculateBackoff(baseDelay time.Duration, retryCount int, maxDelay time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := baseDelay * (1 << retryCount)

	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}

	return delay
}
