package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// ConnectionError reports a transport failure talking to a speech or language provider
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection error: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError wraps err, returning nil for a nil err
func NewConnectionError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{Provider: provider, Err: err}
}

// ConfigurationError reports missing or invalid credentials for a provider
type ConfigurationError struct {
	Provider string
	Field    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is not configured", e.Provider, e.Field)
}

// StatusError carries a non-2xx HTTP response from a provider
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

var transientAPICodes = map[string]bool{
	"ThrottlingException":         true,
	"ServiceUnavailableException": true,
}

// IsTransient reports whether err belongs to the small set of provider failures
// that are retried once: throttling, service unavailable, connection reset and timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientAPICodes[apiErr.ErrorCode()] {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode == 503
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "connection reset by peer")
}
