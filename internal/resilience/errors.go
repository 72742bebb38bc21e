package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// StatusError is a non-2xx response from an upstream HTTP API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the upstream asked us to back off or failed on its side.
func (e *StatusError) Retryable() bool {
	return RetryableStatus(e.StatusCode)
}

// RetryableStatus is true for 429 and every 5xx.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsTransient returns true when err is worth another attempt: a retryable
// StatusError, a network timeout, or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
