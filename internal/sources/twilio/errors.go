package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredentials is returned before any request when the account SID or
// auth token is empty.
var ErrMissingCredentials = errors.New("twilio credentials are not configured")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	URL        string
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio: %s returned %d (code %d): %s", e.URL, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("twilio: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

// HTTPStatus exposes the response status for outcome classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfterHint returns the delay requested by the provider, if any.
func (e *APIError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// IsAuthError reports whether err is a rejected-credentials response.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// parseRetryAfter accepts both the delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
