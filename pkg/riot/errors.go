package riot

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrNotFound matches any 404 from the API.
var ErrNotFound = errors.New("riot: not found")

// APIError is a non-2xx response.
type APIError struct {
	Endpoint   string
	Status     int
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("riot %s: http %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("riot %s: http %d", e.Endpoint, e.Status)
}

// Permanent reports whether retrying can never succeed: bad request, auth failures and not found.
func (e *APIError) Permanent() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// RetryAfterHint is the server-requested delay on 429 responses.
func (e *APIError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// hostFailure reports whether err should count against the host's circuit breaker.
func hostFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// malformed wraps a decode failure; a body that does not parse will not parse on retry either.
type malformed struct{ err error }

func (m *malformed) Error() string   { return "riot: malformed response: " + m.err.Error() }
func (m *malformed) Unwrap() error   { return m.err }
func (m *malformed) Permanent() bool { return true }
