package retry

import (
	"errors"
	"time"
)

// permanentError marks a failure that must not be retried (not-found, validation,
// local invariant violations).
type permanentError struct{ err error }

func (p *permanentError) Error() string   { return p.err.Error() }
func (p *permanentError) Unwrap() error   { return p.err }
func (p *permanentError) Permanent() bool { return true }

// Permanent wraps err so that IsPermanent reports true. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether any error in the chain declares itself permanent.
func IsPermanent(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if p, ok := e.(interface{ Permanent() bool }); ok && p.Permanent() {
			return true
		}
	}
	return false
}

// RetryAfter extracts a server-provided delay hint (e.g. HTTP 429 Retry-After).
func RetryAfter(err error) (time.Duration, bool) {
	var h interface{ RetryAfterHint() time.Duration }
	if errors.As(err, &h) {
		if d := h.RetryAfterHint(); d > 0 {
			return d, true
		}
	}
	return 0, false
}
