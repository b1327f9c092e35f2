package gcal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// ErrNotReady is returned when an operation runs before (or after a failed)
// upstream authentication setup. It is never retried; callers fall back or
// surface the failure.
var ErrNotReady = errors.New("gcal: calendar service not ready")

// authVocabulary marks errors caused by a bad or revoked credential, or a
// rejected domain delegation. Matching is case-insensitive substring.
var authVocabulary = []string{
	"invalid_grant",
	"invalid_client",
	"unauthorized_client",
	"invalid credentials",
	"credential expired",
	"token expired",
	"delegation denied",
	"account not found",
	"account disabled",
	"insufficient permission",
	"permission denied",
}

// nonRetryableCodes are upstream statuses where retrying cannot help.
var nonRetryableCodes = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusUnauthorized:        true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusConflict:            true,
	http.StatusUnprocessableEntity: true,
}

// StatusCode extracts the upstream HTTP status, or 0 when the error does not
// carry one (network failures, local errors).
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// IsNotFound reports whether the upstream said the resource does not exist.
// Google reports deleted events as 404 or, for already-cancelled ones, 410.
func IsNotFound(err error) bool {
	code := StatusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// IsRateLimited reports a 429 response.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// IsAuthError reports whether the failure is credential- or delegation-class:
// the kind that a retry on the same calendar cannot fix but a fallback to the
// administrative calendar might.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	code := StatusCode(err)
	if code == http.StatusUnauthorized {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, v := range authVocabulary {
		if strings.Contains(msg, v) {
			return true
		}
	}
	return false
}

// IsRetryable classifies an upstream failure. Validation and auth failures
// are final; rate limiting, 5xx and network errors are worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotReady) {
		return false
	}
	if IsAuthError(err) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		if nonRetryableCodes[code] {
			return false
		}
		return code == http.StatusTooManyRequests || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unclassified local errors (connection resets wrapped by the transport,
	// unexpected EOF) get the benefit of the doubt.
	return true
}

// RetryAfterHint returns the provider-supplied backoff for rate-limited
// responses, when one was sent.
func RetryAfterHint(err error) (time.Duration, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0, false
	}
	raw := strings.TrimSpace(gerr.Header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}
	return 0, false
}
