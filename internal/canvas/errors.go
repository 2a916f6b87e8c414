package canvas

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RateLimitError indicates that Canvas refused a request because the
// token's rate-limit bucket was exhausted. Requests failing this way
// are safe to retry after a delay.
type RateLimitError struct {
	StatusCode int
	URL        string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d) fetching %s", e.StatusCode, e.URL)
}

// APIError is any non-2xx Canvas response that is not a rate limit.
// Not retriable.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas returned HTTP %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsRateLimit reports whether err is a rate-limit condition. Canvas
// signals these either as HTTP 429 or as HTTP 403 with a "Rate Limit
// Exceeded" body; some layers only surface the status embedded in a
// generic error string, so the text form is recognized too.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Rate Limit Exceeded")
}

// classifyStatus turns a non-2xx response into the proper error type.
func classifyStatus(status int, url, body string) error {
	if status == http.StatusTooManyRequests ||
		(status == http.StatusForbidden && strings.Contains(body, "Rate Limit Exceeded")) {
		return &RateLimitError{StatusCode: status, URL: url}
	}
	return &APIError{StatusCode: status, URL: url, Body: body}
}
