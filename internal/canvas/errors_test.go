package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRateLimit(t *testing.T) {
	assert.False(t, IsRateLimit(nil))
	assert.False(t, IsRateLimit(errors.New("connection refused")))
	assert.False(t, IsRateLimit(&APIError{StatusCode: 404, URL: "http://x"}))

	assert.True(t, IsRateLimit(&RateLimitError{StatusCode: 429, URL: "http://x"}))
	assert.True(t, IsRateLimit(fmt.Errorf("fetch: %w", &RateLimitError{StatusCode: 403, URL: "http://x"})))
	// Some layers flatten the error into text.
	assert.True(t, IsRateLimit(errors.New("canvas returned HTTP 429 for http://x")))
	assert.True(t, IsRateLimit(errors.New("403 Forbidden: Rate Limit Exceeded")))
}

func TestClassifyStatus(t *testing.T) {
	assert.IsType(t, &RateLimitError{}, classifyStatus(http.StatusTooManyRequests, "http://x", ""))
	assert.IsType(t, &RateLimitError{}, classifyStatus(http.StatusForbidden, "http://x", "403 Forbidden (Rate Limit Exceeded)"))
	assert.IsType(t, &APIError{}, classifyStatus(http.StatusForbidden, "http://x", "insufficient permissions"))
	assert.IsType(t, &APIError{}, classifyStatus(http.StatusNotFound, "http://x", "not found"))
}

func TestClientSurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "403 Forbidden (Rate Limit Exceeded)")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	_, err := c.GetCourse(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
}
