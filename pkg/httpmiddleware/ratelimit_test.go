package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLimiter_Allow(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(3, time.Minute)

	for i := range 3 {
		d := l.Allow("k", base.Add(time.Duration(i)*time.Second))
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
		assert.Equal(t, base.Add(time.Minute), d.ResetAt)
	}
	assert.False(t, l.Allow("k", base.Add(10*time.Second)).Allowed)
	assert.True(t, l.Allow("other", base.Add(10*time.Second)).Allowed)

	// Halfway through the next window the previous three count as 1.5.
	at := base.Add(90 * time.Second)
	assert.True(t, l.Allow("k", at).Allowed)
	assert.True(t, l.Allow("k", at).Allowed)
	assert.False(t, l.Allow("k", at).Allowed)

	// Two windows later nothing carries over.
	for range 3 {
		assert.True(t, l.Allow("k", base.Add(4*time.Minute)).Allowed)
	}
}

func TestLimiter_Evict(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(1, time.Minute)
	l.Allow("old", base)
	l.Allow("new", base.Add(90*time.Second))
	require.Equal(t, 2, l.Len())

	l.Evict(base.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for range 2 {
		w := send("10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := send("10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 429, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "pipe", want: "pipe"},
		{name: "forwarded first hop", remote: "192.168.1.1:4444",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, want: "203.0.113.50"},
		{name: "real ip", remote: "192.168.1.1:4444",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestHeaderOrIP(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: HeaderOrIP("X-API-Key"),
	})(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, send("key-a"))
	assert.Equal(t, http.StatusOK, send("key-b"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}
