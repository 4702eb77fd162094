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

func serve(h http.Handler, prepare func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/quote", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	if prepare != nil {
		prepare(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(h, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := serve(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_KeyedByRequester(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("api_key")
		},
	})(okHandler())
	withKey := func(k string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("api_key", k) }
	}

	assert.Equal(t, http.StatusOK, serve(h, withKey("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withKey("a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, withKey("b")).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{})(okHandler())
	for range 5 {
		w := serve(h, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 10, Window: time.Minute})
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for range 10 {
		_, _, ok := l.take("k", t0)
		require.True(t, ok)
	}
	_, reset, ok := l.take("k", t0.Add(59*time.Second))
	assert.False(t, ok)
	assert.Equal(t, t0.Add(time.Minute), reset)

	// Half of the previous window still counts.
	remaining, _, ok := l.take("k", t0.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 4, remaining)

	// Two full windows later nothing is left over.
	remaining, _, ok = l.take("k", t0.Add(5*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 9, remaining)

	l.evict(t0.Add(10 * time.Minute))
	assert.Empty(t, l.keys)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded first hop", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "192.168.1.1:4444", want: "203.0.113.50"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "192.168.1.1:4444", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "192.168.1.1", want: "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
