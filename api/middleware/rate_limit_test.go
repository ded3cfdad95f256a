package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerlab/stickerlab/pkg/kvstore"
	"github.com/stickerlab/stickerlab/pkg/kvstore/memory"
)

type countingStore struct {
	counts map[string]int64
	keys   []string
}

func newCountingStore() *countingStore {
	return &countingStore{counts: map[string]int64{}}
}

func (c *countingStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counts[key]++
	c.keys = append(c.keys, key)
	return c.counts[key], nil
}

func (c *countingStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksByIP(t *testing.T) {
	store := newCountingStore()
	handler := RateLimit(NewRateLimitPolicy("create", time.Minute, 2, 0), store, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stickers", nil)
		req.RemoteAddr = "127.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
		if resp.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", resp.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "rl:ip:create:127.0.0.1", store.keys[0])
}

func TestRateLimitBlocksByPhoneAcrossIPs(t *testing.T) {
	store := newCountingStore()
	handler := RateLimit(NewRateLimitPolicy("session", time.Minute, 100, 1), store, nil)(okHandler())

	send := func(ip, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", ip)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1", `{"phone":"0801 234 5678"}`))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2", `{"phone":"08012345678"}`))
	assert.Equal(t, http.StatusOK, send("10.0.0.3", `{"phone":"08099999999"}`))
}

func TestRateLimitKeepsBodyForHandler(t *testing.T) {
	store := newCountingStore()
	var seen string
	handler := RateLimit(NewRateLimitPolicy("session", time.Minute, 0, 5), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		seen = buf.String()
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"phone":"08012345678"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, `{"phone":"08012345678"}`, seen)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newCountingStore()
	handler := RateLimit(NewRateLimitPolicy("create", 0, 1, 0), store, nil)(okHandler())
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/stickers", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
	assert.Empty(t, store.keys)
}

func TestRateLimitWithKVLeases(t *testing.T) {
	leases := kvstore.NewLeases(memory.New(), "lease")
	handler := RateLimit(NewRateLimitPolicy("create", time.Minute, 1, 0), leases, nil)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/stickers", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/stickers", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
