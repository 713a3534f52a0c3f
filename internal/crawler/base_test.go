package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sjsage522/flatworker/pkg/errors"
)

func TestFetchWithCacheSetsCooldownOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	mockCache := NewMockCacheService()
	crawler := BaseCrawler{
		URL:       server.URL,
		CacheKey:  "ss_rate_limited",
		CacheSvc:  mockCache,
		BlockTime: 10 * time.Second,
	}

	_, err := crawler.fetchWithCache(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))

	value, err := mockCache.Get("ss_rate_limited")
	assert.NoError(t, err)
	assert.Equal(t, "10", string(value))

	// While the cooldown is active the source is not contacted
	_, err = crawler.fetchWithCache(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchWithCacheWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("PHPSESSID")
		assert.NoError(t, err)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	crawler := BaseCrawler{URL: server.URL, Session: StaticSession{Name: "PHPSESSID", Value: "v"}}
	body, err := crawler.fetchWithCache(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, body)
}
