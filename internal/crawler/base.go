package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sjsage522/flatworker/helpers"
	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
	"sjsage522/flatworker/services/cache"
)

// BaseCrawler provides the fetch side of a crawler: session cookies and a
// cooldown after the source rate limits us
type BaseCrawler struct {
	URL       string
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Session   CookieProvider
}

// fetchWithCache fetches the URL unless a cooldown is active
func (c *BaseCrawler) fetchWithCache(ctx context.Context) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return nil, errors.NewRateLimit(c.CacheKey, c.BlockTime)
		}
	}

	cookies, err := c.sessionCookies(ctx)
	if err != nil {
		// Unauthenticated requests may still succeed
		logger.ForExtractor().Warn().Err(err).Msg("Failed to acquire session cookies")
	}

	utf8Body, err := helpers.FetchWithCookies(ctx, c.URL, cookies)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeRateLimit) && c.CacheSvc != nil && c.CacheKey != "" && c.BlockTime > 0 {
			seconds := strconv.Itoa(int(c.BlockTime / time.Second))
			if cacheErr := c.CacheSvc.Set(c.CacheKey, []byte(seconds), c.BlockTime); cacheErr != nil {
				logger.ForCache().Warn().Err(cacheErr).Str("key", c.CacheKey).Msg("Failed to set cooldown")
			}
		}
		return nil, err
	}

	return utf8Body, nil
}

func (c *BaseCrawler) sessionCookies(ctx context.Context) ([]*http.Cookie, error) {
	if c.Session == nil {
		return nil, nil
	}
	cookies, err := c.Session.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("session cookies: %w", err)
	}
	return cookies, nil
}
