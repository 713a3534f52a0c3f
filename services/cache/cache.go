package cache

import (
	stderrors "errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = stderrors.New("cache: miss")

// CacheService stores short-lived markers such as rate-limit cooldowns
type CacheService interface {
	// Get retrieves a value; ErrMiss when absent
	Get(key string) ([]byte, error)

	// Set stores a value with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value
	Delete(key string) error
}
