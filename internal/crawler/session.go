package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"sjsage522/flatworker/logger"
)

// StaticSession provides a fixed session cookie
type StaticSession struct {
	Name  string
	Value string
}

// Cookies returns the configured cookie
func (s StaticSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	if s.Value == "" {
		return nil, nil
	}
	return []*http.Cookie{{Name: s.Name, Value: s.Value}}, nil
}

// BrowserSession obtains the session cookie by loading a page in headless Chrome
type BrowserSession struct {
	URL        string
	CookieName string
	// RemoteURL is the DevTools websocket of an already running browser; when
	// empty a local Chrome is started
	RemoteURL string
	ChromeBin string
	Timeout   time.Duration
}

// Cookies navigates to the cookie page and returns the session cookie, if any
func (b *BrowserSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	log := logger.ForExtractor()

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := b.allocator(ctx)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	log.Info().Str("url", b.URL).Msg("Retrieving session cookies via headless browser")

	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(b.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("browser session: %w", err)
	}

	log.Debug().Int("cookies", len(cookies)).Msg("Browser returned cookies")
	for _, c := range cookies {
		if c.Name == b.CookieName {
			log.Info().Str("cookie", b.CookieName).Msg("Found session cookie")
			return []*http.Cookie{{Name: c.Name, Value: c.Value}}, nil
		}
	}

	log.Warn().Str("cookie", b.CookieName).Msg("Session cookie not found; requests may be unauthenticated")
	return nil, nil
}

func (b *BrowserSession) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, b.RemoteURL)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if b.ChromeBin != "" {
		opts = append(opts, chromedp.ExecPath(b.ChromeBin))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

// CachedSession remembers the cookies of another provider until invalidated
type CachedSession struct {
	provider CookieProvider
	mu       sync.Mutex
	cookies  []*http.Cookie
	loaded   bool
}

// NewCachedSession wraps provider with a cache
func NewCachedSession(provider CookieProvider) *CachedSession {
	return &CachedSession{provider: provider}
}

// Cookies returns the cached cookies, loading them on first use
func (s *CachedSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.cookies, nil
	}

	cookies, err := s.provider.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	s.cookies = cookies
	s.loaded = true
	return cookies, nil
}

// Invalidate drops the cached cookies so the next call reloads them
func (s *CachedSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = nil
	s.loaded = false
}
