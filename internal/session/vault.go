// Package session manages captured login state for rendering sessions.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/platform"
	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// Vault serves login cookies per platform, caching store reads for
// the life of the process. Invalidate drops a cached entry after an
// authentication failure so the next run re-reads the store.
type Vault struct {
	store  scraper.SessionStore
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string][]scraper.Cookie
}

// NewVault creates a Vault over a session store.
func NewVault(store scraper.SessionStore, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		store:  store,
		logger: logger,
		cache:  make(map[string][]scraper.Cookie),
	}
}

// CookiesFor returns the captured cookies for a platform. A missing
// capture surfaces scraper.ErrSessionNotFound.
func (v *Vault) CookiesFor(ctx context.Context, platformName string) ([]scraper.Cookie, error) {
	v.mu.Lock()
	cached, ok := v.cache[platformName]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	cookies, err := v.store.GetCookies(ctx, platformName)
	if err != nil {
		return nil, fmt.Errorf("load session cookies: %w", err)
	}

	v.mu.Lock()
	v.cache[platformName] = cookies
	v.mu.Unlock()
	v.logger.Debug("session cookies loaded",
		zap.String("platform", platformName),
		zap.Int("cookies", len(cookies)),
	)
	return cookies, nil
}

// Invalidate drops the cached cookies for a platform.
func (v *Vault) Invalidate(platformName string) {
	v.mu.Lock()
	delete(v.cache, platformName)
	v.mu.Unlock()
}

// Probe reports whether sess is authenticated on the platform: it
// loads the platform root and looks for login-wall markers in the
// rendered page and in the final URL.
func Probe(ctx context.Context, sess scraper.Session, d platform.Descriptor) (bool, error) {
	if err := sess.Navigate(ctx, d.BaseURL); err != nil {
		return false, fmt.Errorf("probe navigate: %w", err)
	}

	if current, err := sess.CurrentURL(ctx); err == nil {
		lower := strings.ToLower(current)
		if strings.Contains(lower, "/login") || strings.Contains(lower, "/accounts/login") {
			return false, nil
		}
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return false, fmt.Errorf("probe read html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("probe parse html: %w", err)
	}
	for _, marker := range d.LoginMarkers {
		if doc.Find(marker).Length() > 0 {
			return false, nil
		}
	}
	return true, nil
}
