// Package chromedp implements the rendering session on headless
// Chrome via the chromedp driver.
package chromedp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// Config tunes the shared browser process and per-session behavior.
type Config struct {
	Headless    bool
	UserAgent   string
	MaxParallel int
	NavTimeout  time.Duration
	DomainQPS   float64
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 2
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	}
	return c
}

// Factory owns one browser process and hands out isolated tabs as
// scraper.Session values. Tab count is bounded by MaxParallel and
// navigation is rate limited per host.
type Factory struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	cfg             Config
	domainLimiters  sync.Map
}

// NewFactory starts the browser process and warms it up.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Factory{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxParallel),
		cfg:             cfg,
	}, nil
}

// NewSession opens a fresh tab, blocking while MaxParallel tabs are
// already live.
func (f *Factory) NewSession(ctx context.Context) (scraper.Session, error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	return &session{
		factory: f,
		tabCtx:  tabCtx,
		cancel:  cancelTab,
		release: func() { <-f.sem },
		logger:  f.logger,
	}, nil
}

// Close tears down the browser process.
func (f *Factory) Close(ctx context.Context) error {
	f.browserCancel()
	f.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

func (f *Factory) waitDomainBudget(ctx context.Context, rawURL string) error {
	if f.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := f.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

type session struct {
	factory   *Factory
	tabCtx    context.Context
	cancel    context.CancelFunc
	release   func()
	closeOnce sync.Once
	logger    *zap.Logger
}

func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithTimeout(s.tabCtx, timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()
	return chromedp.Run(taskCtx, actions...)
}

func (s *session) Navigate(ctx context.Context, rawURL string) error {
	if err := s.factory.waitDomainBudget(ctx, rawURL); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}
	err := s.run(ctx, s.factory.cfg.NavTimeout,
		network.Enable(),
		emulation.SetUserAgentOverride(s.factory.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.factory.cfg.NavTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.factory.cfg.NavTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

func (s *session) ScrollToEnd(ctx context.Context) error {
	err := s.run(ctx, s.factory.cfg.NavTimeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *session) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	err := s.run(ctx, s.factory.cfg.NavTimeout,
		chromedp.Evaluate(`document.body.scrollHeight`, &height),
	)
	if err != nil {
		return 0, fmt.Errorf("scroll height: %w", err)
	}
	return height, nil
}

func (s *session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) bool {
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	return err == nil
}

// clickByTextScript clicks up to limit clickable nodes whose trimmed
// text equals or starts with the label and returns the click count.
const clickByTextScript = `(() => {
	const nodes = Array.from(document.querySelectorAll('button, span, a, div[role="button"]'));
	let clicked = 0;
	for (const el of nodes) {
		if (clicked >= %d) break;
		const text = (el.textContent || '').trim();
		if (text === %s || text.startsWith(%s)) {
			try { el.click(); clicked++; } catch (e) {}
		}
	}
	return clicked;
})()`

func (s *session) ClickText(ctx context.Context, label string, limit int) int {
	quoted := strconv.Quote(label)
	script := fmt.Sprintf(clickByTextScript, limit, quoted, quoted)
	var clicked int
	if err := s.run(ctx, s.factory.cfg.NavTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		s.logger.Debug("click by text failed", zap.String("label", label), zap.Error(err))
		return 0
	}
	return clicked
}

const clickBySelectorScript = `(() => {
	const nodes = Array.from(document.querySelectorAll(%s));
	let clicked = 0;
	for (const el of nodes) {
		if (clicked >= %d) break;
		try { el.click(); clicked++; } catch (e) {}
	}
	return clicked;
})()`

func (s *session) ClickSelector(ctx context.Context, selector string, limit int) int {
	script := fmt.Sprintf(clickBySelectorScript, strconv.Quote(selector), limit)
	var clicked int
	if err := s.run(ctx, s.factory.cfg.NavTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		s.logger.Debug("click by selector failed", zap.String("selector", selector), zap.Error(err))
		return 0
	}
	return clicked
}

func (s *session) InjectCookies(ctx context.Context, cookies []scraper.Cookie) error {
	action := chromedp.ActionFunc(func(cdpCtx context.Context) error {
		for _, c := range cookies {
			setter := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(cookiePath(c.Path)).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if !c.Expires.IsZero() {
				expires := cdp.TimeSinceEpoch(c.Expires)
				setter = setter.WithExpires(&expires)
			}
			if err := setter.Do(cdpCtx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
	if err := s.run(ctx, s.factory.cfg.NavTimeout, network.Enable(), action); err != nil {
		return fmt.Errorf("inject cookies: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.release()
	})
	return nil
}

func cookiePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
