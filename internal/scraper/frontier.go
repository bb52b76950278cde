package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/platform"
)

// FrontierConfig tunes the discovery loop.
type FrontierConfig struct {
	// MaxRounds is the hard budget on scroll rounds.
	MaxRounds int
	// StaleHeightRounds is how many consecutive rounds the scroll
	// height must hold still before the feed is considered exhausted.
	StaleHeightRounds int
	// ClickLimit caps expansion clicks per label per round.
	ClickLimit int
	// Settle is how long to wait after each scroll for lazy content.
	Settle time.Duration
}

func (c FrontierConfig) withDefaults() FrontierConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 20
	}
	if c.StaleHeightRounds <= 0 {
		c.StaleHeightRounds = 3
	}
	if c.ClickLimit <= 0 {
		c.ClickLimit = 3
	}
	if c.Settle <= 0 {
		c.Settle = 1500 * time.Millisecond
	}
	return c
}

// Frontier discovers content links on an infinite-scroll feed. Each
// round clicks visible expansion affordances, harvests links, and
// scrolls, until the page stops growing AND a round yields no new
// links, or caps are hit. Malformed and off-platform hrefs are
// skipped, never fatal.
type Frontier struct {
	session  Session
	platform platform.Descriptor
	cfg      FrontierConfig
	logger   *zap.Logger
}

// NewFrontier creates a Frontier for one rendering session.
func NewFrontier(session Session, d platform.Descriptor, cfg FrontierConfig, logger *zap.Logger) *Frontier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{session: session, platform: d, cfg: cfg.withDefaults(), logger: logger}
}

// Discover navigates to scopeURL and harvests candidate links in
// first-seen order, deduplicated by normalized URL. profile scopes
// link classification to the crawled profile's own paths. maxLinks
// <= 0 means unbounded.
func (f *Frontier) Discover(ctx context.Context, scopeURL, profile string, maxLinks int) ([]CandidateLink, error) {
	if err := f.session.Navigate(ctx, scopeURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", scopeURL, err)
	}

	seen := make(map[string]struct{})
	var links []CandidateLink

	lastHeight, _ := f.session.ScrollHeight(ctx)
	heightStale := 0
	linkStale := 0

	for round := 1; round <= f.cfg.MaxRounds; round++ {
		for _, label := range f.platform.ExpandLabels {
			f.session.ClickText(ctx, label, f.cfg.ClickLimit)
		}

		html, err := f.session.HTML(ctx)
		if err != nil {
			return links, fmt.Errorf("read page html: %w", err)
		}
		added := f.harvest(html, profile, seen, &links)
		if added == 0 {
			linkStale++
		} else {
			linkStale = 0
		}

		f.logger.Debug("discovery round",
			zap.String("platform", f.platform.Name),
			zap.Int("round", round),
			zap.Int("added", added),
			zap.Int("total", len(links)),
		)

		if maxLinks > 0 && len(links) >= maxLinks {
			links = links[:maxLinks]
			break
		}
		if heightStale >= f.cfg.StaleHeightRounds && linkStale >= 1 {
			break
		}

		if err := f.session.ScrollToEnd(ctx); err != nil {
			return links, fmt.Errorf("scroll: %w", err)
		}
		if err := settle(ctx, f.cfg.Settle); err != nil {
			return links, err
		}

		height, err := f.session.ScrollHeight(ctx)
		if err != nil || height == lastHeight {
			heightStale++
		} else {
			heightStale = 0
			lastHeight = height
		}
	}

	return links, nil
}

// harvest pulls hrefs from anchors and from URLs embedded in markup
// attributes, normalizes them, and appends new content links.
func (f *Frontier) harvest(html, profile string, seen map[string]struct{}, links *[]CandidateLink) int {
	added := 0
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			if f.addCandidate(href, profile, seen, links) {
				added++
			}
		})
	}
	for _, href := range embeddedURLPattern.FindAllString(html, -1) {
		href = strings.ReplaceAll(href, "&amp;", "&")
		if f.addCandidate(href, profile, seen, links) {
			added++
		}
	}
	return added
}

func (f *Frontier) addCandidate(href, profile string, seen map[string]struct{}, links *[]CandidateLink) bool {
	normalized, err := NormalizeLink(f.platform, href)
	if err != nil {
		return false
	}
	category := f.platform.Classify(pathAndQuery(normalized))
	if category == "" {
		category = f.platform.ClassifyScoped(pathAndQuery(normalized), profile)
	}
	if category == "" {
		return false
	}
	if _, dup := seen[normalized]; dup {
		return false
	}
	seen[normalized] = struct{}{}
	*links = append(*links, CandidateLink{URL: normalized, Category: category})
	return true
}

// embeddedURLPattern finds URLs that live inside markup attributes
// rather than anchor hrefs (onclick payloads, data attributes).
var embeddedURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+|/photo\.php\?fbid=\d[^\s"'<>\\]*`)

func pathAndQuery(normalized string) string {
	if i := strings.Index(normalized, "://"); i >= 0 {
		rest := normalized[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return normalized
}

func settle(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
