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

// ExtractorConfig tunes the per-post expansion loop.
type ExtractorConfig struct {
	// MaxRounds is the hard budget on expansion rounds.
	MaxRounds int
	// StaleRounds is how many consecutive rounds the token count must
	// hold still before extraction stops.
	StaleRounds int
	// ClickLimit caps clicks per label/selector per round.
	ClickLimit int
	// WaitTimeout bounds the wait for the comment container.
	WaitTimeout time.Duration
	// Settle is how long to wait after each expansion round.
	Settle time.Duration
}

func (c ExtractorConfig) withDefaults() ExtractorConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 10
	}
	if c.StaleRounds <= 0 {
		c.StaleRounds = 2
	}
	if c.ClickLimit <= 0 {
		c.ClickLimit = 5
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 8 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = time.Second
	}
	return c
}

// Extractor opens one post and lifts its visible comment region into
// a flat token stream. It clicks expansion affordances until the
// token count stops growing, then harvests text fragments in document
// order. All selector cascades are first-success-wins.
type Extractor struct {
	session  Session
	platform platform.Descriptor
	cfg      ExtractorConfig
	logger   *zap.Logger
}

// NewExtractor creates an Extractor for one rendering session.
func NewExtractor(session Session, d platform.Descriptor, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{session: session, platform: d, cfg: cfg.withDefaults(), logger: logger}
}

// Extract navigates to postURL and returns header metadata plus the
// raw token stream. A navigation failure is an error; an empty or
// missing comment region is not.
func (e *Extractor) Extract(ctx context.Context, postURL string) (HeaderMeta, []RawToken, error) {
	if err := e.session.Navigate(ctx, postURL); err != nil {
		return HeaderMeta{}, nil, fmt.Errorf("navigate %s: %w", postURL, err)
	}

	for _, sel := range e.platform.ContainerSelectors {
		if e.session.WaitVisible(ctx, sel, e.cfg.WaitTimeout) {
			break
		}
	}

	var tokens []RawToken
	var html string
	stale := 0
	lastCount := -1

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		clicks := 0
		for _, sel := range e.platform.LoadMoreSelectors {
			clicks += e.session.ClickSelector(ctx, sel, e.cfg.ClickLimit)
		}
		for _, label := range e.platform.ExpandLabels {
			clicks += e.session.ClickText(ctx, label, e.cfg.ClickLimit)
		}
		if err := e.session.ScrollToEnd(ctx); err == nil {
			if err := settle(ctx, e.cfg.Settle); err != nil {
				return HeaderMeta{}, nil, err
			}
		}

		var err error
		html, err = e.session.HTML(ctx)
		if err != nil {
			return HeaderMeta{}, nil, fmt.Errorf("read page html: %w", err)
		}
		tokens = e.harvestTokens(html)

		e.logger.Debug("extraction round",
			zap.String("platform", e.platform.Name),
			zap.Int("round", round),
			zap.Int("clicks", clicks),
			zap.Int("tokens", len(tokens)),
		)

		if len(tokens) == lastCount {
			stale++
			if stale >= e.cfg.StaleRounds && clicks == 0 {
				break
			}
		} else {
			stale = 0
			lastCount = len(tokens)
		}
	}

	return e.headerMeta(html), tokens, nil
}

// harvestTokens walks the comment container and returns trimmed text
// fragments in document order. Image alt text is included as
// attribute-embedded tokens because some platforms carry the comment
// author only in the avatar alt.
func (e *Extractor) harvestTokens(html string) []RawToken {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	container := doc.Selection
	for _, sel := range e.platform.ContainerSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			container = found.First()
			break
		}
	}

	for _, sel := range e.platform.TokenSelectors {
		tokens := collectTokens(container, sel)
		if len(tokens) > 0 {
			return tokens
		}
	}
	return nil
}

func collectTokens(container *goquery.Selection, sel string) []RawToken {
	var tokens []RawToken
	container.Find(sel + ", img[alt]").Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "img" {
			if username, ok := usernameFromAlt(node.AttrOr("alt", "")); ok {
				tokens = append(tokens, RawToken{Text: username, Source: TokenSourceAttribute})
			}
			return
		}
		text := strings.TrimSpace(node.Text())
		if text == "" {
			return
		}
		// Skip wrappers whose text is just their children's text
		// repeated; keep leaves only.
		if node.Children().Length() > 0 && strings.TrimSpace(node.Children().Text()) == text {
			return
		}
		tokens = append(tokens, RawToken{Text: text, Source: TokenSourceAnchor})
	})
	return tokens
}

// usernameFromAlt recovers a username from an avatar alt attribute
// such as "alice's profile picture".
func usernameFromAlt(alt string) (string, bool) {
	alt = strings.TrimSpace(alt)
	for _, suffix := range []string{"'s profile picture", "’s profile picture"} {
		if strings.HasSuffix(alt, suffix) {
			name := strings.TrimSuffix(alt, suffix)
			if name != "" && !strings.ContainsAny(name, " \t\n") {
				return name, true
			}
		}
	}
	return "", false
}

// headerMeta reads page-level caption metadata from the document
// head. Platform boilerplate and stat lines are rejected so a junk
// caption never shadows the token-stream caption block.
func (e *Extractor) headerMeta(html string) HeaderMeta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return HeaderMeta{}
	}
	for _, sel := range e.platform.HeaderMetaSelectors {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if caption, ok := cleanHeaderCaption(content); ok {
			return HeaderMeta{Caption: caption}
		}
	}
	return HeaderMeta{}
}

var (
	quotedCaptionPattern = regexp.MustCompile(`: “(.+)”\s*$`)
	statLinePattern      = regexp.MustCompile(`(?i)\d[\d,.]*[KM]? (likes?|comments?|followers?|following)`)
)

func cleanHeaderCaption(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	// "alice on Instagram: “the real caption”" keeps only the quote.
	if m := quotedCaptionPattern.FindStringSubmatch(content); m != nil {
		content = strings.TrimSpace(m[1])
	}
	if content == "" || statLinePattern.MatchString(content) {
		return "", false
	}
	lower := strings.ToLower(content)
	for _, junk := range []string{"log in", "sign up", "see posts, photos and more"} {
		if strings.Contains(lower, junk) {
			return "", false
		}
	}
	return content, true
}
