// Package worker runs the scrape pipeline for one profile at a time:
// discover content links, extract and parse each post, merge into the
// stored aggregate, then publish a completion event.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/merge"
	"github.com/brandsignal/socialcrawler/internal/metrics"
	"github.com/brandsignal/socialcrawler/internal/platform"
	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/session"
	"github.com/brandsignal/socialcrawler/internal/tokenparse"
)

// ErrUnknownPlatform is returned when the requested platform is not
// registered.
var ErrUnknownPlatform = errors.New("unknown platform")

// Config controls Worker behavior.
type Config struct {
	// MaxPostsDefault caps discovered posts when the caller does not.
	MaxPostsDefault int
	// Frontier tunes the discovery loop.
	Frontier scraper.FrontierConfig
	// Extractor tunes the per-post expansion loop.
	Extractor scraper.ExtractorConfig
}

func (c Config) withDefaults() Config {
	if c.MaxPostsDefault <= 0 {
		c.MaxPostsDefault = 12
	}
	return c
}

// Worker executes scrape runs.
type Worker struct {
	sessions  scraper.SessionFactory
	vault     *session.Vault
	engine    *merge.Engine
	publisher scraper.Publisher
	archive   scraper.CaptureArchive
	clock     scraper.Clock
	ids       scraper.IDGenerator
	hasher    scraper.Hasher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher and archive may be nil.
func New(
	sessions scraper.SessionFactory,
	vault *session.Vault,
	engine *merge.Engine,
	publisher scraper.Publisher,
	archive scraper.CaptureArchive,
	clock scraper.Clock,
	ids scraper.IDGenerator,
	hasher scraper.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		sessions:  sessions,
		vault:     vault,
		engine:    engine,
		publisher: publisher,
		archive:   archive,
		clock:     clock,
		ids:       ids,
		hasher:    hasher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// ScrapeProfile runs one end-to-end scrape of a profile. Failures that
// belong to the run (login wall, empty feed, store outage) come back
// inside the result; only an unknown platform or run setup problem is
// an error.
func (w *Worker) ScrapeProfile(ctx context.Context, platformName, profile string, maxPosts int) (scraper.ScrapeResult, error) {
	d, ok := platform.Lookup(platformName)
	if !ok {
		return scraper.ScrapeResult{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, platformName)
	}
	if maxPosts <= 0 {
		maxPosts = w.cfg.MaxPostsDefault
	}

	runID, err := w.ids.NewID()
	if err != nil {
		return scraper.ScrapeResult{}, fmt.Errorf("generate run id: %w", err)
	}

	result := scraper.ScrapeResult{
		RunID:     runID,
		Platform:  d.Name,
		Profile:   profile,
		StartedAt: w.clock.Now(),
	}

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	w.logger.Info("scrape run started",
		zap.String("run_id", runID),
		zap.String("platform", d.Name),
		zap.String("profile", profile),
		zap.Int("max_posts", maxPosts),
	)

	sess, err := w.sessions.NewSession(ctx)
	if err != nil {
		w.logger.Error("session create failed", zap.String("run_id", runID), zap.Error(err))
		return w.fail(result, scraper.ReasonRenderFailed, err.Error()), nil
	}
	defer func() {
		if err := sess.Close(); err != nil {
			w.logger.Warn("session close failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	if err := w.authenticate(ctx, sess, d); err != nil {
		if errors.Is(err, errNotAuthenticated) {
			w.vault.Invalidate(d.Name)
			return w.fail(result, scraper.ReasonNotAuthenticated, "platform presented a login wall"), nil
		}
		return w.fail(result, scraper.ReasonRenderFailed, err.Error()), nil
	}

	links, err := w.discover(ctx, sess, d, profile, maxPosts)
	if err != nil {
		return w.fail(result, scraper.ReasonRenderFailed, err.Error()), nil
	}
	metrics.ObserveDiscovery(d.Name, len(links))
	if len(links) == 0 {
		return w.fail(result, scraper.ReasonNoContent, "no content links discovered"), nil
	}

	fresh := w.scrapePosts(ctx, sess, d, profile, runID, links)
	if len(fresh) == 0 {
		return w.fail(result, scraper.ReasonNoContent, "no posts could be extracted"), nil
	}

	agg, summary, err := w.engine.Apply(ctx, d.Name, profile, fresh)
	if err != nil {
		w.logger.Error("merge failed", zap.String("run_id", runID), zap.Error(err))
		return w.fail(result, scraper.ReasonStoreUnavailable, err.Error()), nil
	}
	metrics.ObserveMerge(d.Name, summary.Added, summary.Updated)

	result.Success = true
	result.PostsScraped = len(fresh)
	result.Summary = summary
	result.FinishedAt = w.clock.Now()

	w.publish(ctx, result)
	metrics.ObserveRun(d.Name, "success", result.FinishedAt.Sub(result.StartedAt))

	w.logger.Info("scrape run finished",
		zap.String("run_id", runID),
		zap.String("platform", d.Name),
		zap.String("profile", profile),
		zap.Int("posts_scraped", result.PostsScraped),
		zap.Int("total_posts", agg.TotalPosts),
	)
	return result, nil
}

var errNotAuthenticated = errors.New("not authenticated")

// authenticate replays stored cookies (when any were captured) and
// probes for a login wall. Running without cookies is allowed; hitting
// a login wall is not.
func (w *Worker) authenticate(ctx context.Context, sess scraper.Session, d platform.Descriptor) error {
	cookies, err := w.vault.CookiesFor(ctx, d.Name)
	switch {
	case err == nil:
		if err := sess.InjectCookies(ctx, cookies); err != nil {
			return fmt.Errorf("inject cookies: %w", err)
		}
	case errors.Is(err, scraper.ErrSessionNotFound):
		w.logger.Debug("no session cookies captured", zap.String("platform", d.Name))
	default:
		return err
	}

	authed, err := session.Probe(ctx, sess, d)
	if err != nil {
		return err
	}
	if !authed {
		return errNotAuthenticated
	}
	return nil
}

// discover walks the media listing first (when the platform has one)
// and then the main feed, deduplicating across both scopes.
func (w *Worker) discover(ctx context.Context, sess scraper.Session, d platform.Descriptor, profile string, maxPosts int) ([]scraper.CandidateLink, error) {
	frontier := scraper.NewFrontier(sess, d, w.cfg.Frontier, w.logger)

	var links []scraper.CandidateLink
	seen := make(map[string]struct{})
	scopes := make([]string, 0, 2)
	if media := d.MediaURL(profile); media != "" {
		scopes = append(scopes, media)
	}
	scopes = append(scopes, d.FeedURL(profile))

	for _, scope := range scopes {
		found, err := frontier.Discover(ctx, scope, profile, maxPosts)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", scope, err)
		}
		for _, link := range found {
			if _, dup := seen[link.URL]; dup {
				continue
			}
			seen[link.URL] = struct{}{}
			links = append(links, link)
		}
		if len(links) >= maxPosts {
			links = links[:maxPosts]
			break
		}
	}
	return links, nil
}

// scrapePosts extracts and parses each discovered link. A post whose
// extraction fails is recorded with zero comments rather than dropped,
// so one broken post never sinks or shrinks the run.
func (w *Worker) scrapePosts(ctx context.Context, sess scraper.Session, d platform.Descriptor, profile, runID string, links []scraper.CandidateLink) []scraper.PostRecord {
	extractor := scraper.NewExtractor(sess, d, w.cfg.Extractor, w.logger)

	records := make([]scraper.PostRecord, 0, len(links))
	for _, link := range links {
		meta, tokens, err := extractor.Extract(ctx, link.URL)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Warn("post extraction failed",
				zap.String("run_id", runID),
				zap.String("url", link.URL),
				zap.Error(err),
			)
			meta, tokens = scraper.HeaderMeta{}, nil
		}

		record := buildRecord(link, meta, tokens, w.clock.Now())
		records = append(records, record)
		metrics.ObserveScrapedPost(d.Name, len(record.Comments))

		if err == nil {
			w.archiveCapture(ctx, sess, d, profile, runID)
		}
	}
	return records
}

// buildRecord assembles a PostRecord from header metadata and the
// parsed token stream. A caption found in header metadata wins; the
// caption block reconstructed from tokens is the fallback and is
// dropped from the comment list either way.
func buildRecord(link scraper.CandidateLink, meta scraper.HeaderMeta, tokens []scraper.RawToken, now time.Time) scraper.PostRecord {
	parsed := tokenparse.Parse(tokens)

	caption := meta.Caption
	comments := parsed.Comments
	if block, ok := parsed.Caption(); ok {
		comments = comments[1:]
		if caption == "" {
			caption = block.Text
		}
	}
	if comments == nil {
		comments = []scraper.Comment{}
	}

	return scraper.PostRecord{
		PostURL:   link.URL,
		Caption:   caption,
		Hashtags:  tokenparse.ExtractHashtags(caption),
		Comments:  comments,
		ScrapedAt: now,
	}
}

// archiveCapture persists the rendered page for audit, keyed by
// content hash so repeat captures dedupe. Best effort; archival
// problems never fail the run.
func (w *Worker) archiveCapture(ctx context.Context, sess scraper.Session, d platform.Descriptor, profile, runID string) {
	if w.archive == nil {
		return
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		w.logger.Warn("capture read failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	hash, err := w.hasher.Hash([]byte(html))
	if err != nil {
		w.logger.Warn("capture hash failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	key := fmt.Sprintf("%s/%s/%s.html", d.Name, profile, hash)
	uri, err := w.archive.SaveCapture(ctx, key, []byte(html))
	if err != nil {
		w.logger.Warn("capture save failed", zap.String("run_id", runID), zap.String("key", key), zap.Error(err))
		return
	}
	w.logger.Debug("capture saved", zap.String("run_id", runID), zap.String("uri", uri))
}

func (w *Worker) publish(ctx context.Context, result scraper.ScrapeResult) {
	if w.publisher == nil {
		return
	}
	event := scraper.ScrapeCompletedEvent{
		RunID:        result.RunID,
		Platform:     result.Platform,
		Profile:      result.Profile,
		PostsScraped: result.PostsScraped,
		Added:        result.Summary.Added,
		Updated:      result.Summary.Updated,
		CompletedAt:  result.FinishedAt,
	}
	msgID, err := w.publisher.PublishScrapeCompleted(ctx, event)
	if err != nil {
		w.logger.Warn("publish scrape event failed", zap.String("run_id", result.RunID), zap.Error(err))
		return
	}
	w.logger.Debug("scrape event published", zap.String("run_id", result.RunID), zap.String("message_id", msgID))
}

func (w *Worker) fail(result scraper.ScrapeResult, reason scraper.FailureReason, message string) scraper.ScrapeResult {
	result.Success = false
	result.Reason = reason
	result.Message = message
	result.FinishedAt = w.clock.Now()
	metrics.ObserveRun(result.Platform, string(reason), result.FinishedAt.Sub(result.StartedAt))
	return result
}
