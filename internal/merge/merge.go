// Package merge reconciles freshly scraped posts into the persisted
// per-profile aggregate.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// Merge folds fresh posts into an existing aggregate, keyed by post
// URL with last-write-wins semantics: a fresh post replaces a stored
// post with the same URL wholesale, and new URLs append in scrape
// order. A fresh post without a URL can never match and always
// appends. existing == nil means no aggregate was stored yet.
//
// Merge is pure; persistence belongs to Engine.
func Merge(profile string, existing *scraper.ProfileAggregate, fresh []scraper.PostRecord) (scraper.ProfileAggregate, scraper.ChangeSummary) {
	if existing == nil {
		agg := scraper.ProfileAggregate{
			Profile:       profile,
			Posts:         append([]scraper.PostRecord(nil), fresh...),
			TotalPosts:    len(fresh),
			LastScrapedAt: maxScrapedAt(fresh),
		}
		return agg, scraper.ChangeSummary{Operation: scraper.MergeInserted, Added: len(fresh)}
	}

	index := make(map[string]int, len(existing.Posts))
	for i, post := range existing.Posts {
		if post.PostURL == "" {
			continue
		}
		index[post.PostURL] = i
	}

	posts := append([]scraper.PostRecord(nil), existing.Posts...)
	summary := scraper.ChangeSummary{Operation: scraper.MergeUpdated}
	for _, post := range fresh {
		if post.PostURL != "" {
			if i, ok := index[post.PostURL]; ok {
				posts[i] = post
				summary.Updated++
				continue
			}
			index[post.PostURL] = len(posts)
		}
		posts = append(posts, post)
		summary.Added++
	}

	agg := scraper.ProfileAggregate{
		Profile:       profile,
		Posts:         posts,
		TotalPosts:    len(posts),
		LastScrapedAt: existing.LastScrapedAt,
	}
	if len(fresh) > 0 {
		agg.LastScrapedAt = fresh[0].ScrapedAt
	}
	return agg, summary
}

func maxScrapedAt(posts []scraper.PostRecord) time.Time {
	var max time.Time
	for _, post := range posts {
		if post.ScrapedAt.After(max) {
			max = post.ScrapedAt
		}
	}
	return max
}

// Engine applies a merge against the aggregate store: exactly one
// read and one write per call.
type Engine struct {
	store  scraper.AggregateStore
	logger *zap.Logger
}

// NewEngine creates a merge Engine.
func NewEngine(store scraper.AggregateStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Apply loads the stored aggregate for (platform, profile), merges
// fresh posts into it, and writes the result back. A missing
// aggregate is the insert case, not an error.
func (e *Engine) Apply(ctx context.Context, platform, profile string, fresh []scraper.PostRecord) (scraper.ProfileAggregate, scraper.ChangeSummary, error) {
	var existing *scraper.ProfileAggregate
	stored, err := e.store.GetAggregate(ctx, platform, profile)
	switch {
	case err == nil:
		existing = &stored
	case errors.Is(err, scraper.ErrAggregateNotFound):
	default:
		return scraper.ProfileAggregate{}, scraper.ChangeSummary{}, fmt.Errorf("load aggregate: %w", err)
	}

	agg, summary := Merge(profile, existing, fresh)
	if err := e.store.PutAggregate(ctx, platform, agg); err != nil {
		return scraper.ProfileAggregate{}, scraper.ChangeSummary{}, fmt.Errorf("store aggregate: %w", err)
	}

	e.logger.Info("aggregate merged",
		zap.String("platform", platform),
		zap.String("profile", profile),
		zap.String("operation", string(summary.Operation)),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("total_posts", agg.TotalPosts),
	)
	return agg, summary, nil
}
