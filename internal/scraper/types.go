// Package scraper defines core types shared across subsystems.
package scraper

import (
	"time"

	"github.com/brandsignal/socialcrawler/internal/platform"
)

// TokenSource records where a raw token was harvested from.
type TokenSource string

// Token source hints attached by the content extractor.
const (
	TokenSourceAnchor    TokenSource = "anchor"
	TokenSourceAttribute TokenSource = "attribute-embedded"
)

// RawToken is one visible text fragment lifted from a rendered post
// page, in document order.
type RawToken struct {
	Text   string      `json:"text"`
	Source TokenSource `json:"source"`
}

// CandidateLink is a normalized content URL found during frontier
// discovery.
type CandidateLink struct {
	URL      string            `json:"url"`
	Category platform.Category `json:"category"`
}

// Comment is one reconstructed comment record.
type Comment struct {
	Username     string    `json:"username"`
	Text         string    `json:"text"`
	PostedBefore string    `json:"posted_before,omitempty"`
	Likes        string    `json:"likes,omitempty"`
	Replies      []Comment `json:"replies,omitempty"`
	IsEmojiOnly  bool      `json:"is_emoji_only,omitempty"`
}

// PostRecord is the scraped content of a single post.
type PostRecord struct {
	PostURL   string    `json:"post_url"`
	Caption   string    `json:"caption"`
	Hashtags  []string  `json:"hashtags,omitempty"`
	Comments  []Comment `json:"comments"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// ProfileAggregate is the persisted per-profile document.
type ProfileAggregate struct {
	Profile       string       `json:"profile"`
	Posts         []PostRecord `json:"posts"`
	TotalPosts    int          `json:"total_posts"`
	LastScrapedAt time.Time    `json:"last_scraped_at"`
}

// MergeOperation names the persistence outcome of a merge.
type MergeOperation string

// Merge outcomes reported in ChangeSummary.
const (
	MergeInserted MergeOperation = "inserted"
	MergeUpdated  MergeOperation = "updated"
)

// ChangeSummary reports what a merge changed.
type ChangeSummary struct {
	Operation MergeOperation `json:"operation"`
	Added     int            `json:"added"`
	Updated   int            `json:"updated"`
}

// FailureReason classifies why a scrape run produced no aggregate.
type FailureReason string

// Failure reasons surfaced to API clients.
const (
	ReasonNone             FailureReason = ""
	ReasonNoContent        FailureReason = "no_content"
	ReasonNotAuthenticated FailureReason = "not_authenticated"
	ReasonStoreUnavailable FailureReason = "store_unavailable"
	ReasonRenderFailed     FailureReason = "render_failed"
)

// ScrapeResult is returned for each scrape run.
type ScrapeResult struct {
	RunID        string        `json:"run_id"`
	Platform     string        `json:"platform"`
	Profile      string        `json:"profile"`
	Success      bool          `json:"success"`
	PostsScraped int           `json:"posts_scraped"`
	Summary      ChangeSummary `json:"summary"`
	Reason       FailureReason `json:"reason,omitempty"`
	Message      string        `json:"message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// ScrapeCompletedEvent is published after a successful run.
type ScrapeCompletedEvent struct {
	RunID        string    `json:"run_id"`
	Platform     string    `json:"platform"`
	Profile      string    `json:"profile"`
	PostsScraped int       `json:"posts_scraped"`
	Added        int       `json:"added"`
	Updated      int       `json:"updated"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Cookie is a stored browser cookie replayed into a rendering session.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// HeaderMeta is page-level metadata read from the document head. A
// caption found here wins over the caption block reconstructed from
// the token stream.
type HeaderMeta struct {
	Caption string
}
