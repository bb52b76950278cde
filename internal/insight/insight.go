// Package insight produces audience summaries from scraped comments.
// A remote model supplies the summary when available; a deterministic
// fallback keeps the endpoint functional when it is not.
package insight

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// SentimentSplit is a percentage breakdown; the three parts sum to 100.
type SentimentSplit struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Summary is the model- or fallback-produced audience summary.
type Summary struct {
	SentimentSplit SentimentSplit `json:"sentiment_split"`
	Themes         []string       `json:"themes"`
	Note           string         `json:"note,omitempty"`
}

// Fallback returns the deterministic summary used when no model is
// configured or the model call fails.
func Fallback() Summary {
	return Summary{
		SentimentSplit: SentimentSplit{Positive: 60, Negative: 20, Neutral: 20},
		Themes: []string{
			"General appreciation",
			"Product feedback",
			"Brand loyalty",
			"Emojis",
			"Support",
		},
		Note: "heuristic summary; model unavailable",
	}
}

// Summarizer produces a Summary for a batch of comment texts.
type Summarizer interface {
	Summarize(ctx context.Context, comments []string) (Summary, error)
}

// Service wraps a Summarizer with the fallback: Summarize never fails.
type Service struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// NewService creates a Service. A nil summarizer always falls back.
func NewService(summarizer Summarizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{summarizer: summarizer, logger: logger}
}

// Summarize returns the model summary, or the fallback when the model
// is unconfigured, errors, or returns an unusable split.
func (s *Service) Summarize(ctx context.Context, comments []string) Summary {
	if s.summarizer == nil {
		return Fallback()
	}
	summary, err := s.summarizer.Summarize(ctx, comments)
	if err != nil {
		s.logger.Warn("model summary failed, using fallback", zap.Error(err))
		return Fallback()
	}
	split := summary.SentimentSplit
	if split.Positive+split.Negative+split.Neutral != 100 {
		s.logger.Warn("model summary split invalid, using fallback",
			zap.Int("positive", split.Positive),
			zap.Int("negative", split.Negative),
			zap.Int("neutral", split.Neutral),
		)
		return Fallback()
	}
	return summary
}

// CommenterCount pairs a username with how many comments they left.
type CommenterCount struct {
	Username string `json:"username"`
	Comments int    `json:"comments"`
}

// CommentStats aggregates counting facts across posts.
type CommentStats struct {
	TotalComments    int              `json:"total_comments"`
	UniqueCommenters int              `json:"unique_commenters"`
	EmojiOnly        int              `json:"emoji_only"`
	TotalLikes       int              `json:"total_likes"`
	TopCommenters    []CommenterCount `json:"top_commenters"`
}

// BuildStats computes comment statistics over posts. TopCommenters is
// limited to the five most active, ties broken by username.
func BuildStats(posts []scraper.PostRecord) CommentStats {
	stats := CommentStats{}
	byUser := make(map[string]int)
	for _, post := range posts {
		for _, c := range post.Comments {
			stats.TotalComments++
			byUser[c.Username]++
			if c.IsEmojiOnly {
				stats.EmojiOnly++
			}
			stats.TotalLikes += parseLikes(c.Likes)
		}
	}
	stats.UniqueCommenters = len(byUser)

	top := make([]CommenterCount, 0, len(byUser))
	for username, count := range byUser {
		top = append(top, CommenterCount{Username: username, Comments: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Comments != top[j].Comments {
			return top[i].Comments > top[j].Comments
		}
		return top[i].Username < top[j].Username
	})
	if len(top) > 5 {
		top = top[:5]
	}
	stats.TopCommenters = top
	return stats
}

var likesDigits = regexp.MustCompile(`\d[\d,]*`)

func parseLikes(likes string) int {
	m := likesDigits.FindString(likes)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// CommentTexts flattens the non-empty comment texts across posts, in
// post order.
func CommentTexts(posts []scraper.PostRecord) []string {
	var texts []string
	for _, post := range posts {
		for _, c := range post.Comments {
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
	}
	return texts
}
