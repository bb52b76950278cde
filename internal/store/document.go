// Package store defines the persisted document shapes shared by the
// storage providers, with validation at the decode boundary.
package store

import (
	"fmt"
	"time"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// AggregateDocument is the stored form of a profile aggregate. It is
// decoded into this typed shape and validated before anything uses
// it; a malformed stored document is an error, not silent data.
type AggregateDocument struct {
	Platform      string         `bson:"platform" json:"platform"`
	Profile       string         `bson:"profile" json:"profile"`
	Posts         []PostDocument `bson:"posts" json:"posts"`
	TotalPosts    int            `bson:"total_posts" json:"total_posts"`
	LastScrapedAt time.Time      `bson:"last_scraped_at" json:"last_scraped_at"`
	UpdatedAt     time.Time      `bson:"updated_at" json:"updated_at"`
}

// PostDocument is the stored form of one post.
type PostDocument struct {
	PostURL   string            `bson:"post_url" json:"post_url"`
	Caption   string            `bson:"caption" json:"caption"`
	Hashtags  []string          `bson:"hashtags,omitempty" json:"hashtags,omitempty"`
	Comments  []CommentDocument `bson:"comments" json:"comments"`
	ScrapedAt time.Time         `bson:"scraped_at" json:"scraped_at"`
}

// CommentDocument is the stored form of one comment.
type CommentDocument struct {
	Username     string            `bson:"username" json:"username"`
	Text         string            `bson:"text" json:"text"`
	PostedBefore string            `bson:"posted_before,omitempty" json:"posted_before,omitempty"`
	Likes        string            `bson:"likes,omitempty" json:"likes,omitempty"`
	Replies      []CommentDocument `bson:"replies,omitempty" json:"replies,omitempty"`
	IsEmojiOnly  bool              `bson:"is_emoji_only,omitempty" json:"is_emoji_only,omitempty"`
}

// SessionDocument is the stored form of a captured login session.
type SessionDocument struct {
	Platform   string           `bson:"platform" json:"platform"`
	Cookies    []CookieDocument `bson:"cookies" json:"cookies"`
	CapturedAt time.Time        `bson:"captured_at" json:"captured_at"`
}

// CookieDocument is the stored form of one browser cookie.
type CookieDocument struct {
	Name     string    `bson:"name" json:"name"`
	Value    string    `bson:"value" json:"value"`
	Domain   string    `bson:"domain" json:"domain"`
	Path     string    `bson:"path,omitempty" json:"path,omitempty"`
	Expires  time.Time `bson:"expires,omitempty" json:"expires,omitempty"`
	Secure   bool      `bson:"secure,omitempty" json:"secure,omitempty"`
	HTTPOnly bool      `bson:"http_only,omitempty" json:"http_only,omitempty"`
}

// FromAggregate builds the stored document for an aggregate.
func FromAggregate(platform string, agg scraper.ProfileAggregate, now time.Time) AggregateDocument {
	doc := AggregateDocument{
		Platform:      platform,
		Profile:       agg.Profile,
		Posts:         make([]PostDocument, 0, len(agg.Posts)),
		TotalPosts:    agg.TotalPosts,
		LastScrapedAt: agg.LastScrapedAt,
		UpdatedAt:     now,
	}
	for _, post := range agg.Posts {
		doc.Posts = append(doc.Posts, PostDocument{
			PostURL:   post.PostURL,
			Caption:   post.Caption,
			Hashtags:  append([]string(nil), post.Hashtags...),
			Comments:  fromComments(post.Comments),
			ScrapedAt: post.ScrapedAt,
		})
	}
	return doc
}

func fromComments(comments []scraper.Comment) []CommentDocument {
	out := make([]CommentDocument, 0, len(comments))
	for _, c := range comments {
		out = append(out, CommentDocument{
			Username:     c.Username,
			Text:         c.Text,
			PostedBefore: c.PostedBefore,
			Likes:        c.Likes,
			Replies:      fromComments(c.Replies),
			IsEmojiOnly:  c.IsEmojiOnly,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks the structural invariants of a stored document.
func (d AggregateDocument) Validate() error {
	if d.Platform == "" {
		return fmt.Errorf("aggregate document missing platform")
	}
	if d.Profile == "" {
		return fmt.Errorf("aggregate document missing profile")
	}
	if d.TotalPosts != len(d.Posts) {
		return fmt.Errorf("aggregate document for %q: total_posts %d does not match %d posts",
			d.Profile, d.TotalPosts, len(d.Posts))
	}
	seen := make(map[string]struct{}, len(d.Posts))
	for _, post := range d.Posts {
		// URL-less posts are stored as-is; they can never collide.
		if post.PostURL == "" {
			continue
		}
		if _, dup := seen[post.PostURL]; dup {
			return fmt.Errorf("aggregate document for %q: duplicate post_url %s", d.Profile, post.PostURL)
		}
		seen[post.PostURL] = struct{}{}
	}
	return nil
}

// ToAggregate validates the document and converts it back to the
// domain aggregate.
func (d AggregateDocument) ToAggregate() (scraper.ProfileAggregate, error) {
	if err := d.Validate(); err != nil {
		return scraper.ProfileAggregate{}, err
	}
	agg := scraper.ProfileAggregate{
		Profile:       d.Profile,
		Posts:         make([]scraper.PostRecord, 0, len(d.Posts)),
		TotalPosts:    d.TotalPosts,
		LastScrapedAt: d.LastScrapedAt,
	}
	for _, post := range d.Posts {
		agg.Posts = append(agg.Posts, scraper.PostRecord{
			PostURL:   post.PostURL,
			Caption:   post.Caption,
			Hashtags:  append([]string(nil), post.Hashtags...),
			Comments:  toComments(post.Comments),
			ScrapedAt: post.ScrapedAt,
		})
	}
	return agg, nil
}

func toComments(comments []CommentDocument) []scraper.Comment {
	out := make([]scraper.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, scraper.Comment{
			Username:     c.Username,
			Text:         c.Text,
			PostedBefore: c.PostedBefore,
			Likes:        c.Likes,
			Replies:      toComments(c.Replies),
			IsEmojiOnly:  c.IsEmojiOnly,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FromSession builds the stored document for captured cookies.
func FromSession(platform string, cookies []scraper.Cookie, capturedAt time.Time) SessionDocument {
	doc := SessionDocument{Platform: platform, CapturedAt: capturedAt}
	for _, c := range cookies {
		doc.Cookies = append(doc.Cookies, CookieDocument(c))
	}
	return doc
}

// Validate checks the structural invariants of a session document.
func (d SessionDocument) Validate() error {
	if d.Platform == "" {
		return fmt.Errorf("session document missing platform")
	}
	for i, c := range d.Cookies {
		if c.Name == "" || c.Domain == "" {
			return fmt.Errorf("session document for %q: cookie %d missing name or domain", d.Platform, i)
		}
	}
	return nil
}

// ToCookies validates the document and returns the domain cookies.
func (d SessionDocument) ToCookies() ([]scraper.Cookie, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	cookies := make([]scraper.Cookie, 0, len(d.Cookies))
	for _, c := range d.Cookies {
		cookies = append(cookies, scraper.Cookie(c))
	}
	return cookies, nil
}
