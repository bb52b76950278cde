// Package platform describes the supported social networks.
//
// A Descriptor captures everything that differs between networks: how a
// profile name maps to a feed URL, which href shapes identify content
// items, which selectors find the comment region, and which visible
// labels expand collapsed threads. The scraping pipeline itself is
// network-agnostic and takes a Descriptor as input.
package platform

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies a discovered content link.
type Category string

// Link categories emitted by frontier discovery.
const (
	CategoryPost  Category = "post"
	CategoryReel  Category = "reel"
	CategoryPhoto Category = "photo"
	CategoryVideo Category = "video"
)

// Marker matches a path fragment to a link category.
type Marker struct {
	Fragment string
	Category Category
}

// Descriptor holds the network-specific knobs for one platform.
type Descriptor struct {
	// Name is the canonical lowercase platform identifier.
	Name string

	// BaseURL is the scheme+host root, without a trailing slash.
	BaseURL string

	// FeedPath is a fmt pattern producing the profile feed path,
	// e.g. "/%s/" or "/@%s/videos".
	FeedPath string

	// MediaPath optionally names a second, media-only listing to
	// discover from before the main feed (empty when the network has
	// no such view).
	MediaPath string

	// Markers identify content hrefs by path fragment. First match
	// wins, so more specific fragments come first.
	Markers []Marker

	// ScopedMarkers identify content hrefs by profile-scoped path
	// patterns; Fragment is a fmt pattern receiving the profile. They
	// catch listing-shaped links the global markers miss, such as
	// "/{profile}/posts".
	ScopedMarkers []Marker

	// IDParams maps a path fragment to the query parameter that
	// carries the item identity. Links matching such a fragment keep
	// their query string through normalization; all others lose it.
	IDParams map[string]string

	// ContainerSelectors locate the comment region, tried in order.
	ContainerSelectors []string

	// TokenSelectors locate text-bearing leaves inside the container,
	// tried in order until one yields tokens.
	TokenSelectors []string

	// ExpandLabels are visible button labels that reveal collapsed
	// comments or truncated text.
	ExpandLabels []string

	// LoadMoreSelectors are clickable nodes that page in more
	// comments, tried in order on every extraction round.
	LoadMoreSelectors []string

	// HeaderMetaSelectors locate page-level caption metadata, tried
	// in order.
	HeaderMetaSelectors []string

	// LoginMarkers are selectors whose presence on the feed page
	// means the session is not authenticated.
	LoginMarkers []string
}

// FeedURL returns the absolute profile feed URL.
func (d Descriptor) FeedURL(profile string) string {
	return d.BaseURL + fmt.Sprintf(d.FeedPath, profile)
}

// MediaURL returns the absolute media-listing URL, or "" when the
// platform has no separate media view.
func (d Descriptor) MediaURL(profile string) string {
	if d.MediaPath == "" {
		return ""
	}
	return d.BaseURL + fmt.Sprintf(d.MediaPath, profile)
}

// Classify returns the category for a content path, or "" when the
// path matches no marker.
func (d Descriptor) Classify(path string) Category {
	for _, m := range d.Markers {
		if strings.Contains(path, m.Fragment) {
			return m.Category
		}
	}
	return ""
}

// ClassifyScoped returns the category for a path matching a
// profile-scoped marker, or "" when none match.
func (d Descriptor) ClassifyScoped(path, profile string) Category {
	if profile == "" {
		return ""
	}
	for _, m := range d.ScopedMarkers {
		if strings.Contains(path, fmt.Sprintf(m.Fragment, profile)) {
			return m.Category
		}
	}
	return ""
}

var registry = map[string]Descriptor{
	"instagram": {
		Name:     "instagram",
		BaseURL:  "https://www.instagram.com",
		FeedPath: "/%s/",
		Markers: []Marker{
			{Fragment: "/reel/", Category: CategoryReel},
			{Fragment: "/p/", Category: CategoryPost},
		},
		ContainerSelectors: []string{
			`div[role="dialog"]`,
			"article",
			"main",
		},
		TokenSelectors: []string{
			`ul span[dir="auto"]`,
			`span[dir="auto"]`,
			"span",
		},
		ExpandLabels: []string{
			"View all",
			"View more comments",
			"Load more comments",
			"View replies",
		},
		LoadMoreSelectors: []string{
			`button[aria-label="Load more comments"]`,
			`svg[aria-label="Load more comments"]`,
		},
		HeaderMetaSelectors: []string{
			`meta[property="og:title"]`,
			`meta[property="og:description"]`,
		},
		LoginMarkers: []string{
			`input[name="username"]`,
			`form[id="loginForm"]`,
		},
	},
	"facebook": {
		Name:      "facebook",
		BaseURL:   "https://www.facebook.com",
		FeedPath:  "/%s",
		MediaPath: "/%s/photos",
		Markers: []Marker{
			{Fragment: "/photo.php", Category: CategoryPhoto},
			{Fragment: "/photos/", Category: CategoryPhoto},
			{Fragment: "/videos/", Category: CategoryVideo},
			{Fragment: "/reel/", Category: CategoryReel},
			{Fragment: "/posts/", Category: CategoryPost},
			{Fragment: "/permalink.php", Category: CategoryPost},
			{Fragment: "/permalink", Category: CategoryPost},
			{Fragment: "/story.php", Category: CategoryPost},
			{Fragment: "/stories/", Category: CategoryPost},
			{Fragment: "/watch", Category: CategoryVideo},
		},
		ScopedMarkers: []Marker{
			{Fragment: "/%s/posts", Category: CategoryPost},
			{Fragment: "/%s/reel", Category: CategoryReel},
			{Fragment: "/%s/videos", Category: CategoryVideo},
			{Fragment: "/%s/photos", Category: CategoryPhoto},
		},
		IDParams: map[string]string{
			"/photo.php": "fbid",
		},
		ContainerSelectors: []string{
			`div[role="dialog"]`,
			`div[role="main"]`,
		},
		TokenSelectors: []string{
			`div[role="article"] span[dir="auto"]`,
			`span[dir="auto"]`,
			"span",
		},
		ExpandLabels: []string{
			"View more comments",
			"View all comments",
			"See more",
			"replies",
		},
		LoadMoreSelectors: []string{
			`div[role="button"][tabindex="0"]`,
		},
		HeaderMetaSelectors: []string{
			`meta[property="og:title"]`,
			`meta[property="og:description"]`,
		},
		LoginMarkers: []string{
			`input[name="email"]`,
			`input[name="pass"]`,
		},
	},
	"twitter": {
		Name:     "twitter",
		BaseURL:  "https://x.com",
		FeedPath: "/%s",
		Markers: []Marker{
			{Fragment: "/status/", Category: CategoryPost},
		},
		ContainerSelectors: []string{
			`div[aria-label="Timeline: Conversation"]`,
			"main",
		},
		TokenSelectors: []string{
			`article[data-testid="tweet"] span`,
			`div[data-testid="cellInnerDiv"] span`,
			"span",
		},
		ExpandLabels: []string{
			"Show more replies",
			"Show replies",
			"Show more",
		},
		LoadMoreSelectors: []string{
			`button[data-testid="tweet-text-show-more-link"]`,
		},
		HeaderMetaSelectors: []string{
			`meta[property="og:description"]`,
			`meta[property="og:title"]`,
		},
		LoginMarkers: []string{
			`input[autocomplete="username"]`,
			`a[href="/login"]`,
		},
	},
	"youtube": {
		Name:     "youtube",
		BaseURL:  "https://www.youtube.com",
		FeedPath: "/@%s/videos",
		Markers: []Marker{
			{Fragment: "/watch", Category: CategoryVideo},
			{Fragment: "/shorts/", Category: CategoryVideo},
		},
		IDParams: map[string]string{
			"/watch": "v",
		},
		ContainerSelectors: []string{
			"ytd-comments",
			"#comments",
		},
		TokenSelectors: []string{
			"ytd-comment-thread-renderer #author-text, ytd-comment-thread-renderer #content-text, ytd-comment-thread-renderer #published-time-text a, ytd-comment-thread-renderer #vote-count-middle",
			"#content-text",
			"span",
		},
		ExpandLabels: []string{
			"Read more",
			"Show more",
			"replies",
		},
		LoadMoreSelectors: []string{
			"ytd-continuation-item-renderer button",
			"#more-replies button",
		},
		HeaderMetaSelectors: []string{
			`meta[property="og:title"]`,
			`meta[name="title"]`,
		},
		// The home page carries a ServiceLogin anchor even when logged
		// out, so only the sign-in interstitial itself counts.
		LoginMarkers: []string{
			`input#identifierId`,
			`form[action^="https://accounts.google.com/signin"]`,
		},
	},
}

// Lookup returns the descriptor for name (case-insensitive).
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names returns the supported platform names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
