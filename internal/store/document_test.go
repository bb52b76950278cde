package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

func sampleAggregate() scraper.ProfileAggregate {
	t0 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	return scraper.ProfileAggregate{
		Profile: "acme",
		Posts: []scraper.PostRecord{{
			PostURL:  "https://www.instagram.com/p/AAA/",
			Caption:  "Summer drop #new",
			Hashtags: []string{"#new"},
			Comments: []scraper.Comment{
				{Username: "alice", Text: "great product!", PostedBefore: "2h", Likes: "15 likes"},
				{Username: "bob", IsEmojiOnly: true},
			},
			ScrapedAt: t0,
		}},
		TotalPosts:    1,
		LastScrapedAt: t0,
	}
}

func TestAggregateDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	agg := sampleAggregate()
	now := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)

	doc := FromAggregate("instagram", agg, now)
	require.Equal(t, "instagram", doc.Platform)
	require.Equal(t, now, doc.UpdatedAt)
	require.NoError(t, doc.Validate())

	back, err := doc.ToAggregate()
	require.NoError(t, err)
	require.Equal(t, agg, back)
}

func TestAggregateDocumentValidate(t *testing.T) {
	t.Parallel()

	base := FromAggregate("instagram", sampleAggregate(), time.Now().UTC())

	missingPlatform := base
	missingPlatform.Platform = ""
	require.ErrorContains(t, missingPlatform.Validate(), "missing platform")

	badTotal := base
	badTotal.TotalPosts = 7
	require.ErrorContains(t, badTotal.Validate(), "total_posts")

	// URL-less posts are legal: they append on merge and never match.
	noURL := base
	noURL.Posts = []PostDocument{{Caption: "x"}, {Caption: "y"}}
	noURL.TotalPosts = 2
	require.NoError(t, noURL.Validate())

	dup := base
	dup.Posts = []PostDocument{{PostURL: "u"}, {PostURL: "u"}}
	dup.TotalPosts = 2
	require.ErrorContains(t, dup.Validate(), "duplicate post_url")
}

func TestSessionDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	cookies := []scraper.Cookie{{Name: "sessionid", Value: "v", Domain: ".instagram.com"}}
	doc := FromSession("instagram", cookies, time.Now().UTC())
	require.NoError(t, doc.Validate())

	back, err := doc.ToCookies()
	require.NoError(t, err)
	require.Equal(t, cookies, back)
}

func TestSessionDocumentValidate(t *testing.T) {
	t.Parallel()

	doc := SessionDocument{Platform: "instagram", Cookies: []CookieDocument{{Value: "v"}}}
	require.ErrorContains(t, doc.Validate(), "missing name or domain")

	doc = SessionDocument{}
	require.ErrorContains(t, doc.Validate(), "missing platform")
}
