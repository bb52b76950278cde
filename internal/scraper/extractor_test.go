package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandsignal/socialcrawler/internal/platform"
)

const postPage = `<html><head>
<meta property="og:title" content="brand on Instagram: &#8220;Real caption here&#8221;">
</head><body>
<article>
<ul>
<li><img alt="alice&#8217;s profile picture"><span dir="auto">alice</span><span dir="auto">great product!</span><span dir="auto">2h</span><span dir="auto">15 likes</span></li>
<li><span dir="auto"><span dir="auto">nested once</span></span></li>
<li><span dir="auto">   </span></li>
</ul>
</article>
</body></html>`

func testExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MaxRounds:   4,
		StaleRounds: 1,
		ClickLimit:  3,
		WaitTimeout: time.Millisecond,
		Settle:      time.Millisecond,
	}
}

func TestExtractorTokensInDocumentOrder(t *testing.T) {
	t.Parallel()

	session := &fakeSession{htmlSeq: []string{postPage}}
	ig, _ := platform.Lookup("instagram")
	extractor := NewExtractor(session, ig, testExtractorConfig(), nil)

	meta, tokens, err := extractor.Extract(context.Background(), "https://www.instagram.com/p/AAA/")
	require.NoError(t, err)
	require.Equal(t, "Real caption here", meta.Caption)

	require.Equal(t, []RawToken{
		{Text: "alice", Source: TokenSourceAttribute},
		{Text: "alice", Source: TokenSourceAnchor},
		{Text: "great product!", Source: TokenSourceAnchor},
		{Text: "2h", Source: TokenSourceAnchor},
		{Text: "15 likes", Source: TokenSourceAnchor},
		{Text: "nested once", Source: TokenSourceAnchor},
	}, tokens)
}

func TestExtractorClicksExpansionAffordances(t *testing.T) {
	t.Parallel()

	session := &fakeSession{htmlSeq: []string{postPage}}
	ig, _ := platform.Lookup("instagram")
	extractor := NewExtractor(session, ig, testExtractorConfig(), nil)

	_, _, err := extractor.Extract(context.Background(), "https://www.instagram.com/p/AAA/")
	require.NoError(t, err)

	require.Positive(t, session.clicked["View all"])
	require.Positive(t, session.clicked[`button[aria-label="Load more comments"]`])
}

func TestExtractorNavigateErrorIsFatal(t *testing.T) {
	t.Parallel()

	session := &fakeSession{navErr: context.DeadlineExceeded}
	ig, _ := platform.Lookup("instagram")
	extractor := NewExtractor(session, ig, testExtractorConfig(), nil)

	_, _, err := extractor.Extract(context.Background(), "https://www.instagram.com/p/AAA/")
	require.ErrorContains(t, err, "navigate")
}

func TestExtractorMissingCommentRegion(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq: []string{"<html><head><title>gone</title></head><body><p>Content unavailable</p></body></html>"},
		waitFor: map[string]bool{},
	}
	ig, _ := platform.Lookup("instagram")
	extractor := NewExtractor(session, ig, testExtractorConfig(), nil)

	meta, tokens, err := extractor.Extract(context.Background(), "https://www.instagram.com/p/GONE/")
	require.NoError(t, err)
	require.Empty(t, meta.Caption)
	require.Empty(t, tokens)
}

func TestExtractorRejectsJunkHeaderCaption(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<meta property="og:title" content="Log in to Instagram">
<meta property="og:description" content="1,234 Followers, 56 Following">
</head><body><article><ul><li><span dir="auto">bob</span></li></ul></article></body></html>`

	session := &fakeSession{htmlSeq: []string{page}}
	ig, _ := platform.Lookup("instagram")
	extractor := NewExtractor(session, ig, testExtractorConfig(), nil)

	meta, _, err := extractor.Extract(context.Background(), "https://www.instagram.com/p/AAA/")
	require.NoError(t, err)
	require.Empty(t, meta.Caption)
}
