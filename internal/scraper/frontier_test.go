package scraper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandsignal/socialcrawler/internal/platform"
)

// fakeSession scripts the rendering session: HTML and ScrollHeight
// return successive values, sticking on the last one.
type fakeSession struct {
	mu         sync.Mutex
	htmlSeq    []string
	heightSeq  []int64
	htmlCalls  int
	heightCall int
	navErr     error
	navigated  []string
	clicked    map[string]int
	waitFor    map[string]bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navErr
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.navigated) == 0 {
		return "", nil
	}
	return s.navigated[len(s.navigated)-1], nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.htmlSeq) == 0 {
		return "", nil
	}
	i := s.htmlCalls
	if i >= len(s.htmlSeq) {
		i = len(s.htmlSeq) - 1
	}
	s.htmlCalls++
	return s.htmlSeq[i], nil
}

func (s *fakeSession) ScrollToEnd(context.Context) error { return nil }

func (s *fakeSession) ScrollHeight(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heightSeq) == 0 {
		return 0, nil
	}
	i := s.heightCall
	if i >= len(s.heightSeq) {
		i = len(s.heightSeq) - 1
	}
	s.heightCall++
	return s.heightSeq[i], nil
}

func (s *fakeSession) WaitVisible(_ context.Context, selector string, _ time.Duration) bool {
	if s.waitFor == nil {
		return true
	}
	return s.waitFor[selector]
}

func (s *fakeSession) ClickText(_ context.Context, label string, _ int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clicked == nil {
		s.clicked = make(map[string]int)
	}
	s.clicked[label]++
	return 0
}

func (s *fakeSession) ClickSelector(_ context.Context, selector string, _ int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clicked == nil {
		s.clicked = make(map[string]int)
	}
	s.clicked[selector]++
	return 0
}

func (s *fakeSession) InjectCookies(context.Context, []Cookie) error { return nil }

func (s *fakeSession) Close() error { return nil }

const feedPageOne = `<html><body>
<a href="/p/AAA/">one</a>
<a href="/p/AAA/?utm=x">dup</a>
<a href="/reel/BBB/">reel</a>
<a href="/explore/">nav</a>
<a href="https://evil.example.com/p/CCC/">offsite</a>
</body></html>`

const feedPageTwo = `<html><body>
<a href="/p/AAA/">one</a>
<a href="/reel/BBB/">reel</a>
<a href="/p/DDD/">new</a>
<div data-href="https://www.instagram.com/p/EEE/#frag">embedded</div>
</body></html>`

func testFrontierConfig() FrontierConfig {
	return FrontierConfig{MaxRounds: 10, StaleHeightRounds: 3, Settle: time.Millisecond}
}

func TestFrontierDiscoverDedupesAndOrders(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{feedPageOne, feedPageTwo, feedPageTwo},
		heightSeq: []int64{1000, 2000, 2000, 2000, 2000},
	}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	links, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 0)
	require.NoError(t, err)

	require.Equal(t, []CandidateLink{
		{URL: "https://www.instagram.com/p/AAA/", Category: platform.CategoryPost},
		{URL: "https://www.instagram.com/reel/BBB/", Category: platform.CategoryReel},
		{URL: "https://www.instagram.com/p/DDD/", Category: platform.CategoryPost},
		{URL: "https://www.instagram.com/p/EEE/", Category: platform.CategoryPost},
	}, links)
	require.Equal(t, []string{"https://www.instagram.com/acme/"}, session.navigated)
}

func TestFrontierStopsWhenStale(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{feedPageOne},
		heightSeq: []int64{1000},
	}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	links, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 0)
	require.NoError(t, err)
	require.Len(t, links, 2)

	// Height never changed: one harvesting round per stale-height
	// round plus the final no-new-links round.
	require.LessOrEqual(t, session.htmlCalls, 5)
}

func TestFrontierHonorsMaxLinks(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{feedPageTwo},
		heightSeq: []int64{1000},
	}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	links, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 2)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "https://www.instagram.com/p/AAA/", links[0].URL)
}

func TestFrontierClicksExpandAffordances(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{feedPageOne},
		heightSeq: []int64{1000},
	}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	_, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 0)
	require.NoError(t, err)

	// Every round tries the expansion labels before harvesting.
	for _, label := range ig.ExpandLabels {
		require.Positive(t, session.clicked[label])
	}
}

const facebookFeedPage = `<html><body>
<a href="/permalink.php?story_fbid=1&amp;id=2">permalink</a>
<a href="/story.php?story_fbid=3&amp;id=4">story</a>
<a href="/stories/12345/">stories</a>
<a href="/watch/?v=42">watch</a>
<a href="/acme/posts">scoped</a>
</body></html>`

func TestFrontierClassifiesFacebookPermalinksAndScopedPaths(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{facebookFeedPage},
		heightSeq: []int64{700},
	}
	fb, _ := platform.Lookup("facebook")
	frontier := NewFrontier(session, fb, testFrontierConfig(), nil)

	links, err := frontier.Discover(context.Background(), fb.FeedURL("acme"), "acme", 0)
	require.NoError(t, err)

	byURL := make(map[string]platform.Category, len(links))
	for _, link := range links {
		byURL[link.URL] = link.Category
	}
	require.Equal(t, platform.CategoryPost, byURL["https://www.facebook.com/permalink.php"])
	require.Equal(t, platform.CategoryPost, byURL["https://www.facebook.com/story.php"])
	require.Equal(t, platform.CategoryPost, byURL["https://www.facebook.com/stories/12345/"])
	require.Equal(t, platform.CategoryVideo, byURL["https://www.facebook.com/watch/"])
	require.Equal(t, platform.CategoryPost, byURL["https://www.facebook.com/acme/posts"])
}

func TestFrontierNavigateErrorIsFatal(t *testing.T) {
	t.Parallel()

	session := &fakeSession{navErr: context.DeadlineExceeded}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	_, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 0)
	require.ErrorContains(t, err, "navigate")
}

func TestFrontierEmptyFeedYieldsNoLinks(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		htmlSeq:   []string{"<html><body><a href='/about/'>about</a></body></html>"},
		heightSeq: []int64{500},
	}
	ig, _ := platform.Lookup("instagram")
	frontier := NewFrontier(session, ig, testFrontierConfig(), nil)

	links, err := frontier.Discover(context.Background(), ig.FeedURL("acme"), "acme", 0)
	require.NoError(t, err)
	require.Empty(t, links)
}
