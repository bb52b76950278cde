package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/hash/sha256"
	"github.com/brandsignal/socialcrawler/internal/merge"
	"github.com/brandsignal/socialcrawler/internal/publisher/memory"
	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/session"
	storememory "github.com/brandsignal/socialcrawler/internal/store/memory"
)

type fakeSession struct {
	pages    map[string]string
	navErr   map[string]error
	current  string
	injected []scraper.Cookie
	closed   bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	if err, ok := s.navErr[url]; ok {
		return err
	}
	s.current = url
	return nil
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) { return s.current, nil }

func (s *fakeSession) HTML(context.Context) (string, error) {
	if html, ok := s.pages[s.current]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

func (s *fakeSession) ScrollToEnd(context.Context) error { return nil }

func (s *fakeSession) ScrollHeight(context.Context) (int64, error) { return 1000, nil }

func (s *fakeSession) WaitVisible(context.Context, string, time.Duration) bool { return true }

func (s *fakeSession) ClickText(context.Context, string, int) int { return 0 }

func (s *fakeSession) ClickSelector(context.Context, string, int) int { return 0 }

func (s *fakeSession) InjectCookies(_ context.Context, cookies []scraper.Cookie) error {
	s.injected = append(s.injected, cookies...)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeFactory struct {
	sess *fakeSession
	err  error
}

func (f *fakeFactory) NewSession(context.Context) (scraper.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedIDs struct{ id string }

func (g fixedIDs) NewID() (string, error) { return g.id, nil }

type failingStore struct{}

func (failingStore) GetAggregate(context.Context, string, string) (scraper.ProfileAggregate, error) {
	return scraper.ProfileAggregate{}, scraper.ErrAggregateNotFound
}

func (failingStore) PutAggregate(context.Context, string, scraper.ProfileAggregate) error {
	return errors.New("connection refused")
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func (failingStore) Close(context.Context) error { return nil }

func fastConfig() Config {
	return Config{
		MaxPostsDefault: 5,
		Frontier: scraper.FrontierConfig{
			MaxRounds:         2,
			StaleHeightRounds: 1,
			Settle:            time.Millisecond,
		},
		Extractor: scraper.ExtractorConfig{
			MaxRounds:   2,
			StaleRounds: 1,
			ClickLimit:  1,
			WaitTimeout: time.Millisecond,
			Settle:      time.Millisecond,
		},
	}
}

const feedHTML = `<html><body>
<a href="/p/AAA/">first</a>
<a href="/reel/BBB/">second</a>
</body></html>`

const postAAA = `<html><head>
<meta property="og:title" content="acme on Instagram: &ldquo;spring drop&rdquo;"/>
</head><body><article><ul>
<span dir="auto">alice</span>
<span dir="auto">alice</span>
<span dir="auto">love this</span>
<span dir="auto">2h</span>
</ul></article></body></html>`

const postBBB = `<html><body><article><ul>
<span dir="auto">acme</span>
<span dir="auto">New drop #spring</span>
<span dir="auto">1d</span>
<span dir="auto">bob</span>
<span dir="auto">bob</span>
<span dir="auto">&#128293;&#128293;</span>
<span dir="auto">3h</span>
</ul></article></body></html>`

func scrapePages() map[string]string {
	return map[string]string{
		"https://www.instagram.com/acme/":     feedHTML,
		"https://www.instagram.com/p/AAA/":    postAAA,
		"https://www.instagram.com/reel/BBB/": postBBB,
	}
}

func newTestWorker(t *testing.T, sess *fakeSession, store scraper.AggregateStore, sessions scraper.SessionStore) (*Worker, *memory.Publisher) {
	t.Helper()
	logger := zap.NewNop()
	pub := memory.New()
	w := New(
		&fakeFactory{sess: sess},
		session.NewVault(sessions, logger),
		merge.NewEngine(store, logger),
		pub,
		nil,
		fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		fixedIDs{id: "run-1"},
		sha256.New(),
		fastConfig(),
		logger,
	)
	return w, pub
}

func TestScrapeProfile(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	store.SeedCookies("instagram", []scraper.Cookie{{Name: "sessionid", Value: "abc", Domain: ".instagram.com"}})
	sess := &fakeSession{pages: scrapePages()}
	w, pub := newTestWorker(t, sess, store, store)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, 2, result.PostsScraped)
	require.Equal(t, scraper.MergeInserted, result.Summary.Operation)
	require.Equal(t, 2, result.Summary.Added)
	require.Len(t, sess.injected, 1)
	require.True(t, sess.closed)

	agg, err := store.GetAggregate(context.Background(), "instagram", "acme")
	require.NoError(t, err)
	require.Equal(t, 2, agg.TotalPosts)

	first := agg.Posts[0]
	require.Equal(t, "https://www.instagram.com/p/AAA/", first.PostURL)
	require.Equal(t, "spring drop", first.Caption)
	require.Len(t, first.Comments, 1)
	require.Equal(t, "alice", first.Comments[0].Username)
	require.Equal(t, "love this", first.Comments[0].Text)
	require.Equal(t, "2h", first.Comments[0].PostedBefore)

	second := agg.Posts[1]
	require.Equal(t, "https://www.instagram.com/reel/BBB/", second.PostURL)
	require.Equal(t, "New drop #spring", second.Caption)
	require.Equal(t, []string{"#spring"}, second.Hashtags)
	require.Len(t, second.Comments, 1)
	require.Equal(t, "bob", second.Comments[0].Username)
	require.True(t, second.Comments[0].IsEmojiOnly)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, "run-1", events[0].RunID)
	require.Equal(t, 2, events[0].PostsScraped)
}

func TestScrapeProfileIdempotent(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	sess := &fakeSession{pages: scrapePages()}
	w, _ := newTestWorker(t, sess, store, store)

	first, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, scraper.MergeUpdated, second.Summary.Operation)
	require.Equal(t, 0, second.Summary.Added)
	require.Equal(t, 2, second.Summary.Updated)

	agg, err := store.GetAggregate(context.Background(), "instagram", "acme")
	require.NoError(t, err)
	require.Equal(t, 2, agg.TotalPosts)
}

func TestScrapeProfileRecordsFailedPostAsEmpty(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	sess := &fakeSession{
		pages: scrapePages(),
		navErr: map[string]error{
			"https://www.instagram.com/reel/BBB/": errors.New("net::ERR_TIMED_OUT"),
		},
	}
	w, _ := newTestWorker(t, sess, store, store)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.PostsScraped)

	agg, err := store.GetAggregate(context.Background(), "instagram", "acme")
	require.NoError(t, err)
	require.Equal(t, 2, agg.TotalPosts)

	// The unreachable post is kept as a record with zero comments.
	failed := agg.Posts[1]
	require.Equal(t, "https://www.instagram.com/reel/BBB/", failed.PostURL)
	require.Empty(t, failed.Caption)
	require.Empty(t, failed.Comments)
}

func TestScrapeProfileUnknownPlatform(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	w, _ := newTestWorker(t, &fakeSession{}, store, store)

	_, err := w.ScrapeProfile(context.Background(), "myspace", "acme", 5)
	require.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestScrapeProfileLoginWall(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	sess := &fakeSession{pages: map[string]string{
		"https://www.instagram.com": `<html><body><form id="loginForm"><input name="username"/></form></body></html>`,
	}}
	w, pub := newTestWorker(t, sess, store, store)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, scraper.ReasonNotAuthenticated, result.Reason)
	require.Empty(t, pub.Events())
}

func TestScrapeProfileNoContent(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	sess := &fakeSession{pages: map[string]string{
		"https://www.instagram.com/acme/": "<html><body><p>nothing here</p></body></html>",
	}}
	w, _ := newTestWorker(t, sess, store, store)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, scraper.ReasonNoContent, result.Reason)
}

func TestScrapeProfileStoreUnavailable(t *testing.T) {
	t.Parallel()

	sessions := storememory.New()
	sess := &fakeSession{pages: scrapePages()}
	w, _ := newTestWorker(t, sess, failingStore{}, sessions)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, scraper.ReasonStoreUnavailable, result.Reason)
}

func TestScrapeProfileSessionFailure(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	logger := zap.NewNop()
	w := New(
		&fakeFactory{err: errors.New("browser crashed")},
		session.NewVault(store, logger),
		merge.NewEngine(store, logger),
		nil,
		nil,
		fixedClock{now: time.Now()},
		fixedIDs{id: "run-1"},
		sha256.New(),
		fastConfig(),
		logger,
	)

	result, err := w.ScrapeProfile(context.Background(), "instagram", "acme", 5)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, scraper.ReasonRenderFailed, result.Reason)
}
