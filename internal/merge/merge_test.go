package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

func post(url string, scrapedAt time.Time, caption string) scraper.PostRecord {
	return scraper.PostRecord{PostURL: url, Caption: caption, ScrapedAt: scrapedAt}
}

func TestMergeInsertNewProfile(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	fresh := []scraper.PostRecord{post("u1", t1, "a"), post("u2", t2, "b")}

	agg, summary := Merge("acme", nil, fresh)

	require.Equal(t, scraper.MergeInserted, summary.Operation)
	require.Equal(t, 2, summary.Added)
	require.Zero(t, summary.Updated)
	require.Equal(t, "acme", agg.Profile)
	require.Equal(t, 2, agg.TotalPosts)
	require.Len(t, agg.Posts, 2)
	require.Equal(t, t2, agg.LastScrapedAt)
}

func TestMergeUpdateReplacesAndAppends(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	existing := scraper.ProfileAggregate{
		Profile:       "acme",
		Posts:         []scraper.PostRecord{post("u1", t0, "old"), post("u2", t0, "keep")},
		TotalPosts:    2,
		LastScrapedAt: t0,
	}
	fresh := []scraper.PostRecord{post("u1", t1, "new"), post("u3", t1, "added")}

	agg, summary := Merge("acme", &existing, fresh)

	require.Equal(t, scraper.MergeUpdated, summary.Operation)
	require.Equal(t, 1, summary.Added)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, 3, agg.TotalPosts)

	// Replaced in place, original position kept.
	require.Equal(t, "u1", agg.Posts[0].PostURL)
	require.Equal(t, "new", agg.Posts[0].Caption)
	require.Equal(t, "keep", agg.Posts[1].Caption)
	require.Equal(t, "u3", agg.Posts[2].PostURL)
	require.Equal(t, t1, agg.LastScrapedAt)
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	fresh := []scraper.PostRecord{post("u1", t1, "a"), post("u2", t1, "b")}

	first, _ := Merge("acme", nil, fresh)
	second, summary := Merge("acme", &first, fresh)

	require.Equal(t, first, second)
	require.Zero(t, summary.Added)
	require.Equal(t, 2, summary.Updated)
}

func TestMergeEmptyFreshKeepsAggregate(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	existing := scraper.ProfileAggregate{
		Profile:       "acme",
		Posts:         []scraper.PostRecord{post("u1", t0, "a")},
		TotalPosts:    1,
		LastScrapedAt: t0,
	}

	agg, summary := Merge("acme", &existing, nil)

	require.Equal(t, existing, agg)
	require.Zero(t, summary.Added)
	require.Zero(t, summary.Updated)
	require.Equal(t, t0, agg.LastScrapedAt)
}

func TestMergeURLLessPostsAlwaysAppend(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	existing := scraper.ProfileAggregate{
		Profile:    "acme",
		Posts:      []scraper.PostRecord{post("u1", t0, "a")},
		TotalPosts: 1,
	}
	fresh := []scraper.PostRecord{post("", t0, "x"), post("", t0, "y")}

	agg, summary := Merge("acme", &existing, fresh)

	require.Equal(t, 2, summary.Added)
	require.Zero(t, summary.Updated)
	require.Equal(t, 3, agg.TotalPosts)
	require.Equal(t, "x", agg.Posts[1].Caption)
	require.Equal(t, "y", agg.Posts[2].Caption)
}

func TestMergeDoesNotMutateExisting(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	existing := scraper.ProfileAggregate{
		Profile:    "acme",
		Posts:      []scraper.PostRecord{post("u1", t0, "orig")},
		TotalPosts: 1,
	}
	fresh := []scraper.PostRecord{post("u1", t0.Add(time.Hour), "changed")}

	_, _ = Merge("acme", &existing, fresh)

	require.Equal(t, "orig", existing.Posts[0].Caption)
}

type fakeStore struct {
	scraper.AggregateStore

	aggregates map[string]scraper.ProfileAggregate
	getErr     error
	putErr     error
	puts       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{aggregates: make(map[string]scraper.ProfileAggregate)}
}

func (s *fakeStore) GetAggregate(_ context.Context, platform, profile string) (scraper.ProfileAggregate, error) {
	if s.getErr != nil {
		return scraper.ProfileAggregate{}, s.getErr
	}
	agg, ok := s.aggregates[platform+"/"+profile]
	if !ok {
		return scraper.ProfileAggregate{}, scraper.ErrAggregateNotFound
	}
	return agg, nil
}

func (s *fakeStore) PutAggregate(_ context.Context, platform string, agg scraper.ProfileAggregate) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.aggregates[platform+"/"+agg.Profile] = agg
	return nil
}

func TestEngineApplyInsertThenUpdate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	engine := NewEngine(store, zap.NewNop())
	t1 := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	_, summary, err := engine.Apply(context.Background(), "instagram", "acme",
		[]scraper.PostRecord{post("u1", t1, "a")})
	require.NoError(t, err)
	require.Equal(t, scraper.MergeInserted, summary.Operation)

	_, summary, err = engine.Apply(context.Background(), "instagram", "acme",
		[]scraper.PostRecord{post("u1", t1.Add(time.Hour), "a2"), post("u2", t1.Add(time.Hour), "b")})
	require.NoError(t, err)
	require.Equal(t, scraper.MergeUpdated, summary.Operation)
	require.Equal(t, 1, summary.Added)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, 2, store.puts)
}

func TestEngineApplyStoreErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	engine := NewEngine(store, zap.NewNop())

	_, _, err := engine.Apply(context.Background(), "instagram", "acme", nil)
	require.ErrorContains(t, err, "load aggregate")

	store.getErr = nil
	store.putErr = errors.New("write failed")
	_, _, err = engine.Apply(context.Background(), "instagram", "acme", nil)
	require.ErrorContains(t, err, "store aggregate")
}
