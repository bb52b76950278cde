package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	return s, mock
}

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad table;", "sessions")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewWithPool(nil, "", "")
	require.ErrorContains(t, err, "pool is required")
}

func TestGetAggregateNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT doc FROM profile_aggregates").
		WithArgs("instagram", "acme").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAggregate(context.Background(), "instagram", "acme")
	require.ErrorIs(t, err, scraper.ErrAggregateNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAggregateDecodesAndValidates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	t0 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	doc := store.AggregateDocument{
		Platform:      "instagram",
		Profile:       "acme",
		Posts:         []store.PostDocument{{PostURL: "u1", ScrapedAt: t0}},
		TotalPosts:    1,
		LastScrapedAt: t0,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM profile_aggregates").
		WithArgs("instagram", "acme").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(raw))

	agg, err := s.GetAggregate(context.Background(), "instagram", "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", agg.Profile)
	require.Equal(t, 1, agg.TotalPosts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAggregateRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	corrupt, err := json.Marshal(store.AggregateDocument{
		Platform:   "instagram",
		Profile:    "acme",
		TotalPosts: 3,
	})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM profile_aggregates").
		WithArgs("instagram", "acme").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(corrupt))

	_, err = s.GetAggregate(context.Background(), "instagram", "acme")
	require.ErrorContains(t, err, "invalid aggregate document")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutAggregateUpserts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	t0 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	agg := scraper.ProfileAggregate{
		Profile:       "acme",
		Posts:         []scraper.PostRecord{{PostURL: "u1", ScrapedAt: t0}},
		TotalPosts:    1,
		LastScrapedAt: t0,
	}

	mock.ExpectExec("INSERT INTO profile_aggregates").
		WithArgs("instagram", "acme", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutAggregate(context.Background(), "instagram", agg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutAggregateRejectsInvalid(t *testing.T) {
	t.Parallel()

	s, _ := newMockStore(t)
	err := s.PutAggregate(context.Background(), "instagram", scraper.ProfileAggregate{
		Profile:    "acme",
		TotalPosts: 9,
	})
	require.ErrorContains(t, err, "invalid aggregate")
}

func TestGetCookies(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	doc := store.SessionDocument{
		Platform: "instagram",
		Cookies:  []store.CookieDocument{{Name: "sessionid", Value: "v", Domain: ".instagram.com"}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM platform_sessions").
		WithArgs("instagram").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(raw))

	cookies, err := s.GetCookies(context.Background(), "instagram")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	require.Equal(t, "sessionid", cookies[0].Name)

	mock.ExpectQuery("SELECT doc FROM platform_sessions").
		WithArgs("facebook").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetCookies(context.Background(), "facebook")
	require.ErrorIs(t, err, scraper.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
