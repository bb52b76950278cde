// Package memory provides an in-memory storage provider for tests
// and single-process development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/store"
)

// Store keeps aggregates and session cookies in process memory. Safe
// for concurrent use.
type Store struct {
	mu         sync.RWMutex
	aggregates map[string]store.AggregateDocument
	sessions   map[string]store.SessionDocument
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		aggregates: make(map[string]store.AggregateDocument),
		sessions:   make(map[string]store.SessionDocument),
	}
}

func key(platform, profile string) string {
	return platform + "/" + profile
}

// GetAggregate returns the stored aggregate or scraper.ErrAggregateNotFound.
func (s *Store) GetAggregate(_ context.Context, platform, profile string) (scraper.ProfileAggregate, error) {
	s.mu.RLock()
	doc, ok := s.aggregates[key(platform, profile)]
	s.mu.RUnlock()
	if !ok {
		return scraper.ProfileAggregate{}, scraper.ErrAggregateNotFound
	}
	return doc.ToAggregate()
}

// PutAggregate stores the aggregate, replacing any previous document.
func (s *Store) PutAggregate(_ context.Context, platform string, aggregate scraper.ProfileAggregate) error {
	doc := store.FromAggregate(platform, aggregate, time.Now().UTC())
	if err := doc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.aggregates[key(platform, aggregate.Profile)] = doc
	s.mu.Unlock()
	return nil
}

// GetCookies returns the seeded cookies or scraper.ErrSessionNotFound.
func (s *Store) GetCookies(_ context.Context, platform string) ([]scraper.Cookie, error) {
	s.mu.RLock()
	doc, ok := s.sessions[platform]
	s.mu.RUnlock()
	if !ok {
		return nil, scraper.ErrSessionNotFound
	}
	return doc.ToCookies()
}

// SeedCookies stores login cookies for a platform.
func (s *Store) SeedCookies(platform string, cookies []scraper.Cookie) {
	doc := store.FromSession(platform, cookies, time.Now().UTC())
	s.mu.Lock()
	s.sessions[platform] = doc
	s.mu.Unlock()
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }
