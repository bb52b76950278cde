// Package memory contains an in-memory publisher for tests and
// single-process development runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/brandsignal/socialcrawler/internal/scraper"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []scraper.ScrapeCompletedEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishScrapeCompleted records the event and returns a pseudo ID.
func (p *Publisher) PublishScrapeCompleted(_ context.Context, event scraper.ScrapeCompletedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []scraper.ScrapeCompletedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]scraper.ScrapeCompletedEvent, len(p.events))
	copy(out, p.events)
	return out
}
