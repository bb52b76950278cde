package scraper

import (
	"context"
	"errors"
	"time"
)

// ErrAggregateNotFound is returned by AggregateStore.Get when no
// document exists for the profile.
var ErrAggregateNotFound = errors.New("aggregate not found")

// ErrSessionNotFound is returned by SessionStore.GetCookies when no
// cookies were captured for the platform.
var ErrSessionNotFound = errors.New("session cookies not found")

// Session is one live rendering session (a browser tab). Click
// operations return how many nodes were actually clicked and never
// fail the run; navigation and reads report errors so callers can
// classify the outcome.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	ScrollToEnd(ctx context.Context) error
	ScrollHeight(ctx context.Context) (int64, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) bool
	ClickText(ctx context.Context, label string, limit int) int
	ClickSelector(ctx context.Context, selector string, limit int) int
	InjectCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// SessionFactory creates an isolated Session per scrape run.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// AggregateStore persists per-profile aggregates.
type AggregateStore interface {
	GetAggregate(ctx context.Context, platform, profile string) (ProfileAggregate, error)
	PutAggregate(ctx context.Context, platform string, aggregate ProfileAggregate) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionStore retrieves captured login cookies per platform.
type SessionStore interface {
	GetCookies(ctx context.Context, platform string) ([]Cookie, error)
}

// Publisher pushes scrape-completed events to Pub/Sub (or similar).
type Publisher interface {
	PublishScrapeCompleted(ctx context.Context, event ScrapeCompletedEvent) (string, error)
}

// CaptureArchive writes raw page captures and returns a URI.
type CaptureArchive interface {
	SaveCapture(ctx context.Context, key string, html []byte) (string, error)
}

// Hasher digests capture bodies so archive keys are content
// addressed.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
