// Package mongo provides MongoDB-backed persistence for profile
// aggregates and captured sessions.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/store"
)

// Config controls the MongoDB connection.
type Config struct {
	URI                 string
	Database            string
	AggregateCollection string
	SessionCollection   string
	ConnectTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "socialcrawler"
	}
	if c.AggregateCollection == "" {
		c.AggregateCollection = "profile_aggregates"
	}
	if c.SessionCollection == "" {
		c.SessionCollection = "platform_sessions"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Store reads and writes aggregate and session documents in MongoDB.
type Store struct {
	client     *mongo.Client
	aggregates *mongo.Collection
	sessions   *mongo.Collection
}

// New connects to MongoDB and verifies reachability.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store.mongo.uri is required")
	}
	cfg = cfg.withDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Store{
		client:     client,
		aggregates: db.Collection(cfg.AggregateCollection),
		sessions:   db.Collection(cfg.SessionCollection),
	}, nil
}

// GetAggregate loads and validates the stored aggregate document.
func (s *Store) GetAggregate(ctx context.Context, platform, profile string) (scraper.ProfileAggregate, error) {
	filter := bson.M{"platform": platform, "profile": profile}
	var doc store.AggregateDocument
	err := s.aggregates.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return scraper.ProfileAggregate{}, scraper.ErrAggregateNotFound
	}
	if err != nil {
		return scraper.ProfileAggregate{}, fmt.Errorf("find aggregate: %w", err)
	}
	agg, err := doc.ToAggregate()
	if err != nil {
		return scraper.ProfileAggregate{}, fmt.Errorf("invalid aggregate document: %w", err)
	}
	return agg, nil
}

// PutAggregate upserts the aggregate document for (platform, profile).
func (s *Store) PutAggregate(ctx context.Context, platform string, aggregate scraper.ProfileAggregate) error {
	doc := store.FromAggregate(platform, aggregate, time.Now().UTC())
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid aggregate: %w", err)
	}
	filter := bson.M{"platform": platform, "profile": aggregate.Profile}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.aggregates.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

// GetCookies loads and validates the captured session cookies.
func (s *Store) GetCookies(ctx context.Context, platform string) ([]scraper.Cookie, error) {
	var doc store.SessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"platform": platform}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, scraper.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	cookies, err := doc.ToCookies()
	if err != nil {
		return nil, fmt.Errorf("invalid session document: %w", err)
	}
	return cookies, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
