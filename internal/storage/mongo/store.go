// Package mongo implements the user and event repositories on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection  = "users"
	eventsCollection = "events"

	defaultQueryTimeout = 5 * time.Second
)

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	users   *UserRepository
	events  *EventRepository
	pool    *poolTracker
}

// poolTracker counts connections from driver pool events; the mongo client
// exposes no pool snapshot of its own.
type poolTracker struct {
	open  atomic.Int64
	inUse atomic.Int64
	max   int
}

func (p *poolTracker) monitor() *event.PoolMonitor {
	return &event.PoolMonitor{Event: func(e *event.PoolEvent) {
		switch e.Type {
		case event.ConnectionCreated:
			p.open.Add(1)
		case event.ConnectionClosed:
			p.open.Add(-1)
		case event.GetSucceeded:
			p.inUse.Add(1)
		case event.ConnectionReturned:
			p.inUse.Add(-1)
		}
	}}
}

// Connect dials uri, pings the primary and ensures indexes exist.
func Connect(ctx context.Context, uri, database string, maxConns int, queryTimeout time.Duration) (*Store, error) {
	tracker := &poolTracker{max: 100}
	opts := options.Client().ApplyURI(uri)
	if maxConns > 0 {
		opts.SetMaxPoolSize(uint64(maxConns))
		tracker.max = maxConns
	}
	opts.SetPoolMonitor(tracker.monitor())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewStore(client, database, queryTimeout)
	store.pool = tracker
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func NewStore(client *mongo.Client, database string, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	db := client.Database(database)
	base := repo{
		users:   db.Collection(usersCollection),
		events:  db.Collection(eventsCollection),
		timeout: queryTimeout,
	}
	return &Store{
		client:  client,
		db:      db,
		timeout: queryTimeout,
		users:   &UserRepository{repo: base},
		events:  &EventRepository{repo: base},
	}
}

// EnsureIndexes creates the unique email index and the listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	_, err = s.db.Collection(eventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}, Options: options.Index().SetName("events_date_id_idx")},
		{Keys: bson.D{{Key: "createdBy", Value: 1}}, Options: options.Index().SetName("events_created_by_idx")},
	})
	if err != nil {
		return fmt.Errorf("create events indexes: %w", err)
	}
	return nil
}

func (s *Store) Users() users.Repository   { return s.users }
func (s *Store) Events() events.Repository { return s.events }
func (s *Store) Database() *mongo.Database { return s.db }

// PoolStats is zero for stores built with NewStore around a foreign client.
func (s *Store) PoolStats() metrics.PoolStats {
	if s.pool == nil {
		return metrics.PoolStats{}
	}
	open, inUse := int(s.pool.open.Load()), int(s.pool.inUse.Load())
	return metrics.PoolStats{Open: open, InUse: inUse, Idle: max(open-inUse, 0), Max: s.pool.max}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type repo struct {
	users   *mongo.Collection
	events  *mongo.Collection
	timeout time.Duration
}

func (r repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}
