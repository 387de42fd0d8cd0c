// Package eventstore implements the append-only, strictly-ordered event
// log with optimistic concurrency control on aggregates (spec §4.C).
package eventstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"iamcore/pkg/idgen"
	"iamcore/pkg/txstore"
)

// EventStore is the core contract consumed by the command layer (F),
// read-model projections (D), and operational tooling.
type EventStore interface {
	// Push appends a single command as an event for its aggregate.
	Push(ctx context.Context, cmd Cmd) (Event, error)

	// PushMany appends one or more commands as events for a single
	// aggregate, unconditionally. All commands must share one
	// AggregateType/AggregateID/InstanceID.
	PushMany(ctx context.Context, cmds []Cmd) ([]Event, error)

	// PushWithConcurrencyCheck behaves like PushMany but fails with
	// ConcurrencyError unless the aggregate's current version equals
	// expectedVersion.
	PushWithConcurrencyCheck(ctx context.Context, cmds []Cmd, expectedVersion int64) ([]Event, error)

	// Query returns events matching filter, in (Position, InPositionOrder)
	// order (descending if requested).
	Query(ctx context.Context, filter Filter) ([]Event, error)

	// Search returns the union of events matching any of the given
	// filters (spec §4.C "disjunction of filters").
	Search(ctx context.Context, filters ...Filter) ([]Event, error)

	// Count returns the number of events matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// LatestEvent returns the highest-position event for one aggregate,
	// or (Event{}, false, nil) if the aggregate has no events.
	LatestEvent(ctx context.Context, aggregateType, aggregateID, instanceID string) (Event, bool, error)

	// Aggregate returns the full (or truncated, if untilVersion > 0)
	// event history for one aggregate.
	Aggregate(ctx context.Context, aggregateType, aggregateID, instanceID string, untilVersion int64) (Aggregate, error)

	// EventsAfterPosition returns up to limit events strictly after pos,
	// in ascending (Position, InPositionOrder) order. Used by the
	// projection engine to drain a batch.
	EventsAfterPosition(ctx context.Context, instanceID string, pos Position, limit int) ([]Event, error)

	// MaxPosition returns the highest Position written to the log for
	// instanceID, used by the projection position oracle to measure lag.
	MaxPosition(ctx context.Context, instanceID string) (Position, error)

	// Health reports whether the underlying store is reachable.
	Health(ctx context.Context) error

	// Close releases underlying resources.
	Close()
}

// Config configures EventStore behavior (spec §6.5).
type Config struct {
	InstanceID           string
	MaxPushBatchSize     int
	PushTimeoutSeconds   int
	EnableSubscriptions  bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPushBatchSize:   100,
		PushTimeoutSeconds: 30,
	}
}

type eventStore struct {
	store  *txstore.Store
	ids    *idgen.Generator
	config Config
}

// New constructs an EventStore backed by pool, using ids to mint event
// identifiers.
func New(ctx context.Context, pool *pgxpool.Pool, ids *idgen.Generator, config Config) (EventStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, resourceErr("New", "database", err)
	}
	if config.MaxPushBatchSize <= 0 {
		config.MaxPushBatchSize = 100
	}
	if config.PushTimeoutSeconds <= 0 {
		config.PushTimeoutSeconds = 30
	}
	return &eventStore{
		store:  txstore.New(pool),
		ids:    ids,
		config: config,
	}, nil
}
