// Package projection runs background handlers that tail the event log and
// transactionally fold events into read-model tables, one handler per
// named projection, coordinating across replicas with advisory locks.
package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// State is a projection handler's lifecycle phase.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateCatchUp
	StateLive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateCatchUp:
		return "CATCH_UP"
	case StateLive:
		return "LIVE"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Reducer applies events to a projection's read-model tables. Init runs
// once when a handler starts; Reset tears down the projection's tables so
// a rebuild can start from genesis. Reduce must be idempotent: handlers
// replay events after restarts and after savepoint rollbacks.
type Reducer interface {
	Init(ctx context.Context) error
	Reduce(ctx context.Context, e eventstore.Event) error
	Reset(ctx context.Context) error
}

// Config configures one projection handler (spec §4.D / §6.5).
type Config struct {
	Name           string
	AggregateTypes []string
	EventTypes     []string
	BatchSize      int
	Interval       time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	EnableLocking  bool
	InstanceID     string
	RebuildOnStart bool
}

// DefaultConfig fills in the defaults from spec §6.5.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		BatchSize:     100,
		Interval:      time.Second,
		MaxRetries:    5,
		RetryDelay:    time.Second,
		EnableLocking: true,
	}
}

const maxConsecutiveTxErrors = 10

// Handler runs one projection's state machine in the background.
type Handler struct {
	cfg     Config
	store   *txstore.Store
	es      eventstore.EventStore
	reducer Reducer

	mu           sync.RWMutex
	state        State
	position     eventstore.Position
	lastErr      error
	txErrorCount int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHandler constructs a handler for reducer, bound to store/es.
func NewHandler(cfg Config, store *txstore.Store, es eventstore.EventStore, reducer Reducer) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		es:      es,
		reducer: reducer,
		state:   StateStopped,
	}
}

// State returns the handler's current lifecycle phase.
func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Position returns the last position this handler has durably applied.
func (h *Handler) Position() eventstore.Position {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.position
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Start transitions STOPPED→STARTING→CATCH_UP→LIVE and runs the polling
// loop until the context is canceled or Stop is called. Starting an
// already-running handler fails.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateStopped {
		h.mu.Unlock()
		return fmt.Errorf("projection %s: already running (state=%s)", h.cfg.Name, h.state)
	}
	h.state = StateStarting
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.mu.Unlock()

	if h.cfg.RebuildOnStart {
		if err := h.reducer.Reset(ctx); err != nil {
			h.setState(StateStopped)
			return fmt.Errorf("projection %s: reset: %w", h.cfg.Name, err)
		}
		if err := h.setPersistedPosition(ctx, eventstore.Position{}); err != nil {
			h.setState(StateStopped)
			return fmt.Errorf("projection %s: reset position: %w", h.cfg.Name, err)
		}
	}
	if err := h.reducer.Init(ctx); err != nil {
		h.setState(StateStopped)
		return fmt.Errorf("projection %s: init: %w", h.cfg.Name, err)
	}

	pos, err := h.loadPosition(ctx)
	if err != nil {
		h.setState(StateStopped)
		return fmt.Errorf("projection %s: load position: %w", h.cfg.Name, err)
	}
	h.mu.Lock()
	h.position = pos
	h.state = StateCatchUp
	h.mu.Unlock()

	go h.run(ctx)
	return nil
}

// Stop requests the handler transition to STOPPING and waits for the
// in-flight iteration to finish before reaching STOPPED. Stopping a
// stopped handler is a no-op.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return
	}
	h.state = StateStopping
	stopCh := h.stopCh
	doneCh := h.doneCh
	h.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (h *Handler) run(ctx context.Context) {
	defer func() {
		h.setState(StateStopped)
		close(h.doneCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		default:
		}

		n, err := h.iterate(ctx)
		if err != nil {
			h.mu.Lock()
			h.lastErr = err
			h.txErrorCount++
			stop := h.txErrorCount >= maxConsecutiveTxErrors
			h.mu.Unlock()
			if stop {
				return
			}
			h.sleep(h.cfg.RetryDelay)
			continue
		}

		h.mu.Lock()
		h.txErrorCount = 0
		if n < h.cfg.BatchSize {
			if h.state == StateCatchUp {
				h.state = StateLive
			}
		}
		state := h.state
		h.mu.Unlock()

		if state == StateLive {
			h.sleep(h.cfg.Interval)
		}
	}
}

func (h *Handler) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-h.stopCh:
	}
}

// iterate runs exactly one batch transaction and returns the number of
// events that were fetched for this tick (spec §4.D iteration algorithm).
func (h *Handler) iterate(ctx context.Context) (int, error) {
	batchSize := h.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var fetched int
	var newPos eventstore.Position
	advanced := false
	err := h.store.WithTransaction(ctx, func(ctx context.Context) error {
		if h.cfg.EnableLocking {
			key := txstore.HashLockKey("projection", h.cfg.Name, h.cfg.InstanceID)
			ok, err := h.store.TryAdvisoryXactLock(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}

		currentPos := h.Position()
		events, err := h.es.EventsAfterPosition(ctx, h.cfg.InstanceID, currentPos, batchSize)
		if err != nil {
			return err
		}
		fetched = len(events)
		if len(events) == 0 {
			return nil
		}

		newPos = currentPos
		for _, e := range events {
			if !h.matches(e) {
				newPos = e.Position
				continue
			}
			if err := h.applyWithSavepoint(ctx, e); err != nil {
				if qerr := h.quarantine(ctx, e, err); qerr != nil {
					return qerr
				}
			}
			newPos = e.Position
		}

		if err := h.persistPosition(ctx, newPos); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if advanced {
		h.mu.Lock()
		h.position = newPos
		h.mu.Unlock()
	}
	return fetched, nil
}

func (h *Handler) matches(e eventstore.Event) bool {
	if len(h.cfg.AggregateTypes) > 0 && !contains(h.cfg.AggregateTypes, e.AggregateType) {
		return false
	}
	if len(h.cfg.EventTypes) > 0 && !contains(h.cfg.EventTypes, e.EventType) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// applyWithSavepoint isolates one reducer call in its own savepoint so a
// poison event rolls back without aborting the rest of the batch.
func (h *Handler) applyWithSavepoint(ctx context.Context, e eventstore.Event) error {
	return h.store.WithSavepoint(ctx, func(ctx context.Context) error {
		return h.reducer.Reduce(ctx, e)
	})
}

func (h *Handler) loadPosition(ctx context.Context) (eventstore.Position, error) {
	var pos int64
	var order int32
	row := h.store.QueryRow(ctx, `
		SELECT position, in_position_order FROM projection_states
		WHERE projection_name = $1 AND instance_id = $2
	`, h.cfg.Name, h.cfg.InstanceID)
	err := row.Scan(&pos, &order)
	if err != nil {
		return eventstore.Position{}, nil
	}
	return eventstore.Position{Position: pos, InPositionOrder: order}, nil
}

func (h *Handler) setPersistedPosition(ctx context.Context, pos eventstore.Position) error {
	_, err := h.store.Exec(ctx, `
		INSERT INTO projection_states (projection_name, instance_id, position, in_position_order, last_updated)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (projection_name, instance_id)
		DO UPDATE SET position = $3, in_position_order = $4, last_updated = now()
	`, h.cfg.Name, h.cfg.InstanceID, pos.Position, pos.InPositionOrder)
	return err
}

func (h *Handler) persistPosition(ctx context.Context, pos eventstore.Position) error {
	return h.setPersistedPosition(ctx, pos)
}

func (h *Handler) quarantine(ctx context.Context, e eventstore.Event, reduceErr error) error {
	_, err := h.store.Exec(ctx, `
		INSERT INTO projection_failed_events
			(projection_name, failed_position, failed_in_position_order, failure_count, error, event_data, last_failed, instance_id)
		VALUES ($1, $2, $3, 1, $4, $5, now(), $6)
		ON CONFLICT (projection_name, failed_position, failed_in_position_order)
		DO UPDATE SET failure_count = projection_failed_events.failure_count + 1,
			error = $4, event_data = $5, last_failed = now()
	`, h.cfg.Name, e.Position.Position, e.Position.InPositionOrder, reduceErr.Error(), e.Payload, h.cfg.InstanceID)
	return err
}

// RetryFailedEvent re-runs the reducer for one quarantined event and, on
// success, deletes its failed-events record. It never runs automatically:
// the core engine only quarantines and keeps going (spec §4.D), so
// draining quarantined events is always an explicit operator action.
func (h *Handler) RetryFailedEvent(ctx context.Context, position int64, inPositionOrder int32) error {
	return h.store.WithTransaction(ctx, func(ctx context.Context) error {
		var payload []byte
		row := h.store.QueryRow(ctx, `
			SELECT event_data FROM projection_failed_events
			WHERE projection_name = $1 AND failed_position = $2 AND failed_in_position_order = $3 AND instance_id = $4
		`, h.cfg.Name, position, inPositionOrder, h.cfg.InstanceID)
		if err := row.Scan(&payload); err != nil {
			return fmt.Errorf("projection %s: retry: no quarantined event at (%d,%d): %w", h.cfg.Name, position, inPositionOrder, err)
		}

		events, err := h.es.Query(ctx, eventstore.Filter{
			InstanceID: h.cfg.InstanceID,
			AtPosition: &eventstore.Position{Position: position, InPositionOrder: inPositionOrder},
			Limit:      1,
		})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("projection %s: retry: event at position (%d,%d) not found in log", h.cfg.Name, position, inPositionOrder)
		}

		if err := h.applyWithSavepoint(ctx, events[0]); err != nil {
			return h.quarantine(ctx, events[0], err)
		}

		_, err = h.store.Exec(ctx, `
			DELETE FROM projection_failed_events
			WHERE projection_name = $1 AND failed_position = $2 AND failed_in_position_order = $3 AND instance_id = $4
		`, h.cfg.Name, position, inPositionOrder, h.cfg.InstanceID)
		return err
	})
}
