package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"iamcore/pkg/txstore"
)

// Push appends a single command as an event for its aggregate,
// unconditionally (no concurrency check).
func (es *eventStore) Push(ctx context.Context, cmd Cmd) (Event, error) {
	events, err := es.PushMany(ctx, []Cmd{cmd})
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// PushMany appends cmds unconditionally.
func (es *eventStore) PushMany(ctx context.Context, cmds []Cmd) ([]Event, error) {
	return es.push(ctx, cmds, nil)
}

// PushWithConcurrencyCheck appends cmds only if the aggregate's current
// version equals expectedVersion.
func (es *eventStore) PushWithConcurrencyCheck(ctx context.Context, cmds []Cmd, expectedVersion int64) ([]Event, error) {
	return es.push(ctx, cmds, &expectedVersion)
}

func (es *eventStore) push(ctx context.Context, cmds []Cmd, expectedVersion *int64) ([]Event, error) {
	if err := validateBatch(cmds, es.config.MaxPushBatchSize); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(es.config.PushTimeoutSeconds)*time.Second)
	defer cancel()

	aggregateType := cmds[0].AggregateType
	aggregateID := cmds[0].AggregateID
	instanceID := cmds[0].InstanceID

	var events []Event
	err := es.store.WithTransaction(ctx, func(ctx context.Context) error {
		// Step 1: serialize writers for this aggregate (spec §4.C step 1).
		lockKey := aggregateLockKey(aggregateType, aggregateID, instanceID)
		if err := es.store.AdvisoryXactLock(ctx, lockKey); err != nil {
			return resourceErr("push", "database", err)
		}

		// Step 2: read current version, enforce the concurrency check.
		currentVersion, err := es.currentVersion(ctx, aggregateType, aggregateID, instanceID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && currentVersion != *expectedVersion {
			return &ConcurrencyError{
				EventStoreError: EventStoreError{Op: "push", Err: fmt.Errorf("aggregate version mismatch")},
				Expected:        *expectedVersion,
				Actual:          currentVersion,
			}
		}

		// Step 3/4: assign position + in-position-order + version, insert.
		built, err := es.buildEvents(ctx, cmds, currentVersion)
		if err != nil {
			return err
		}
		if err := es.insertEvents(ctx, built); err != nil {
			return err
		}
		events = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func validateBatch(cmds []Cmd, maxBatch int) error {
	if len(cmds) == 0 {
		return validationErr("push", "cmds", "empty", fmt.Errorf("at least one command required"))
	}
	if len(cmds) > maxBatch {
		return validationErr("push", "cmds", fmt.Sprintf("count=%d", len(cmds)), fmt.Errorf("batch size %d exceeds maximum of %d", len(cmds), maxBatch))
	}

	first := cmds[0]
	if first.AggregateType == "" || first.AggregateID == "" || first.InstanceID == "" {
		return validationErr("push", "aggregate", "incomplete", fmt.Errorf("aggregateType, aggregateID and instanceID are required"))
	}

	for i, c := range cmds {
		if c.EventType == "" {
			return validationErr("push", "eventType", "empty", fmt.Errorf("command at index %d has empty event type", i))
		}
		if c.AggregateType != first.AggregateType || c.AggregateID != first.AggregateID || c.InstanceID != first.InstanceID {
			return validationErr("push", "aggregate", "mismatched", fmt.Errorf("command at index %d targets a different aggregate than the batch", i))
		}
	}
	return nil
}

func (es *eventStore) currentVersion(ctx context.Context, aggregateType, aggregateID, instanceID string) (int64, error) {
	var version *int64
	err := es.store.QueryRow(ctx, `
		SELECT MAX(aggregate_version) FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND instance_id = $3
	`, aggregateType, aggregateID, instanceID).Scan(&version)
	if err != nil {
		return 0, resourceErr("push", "database", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

func (es *eventStore) buildEvents(ctx context.Context, cmds []Cmd, currentVersion int64) ([]Event, error) {
	basePosition, err := es.nextPositionBlock(ctx, len(cmds))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	events := make([]Event, len(cmds))
	for i, c := range cmds {
		id, err := es.ids.NextString()
		if err != nil {
			return nil, resourceErr("push", "idgen", err)
		}
		events[i] = Event{
			ID:               id,
			EventType:        c.EventType,
			AggregateType:    c.AggregateType,
			AggregateID:       c.AggregateID,
			AggregateVersion: currentVersion + int64(i) + 1,
			Payload:          c.Payload,
			Editor:           c.Editor,
			ResourceOwner:    c.ResourceOwner,
			InstanceID:       c.InstanceID,
			Position:         Position{Position: basePosition, InPositionOrder: int32(i)},
			CreationDate:     now,
			Revision:         c.Revision,
		}
	}
	return events, nil
}

// nextPositionBlock reserves a single global position for the whole
// batch; InPositionOrder (0..N-1) disambiguates events within it. This
// keeps the total order across aggregates compatible with commit order
// while letting every event in one transaction share a position.
func (es *eventStore) nextPositionBlock(ctx context.Context, _ int) (int64, error) {
	var pos int64
	err := es.store.QueryRow(ctx, `SELECT nextval('events_position_seq')`).Scan(&pos)
	if err != nil {
		return 0, resourceErr("push", "database", err)
	}
	return pos, nil
}

func (es *eventStore) insertEvents(ctx context.Context, events []Event) error {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO events (
				id, event_type, aggregate_type, aggregate_id, aggregate_version,
				event_data, editor_user, resource_owner, instance_id,
				position, in_position_order, creation_date, revision
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, e.ID, e.EventType, e.AggregateType, e.AggregateID, e.AggregateVersion,
			e.Payload, e.Editor, e.ResourceOwner, e.InstanceID,
			e.Position.Position, e.Position.InPositionOrder, e.CreationDate, e.Revision)
	}

	br := es.store.Querier(ctx).(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	}).SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return resourceErr("push", "database", fmt.Errorf("insert event: %w", err))
		}
	}
	return nil
}

func aggregateLockKey(aggregateType, aggregateID, instanceID string) int64 {
	return txstore.HashLockKey(aggregateType, aggregateID, instanceID)
}
