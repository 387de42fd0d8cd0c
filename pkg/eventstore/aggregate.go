package eventstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// LatestEvent returns the highest-version event for one aggregate.
func (es *eventStore) LatestEvent(ctx context.Context, aggregateType, aggregateID, instanceID string) (Event, bool, error) {
	sql := "SELECT " + eventColumns + ` FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND instance_id = $3
		ORDER BY aggregate_version DESC LIMIT 1`
	row := es.store.QueryRow(ctx, sql, aggregateType, aggregateID, instanceID)
	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	return e, true, nil
}

// Aggregate returns the full event history for one aggregate, optionally
// truncated to versions 1..untilVersion when untilVersion > 0.
func (es *eventStore) Aggregate(ctx context.Context, aggregateType, aggregateID, instanceID string, untilVersion int64) (Aggregate, error) {
	sql := "SELECT " + eventColumns + ` FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND instance_id = $3`
	args := []any{aggregateType, aggregateID, instanceID}
	if untilVersion > 0 {
		sql += " AND aggregate_version <= $4"
		args = append(args, untilVersion)
	}
	sql += " ORDER BY aggregate_version ASC"

	rows, err := es.store.Query(ctx, sql, args...)
	if err != nil {
		return Aggregate{}, resourceErr("aggregate", "database", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return Aggregate{}, err
	}

	agg := Aggregate{Type: aggregateType, ID: aggregateID, InstanceID: instanceID, Events: events}
	if len(events) > 0 {
		agg.Version = events[len(events)-1].AggregateVersion
	}
	return agg, nil
}

// EventsAfterPosition returns up to limit events strictly after pos, in
// ascending order, scoped to instanceID.
func (es *eventStore) EventsAfterPosition(ctx context.Context, instanceID string, pos Position, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + eventColumns + ` FROM events
		WHERE instance_id = $1 AND (position, in_position_order) > ($2, $3)
		ORDER BY position ASC, in_position_order ASC
		LIMIT $4`
	rows, err := es.store.Query(ctx, sql, instanceID, pos.Position, pos.InPositionOrder, limit)
	if err != nil {
		return nil, resourceErr("eventsAfterPosition", "database", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MaxPosition returns the highest Position in the log for instanceID.
func (es *eventStore) MaxPosition(ctx context.Context, instanceID string) (Position, error) {
	var pos *int64
	var order *int32
	err := es.store.QueryRow(ctx, `
		SELECT position, in_position_order FROM events
		WHERE instance_id = $1
		ORDER BY position DESC, in_position_order DESC LIMIT 1
	`, instanceID).Scan(&pos, &order)
	if err != nil {
		if isNoRows(err) {
			return Position{}, nil
		}
		return Position{}, resourceErr("maxPosition", "database", err)
	}
	if pos == nil {
		return Position{}, nil
	}
	return Position{Position: *pos, InPositionOrder: *order}, nil
}

// Health reports whether the underlying store is reachable.
func (es *eventStore) Health(ctx context.Context) error {
	return es.store.Health(ctx)
}

// Close releases underlying resources.
func (es *eventStore) Close() {
	es.store.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
