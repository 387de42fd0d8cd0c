package eventstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, event_type, aggregate_type, aggregate_id, aggregate_version,
	event_data, editor_user, resource_owner, instance_id,
	position, in_position_order, creation_date, revision`

// Query returns events matching filter.
func (es *eventStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return es.runFilters(ctx, []Filter{filter})
}

// Search returns the union (OR) of events matching any of filters.
func (es *eventStore) Search(ctx context.Context, filters ...Filter) ([]Event, error) {
	if len(filters) == 0 {
		return nil, validationErr("search", "filters", "empty", fmt.Errorf("at least one filter required"))
	}
	return es.runFilters(ctx, filters)
}

// Count returns the number of events matching filter.
func (es *eventStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter, 1)
	sql := "SELECT COUNT(*) FROM events"
	if where != "" {
		sql += " WHERE " + where
	}
	var count int64
	if err := es.store.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, resourceErr("count", "database", err)
	}
	return count, nil
}

func (es *eventStore) runFilters(ctx context.Context, filters []Filter) ([]Event, error) {
	var whereClauses []string
	var args []any
	argIdx := 1
	descending := false
	limit := 0

	for _, f := range filters {
		where, fargs := buildWhere(f, argIdx)
		if where == "" {
			where = "TRUE"
		}
		whereClauses = append(whereClauses, "("+where+")")
		args = append(args, fargs...)
		argIdx += len(fargs)
		if f.Descending {
			descending = true
		}
		if f.Limit > 0 && (limit == 0 || f.Limit < limit) {
			limit = f.Limit
		}
	}

	sqlQuery := "SELECT " + eventColumns + " FROM events"
	if len(whereClauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(whereClauses, " OR ")
	}
	if descending {
		sqlQuery += " ORDER BY position DESC, in_position_order DESC"
	} else {
		sqlQuery += " ORDER BY position ASC, in_position_order ASC"
	}
	if limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := es.store.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, resourceErr("query", "database", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// buildWhere renders one Filter's AND-combined conditions, with
// placeholders starting at argIdx. Returns "" (no conditions) when the
// filter matches everything.
func buildWhere(f Filter, argIdx int) (string, []any) {
	var conds []string
	var args []any

	if len(f.AggregateTypes) > 0 {
		conds = append(conds, fmt.Sprintf("aggregate_type = ANY($%d)", argIdx))
		args = append(args, f.AggregateTypes)
		argIdx++
	}
	if f.AggregateID != "" {
		conds = append(conds, fmt.Sprintf("aggregate_id = $%d", argIdx))
		args = append(args, f.AggregateID)
		argIdx++
	}
	if len(f.EventTypes) > 0 {
		conds = append(conds, fmt.Sprintf("event_type = ANY($%d)", argIdx))
		args = append(args, f.EventTypes)
		argIdx++
	}
	if f.ResourceOwner != "" {
		conds = append(conds, fmt.Sprintf("resource_owner = $%d", argIdx))
		args = append(args, f.ResourceOwner)
		argIdx++
	}
	if f.InstanceID != "" {
		conds = append(conds, fmt.Sprintf("instance_id = $%d", argIdx))
		args = append(args, f.InstanceID)
		argIdx++
	}
	if f.FromPosition != nil {
		conds = append(conds, fmt.Sprintf("(position, in_position_order) > ($%d, $%d)", argIdx, argIdx+1))
		args = append(args, f.FromPosition.Position, f.FromPosition.InPositionOrder)
		argIdx += 2
	}
	if f.AtPosition != nil {
		conds = append(conds, fmt.Sprintf("position = $%d AND in_position_order = $%d", argIdx, argIdx+1))
		args = append(args, f.AtPosition.Position, f.AtPosition.InPositionOrder)
		argIdx += 2
	}

	return strings.Join(conds, " AND "), args
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, resourceErr("query", "database", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.EventType, &e.AggregateType, &e.AggregateID, &e.AggregateVersion,
		&e.Payload, &e.Editor, &e.ResourceOwner, &e.InstanceID,
		&e.Position.Position, &e.Position.InPositionOrder, &e.CreationDate, &e.Revision,
	)
	if err != nil {
		return Event{}, resourceErr("query", "database", fmt.Errorf("scan event: %w", err))
	}
	return e, nil
}
