// Package readmodel exposes typed query APIs over the tables the
// projection engine maintains (pkg/queryfilter compiles the shared
// condition algebra each query type builds on).
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"iamcore/pkg/queryfilter"
	"iamcore/pkg/txstore"
)

// Pagination bounds a search call; Limit is clamped to
// queryfilter.MaxLimit regardless of what the caller requests.
type Pagination struct {
	Offset int
	Limit  int
}

func (p Pagination) toQuery(filter queryfilter.Expr, order []queryfilter.Order) queryfilter.Query {
	return queryfilter.Query{Filter: filter, Order: order, Limit: p.Limit, Offset: p.Offset}
}

// stateRemoved is the tombstone marker stored in every projections.*
// table's state column.
const stateRemoved = "removed"

// withoutTombstones ANDs in a "state <> removed" condition unless
// includeRemoved is set, matching §3.4's default-exclude-tombstones rule.
func withoutTombstones(filter queryfilter.Expr, includeRemoved bool) queryfilter.Expr {
	if includeRemoved {
		if filter == nil {
			return nil
		}
		return filter
	}
	notRemoved := queryfilter.Neq("state", stateRemoved)
	if filter == nil {
		return notRemoved
	}
	return queryfilter.And(filter, notRemoved)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// combineAnd ANDs a fixed condition with an optional, possibly-nil
// filter expression without ever handing a nil child to queryfilter.And.
func combineAnd(fixed queryfilter.Expr, optional queryfilter.Expr) queryfilter.Expr {
	if optional == nil {
		return fixed
	}
	return queryfilter.And(fixed, optional)
}

// jsonStringSlice scans a JSONB array column into a []string.
type jsonStringSlice []string

func (s *jsonStringSlice) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("readmodel: cannot scan %T into jsonStringSlice", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("readmodel: unmarshal jsonStringSlice: %w", err)
	}
	*s = out
	return nil
}

// base is embedded by every entity's query type; it holds the shared
// store handle so entity files only add table-specific SQL.
type base struct {
	store *txstore.Store
}

func newBase(store *txstore.Store) base { return base{store: store} }

func (b base) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return b.store.Query(ctx, sql, args...)
}

func (b base) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return b.store.QueryRow(ctx, sql, args...)
}
