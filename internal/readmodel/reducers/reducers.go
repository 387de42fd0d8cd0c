// Package reducers implements projection.Reducer for every projections.*
// table: one reducer per aggregate family, decoding events through
// internal/eventpayload and folding them into idempotent upserts guarded
// by each row's aggregate version so replays and out-of-order redelivery
// never regress a row to older state.
package reducers

import (
	"context"
	"encoding/json"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

type base struct {
	store *txstore.Store
}

func (b base) exec(ctx context.Context, sql string, args ...any) error {
	_, err := b.store.Exec(ctx, sql, args...)
	return err
}

// decode is the shared entry point every reducer's Reduce calls first;
// Opaque payloads (event types the reducer has no case for) are left to
// the caller's default branch, which does nothing.
func decode(e eventstore.Event) (eventpayload.Payload, error) {
	return eventpayload.Decode(e)
}

func jsonArray(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}
