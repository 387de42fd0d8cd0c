package reducers

import (
	"context"
	"encoding/json"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// ApplicationReducer folds application.* events into projections.applications.
type ApplicationReducer struct{ base }

// NewApplicationReducer constructs an ApplicationReducer over store.
func NewApplicationReducer(store *txstore.Store) *ApplicationReducer {
	return &ApplicationReducer{base{store: store}}
}

func (r *ApplicationReducer) Init(ctx context.Context) error { return nil }

func (r *ApplicationReducer) Reset(ctx context.Context) error {
	return r.exec(ctx, `DELETE FROM projections.applications`)
}

func (r *ApplicationReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.ApplicationAdded:
		return r.exec(ctx, `
			INSERT INTO projections.applications (id, instance_id, project_id, name, app_type, state, sequence)
			VALUES ($1, $2, $3, $4, $5, 'active', $6)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, app_type = excluded.app_type, sequence = excluded.sequence, updated_at = now()
			WHERE projections.applications.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, p.ProjectID, p.Name, p.AppType, e.AggregateVersion)

	case eventpayload.ApplicationOIDCConfigChanged:
		config, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.applications SET config = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, config, e.AggregateVersion, e.AggregateID)

	case eventpayload.ApplicationAPIConfigChanged:
		config, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.applications SET config = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, config, e.AggregateVersion, e.AggregateID)

	case eventpayload.ApplicationDeactivated:
		return r.exec(ctx, `
			UPDATE projections.applications SET state = 'deactivated', sequence = $1, updated_at = now()
			WHERE id = $2 AND sequence < $1`, e.AggregateVersion, e.AggregateID)

	case eventpayload.ApplicationRemoved:
		return r.exec(ctx, `
			UPDATE projections.applications SET state = 'removed', sequence = $1, updated_at = now()
			WHERE id = $2 AND sequence < $1`, e.AggregateVersion, e.AggregateID)

	default:
		return nil
	}
}
