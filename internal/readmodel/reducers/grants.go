package reducers

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// GrantReducer folds user_grant.* and project.grant.* events into
// projections.user_grants and projections.project_grants.
type GrantReducer struct{ base }

// NewGrantReducer constructs a GrantReducer over store.
func NewGrantReducer(store *txstore.Store) *GrantReducer {
	return &GrantReducer{base{store: store}}
}

func (r *GrantReducer) Init(ctx context.Context) error { return nil }

func (r *GrantReducer) Reset(ctx context.Context) error {
	if err := r.exec(ctx, `DELETE FROM projections.user_grants`); err != nil {
		return err
	}
	return r.exec(ctx, `DELETE FROM projections.project_grants`)
}

func (r *GrantReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.UserGrantAdded:
		roles, err := jsonArray(p.Roles)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			INSERT INTO projections.user_grants
				(id, instance_id, user_id, project_id, project_grant_id, resource_owner, roles, state, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8)
			ON CONFLICT (instance_id, id) DO UPDATE SET
				roles = excluded.roles, sequence = excluded.sequence
			WHERE projections.user_grants.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, p.UserID, p.ProjectID, p.ProjectGrantID, e.ResourceOwner, roles, e.AggregateVersion)

	case eventpayload.UserGrantChanged:
		roles, err := jsonArray(p.Roles)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.user_grants SET roles = $1, sequence = $2
			WHERE instance_id = $3 AND id = $4 AND sequence < $2`,
			roles, e.AggregateVersion, e.InstanceID, e.AggregateID)

	case eventpayload.UserGrantRemoved:
		return r.exec(ctx, `
			UPDATE projections.user_grants SET state = 'removed', sequence = $1
			WHERE instance_id = $2 AND id = $3 AND sequence < $1`,
			e.AggregateVersion, e.InstanceID, e.AggregateID)

	case eventpayload.ProjectGrantAdded:
		roles, err := jsonArray(p.RoleKeys)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			INSERT INTO projections.project_grants (instance_id, project_id, granted_org_id, granted_roles, state, sequence)
			VALUES ($1, $2, $3, $4, 'active', $5)
			ON CONFLICT (instance_id, project_id, granted_org_id) DO UPDATE SET
				granted_roles = excluded.granted_roles, state = 'active', sequence = excluded.sequence
			WHERE projections.project_grants.sequence < excluded.sequence`,
			e.InstanceID, e.AggregateID, p.GrantedOrgID, roles, e.AggregateVersion)

	case eventpayload.ProjectGrantChanged:
		roles, err := jsonArray(p.RoleKeys)
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.project_grants SET granted_roles = $1, sequence = $2
			WHERE instance_id = $3 AND project_id = $4 AND granted_org_id = $5 AND sequence < $2`,
			roles, e.AggregateVersion, e.InstanceID, e.AggregateID, p.GrantedOrgID)

	case eventpayload.ProjectGrantRemoved:
		return r.exec(ctx, `
			UPDATE projections.project_grants SET state = 'removed', sequence = $1
			WHERE instance_id = $2 AND project_id = $3 AND granted_org_id = $4 AND sequence < $1`,
			e.AggregateVersion, e.InstanceID, e.AggregateID, p.GrantedOrgID)

	default:
		return nil
	}
}
