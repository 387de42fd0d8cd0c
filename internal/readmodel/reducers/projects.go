package reducers

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// ProjectReducer folds project.* events into projections.projects and
// projections.project_roles.
type ProjectReducer struct{ base }

// NewProjectReducer constructs a ProjectReducer over store.
func NewProjectReducer(store *txstore.Store) *ProjectReducer {
	return &ProjectReducer{base{store: store}}
}

func (r *ProjectReducer) Init(ctx context.Context) error { return nil }

func (r *ProjectReducer) Reset(ctx context.Context) error {
	if err := r.exec(ctx, `DELETE FROM projections.project_roles`); err != nil {
		return err
	}
	return r.exec(ctx, `DELETE FROM projections.projects`)
}

func (r *ProjectReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.ProjectAdded:
		return r.exec(ctx, `
			INSERT INTO projections.projects (id, instance_id, org_id, name, state, sequence)
			VALUES ($1, $2, $3, $4, 'active', $5)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, sequence = excluded.sequence, updated_at = now()
			WHERE projections.projects.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, e.ResourceOwner, p.Name, e.AggregateVersion)

	case eventpayload.ProjectChanged:
		return r.exec(ctx, `
			UPDATE projections.projects
			SET name = $1, role_assertion = $2, role_check = $3, state = 'active', sequence = $4, updated_at = now()
			WHERE id = $5 AND sequence < $4`,
			p.Name, p.RoleAssertion, p.RoleCheck, e.AggregateVersion, e.AggregateID)

	case eventpayload.ProjectDeactivated:
		return r.exec(ctx, `
			UPDATE projections.projects SET state = 'deactivated', sequence = $1, updated_at = now()
			WHERE id = $2 AND sequence < $1`, e.AggregateVersion, e.AggregateID)

	case eventpayload.ProjectRemoved:
		return r.exec(ctx, `
			UPDATE projections.projects SET state = 'removed', sequence = $1, updated_at = now()
			WHERE id = $2 AND sequence < $1`, e.AggregateVersion, e.AggregateID)

	case eventpayload.ProjectRoleAdded:
		return r.exec(ctx, `
			INSERT INTO projections.project_roles (instance_id, project_id, role_key, display_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (instance_id, project_id, role_key) DO UPDATE SET display_name = excluded.display_name`,
			e.InstanceID, e.AggregateID, p.RoleKey, p.DisplayName)

	default:
		return nil
	}
}
