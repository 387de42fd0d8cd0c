package reducers

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// MemberReducer folds the member events of every aggregate (instance,
// org, project, project grant) into the single projections.members
// table, keyed by (instance_id, scope, scope_id, user_id). Project-grant
// memberships use "projectID:grantedOrgID" as scope_id since a grant has
// no aggregate of its own distinct from the project it belongs to.
type MemberReducer struct{ base }

// NewMemberReducer constructs a MemberReducer over store.
func NewMemberReducer(store *txstore.Store) *MemberReducer {
	return &MemberReducer{base{store: store}}
}

func (r *MemberReducer) Init(ctx context.Context) error { return nil }

func (r *MemberReducer) Reset(ctx context.Context) error {
	return r.exec(ctx, `DELETE FROM projections.members`)
}

func (r *MemberReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.InstanceMemberAdded:
		return r.upsert(ctx, e, "instance", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.InstanceMemberChanged:
		return r.upsert(ctx, e, "instance", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.InstanceMemberRemoved:
		return r.remove(ctx, e, "instance", e.AggregateID, p.UserID)

	case eventpayload.OrgMemberAdded:
		return r.upsert(ctx, e, "org", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.OrgMemberChanged:
		return r.upsert(ctx, e, "org", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.OrgMemberRemoved:
		return r.remove(ctx, e, "org", e.AggregateID, p.UserID)

	case eventpayload.ProjectMemberAdded:
		return r.upsert(ctx, e, "project", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.ProjectMemberChanged:
		return r.upsert(ctx, e, "project", e.AggregateID, p.UserID, p.Roles)
	case eventpayload.ProjectMemberRemoved:
		return r.remove(ctx, e, "project", e.AggregateID, p.UserID)

	case eventpayload.ProjectGrantMemberAdded:
		return r.upsert(ctx, e, "project_grant", e.AggregateID+":"+p.GrantedOrgID, p.UserID, p.Roles)
	case eventpayload.ProjectGrantMemberRemoved:
		return r.remove(ctx, e, "project_grant", e.AggregateID+":"+p.GrantedOrgID, p.UserID)

	default:
		return nil
	}
}

func (r *MemberReducer) upsert(ctx context.Context, e eventstore.Event, scope, scopeID, userID string, roles []string) error {
	data, err := jsonArray(roles)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		INSERT INTO projections.members (instance_id, scope, scope_id, user_id, roles, sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instance_id, scope, scope_id, user_id) DO UPDATE SET
			roles = excluded.roles, sequence = excluded.sequence
		WHERE projections.members.sequence < excluded.sequence`,
		e.InstanceID, scope, scopeID, userID, data, e.AggregateVersion)
}

func (r *MemberReducer) remove(ctx context.Context, e eventstore.Event, scope, scopeID, userID string) error {
	return r.exec(ctx, `
		DELETE FROM projections.members
		WHERE instance_id = $1 AND scope = $2 AND scope_id = $3 AND user_id = $4`,
		e.InstanceID, scope, scopeID, userID)
}
