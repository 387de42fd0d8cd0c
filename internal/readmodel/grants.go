package readmodel

import (
	"context"

	"iamcore/pkg/txstore"
)

// UserGrant is one row of projections.user_grants: a direct grant of
// project roles to a user, optionally scoped through a project grant to
// another org (§3.4).
type UserGrant struct {
	ID             string
	InstanceID     string
	UserID         string
	ProjectID      string
	ProjectGrantID string
	ResourceOwner  string
	Roles          []string
	State          string
	Sequence       int64
}

// ProjectGrant is one row of projections.project_grants: a project owner
// granting a set of its roles to another org.
type ProjectGrant struct {
	InstanceID   string
	ProjectID    string
	GrantedOrgID string
	GrantedRoles []string
	State        string
	Sequence     int64
}

const userGrantColumns = `id, instance_id, user_id, project_id, project_grant_id, resource_owner, roles, state, sequence`
const projectGrantColumns = `instance_id, project_id, granted_org_id, granted_roles, state, sequence`

// GrantQueries reads projections.user_grants and projections.project_grants.
type GrantQueries struct{ base }

// NewGrantQueries constructs a GrantQueries over store.
func NewGrantQueries(store *txstore.Store) GrantQueries { return GrantQueries{newBase(store)} }

// ListUserGrantsByUser returns every active user grant for userID — the
// permission engine's second aggregation source (§4.G).
func (q GrantQueries) ListUserGrantsByUser(ctx context.Context, instanceID, userID string) ([]UserGrant, error) {
	rows, err := q.query(ctx, "SELECT "+userGrantColumns+` FROM projections.user_grants
		WHERE instance_id = $1 AND user_id = $2 AND state <> $3`, instanceID, userID, stateRemoved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []UserGrant
	for rows.Next() {
		g, err := scanUserGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ListUserGrantsByProject returns every active user grant scoped to projectID.
func (q GrantQueries) ListUserGrantsByProject(ctx context.Context, instanceID, projectID string) ([]UserGrant, error) {
	rows, err := q.query(ctx, "SELECT "+userGrantColumns+` FROM projections.user_grants
		WHERE instance_id = $1 AND project_id = $2 AND state <> $3`, instanceID, projectID, stateRemoved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []UserGrant
	for rows.Next() {
		g, err := scanUserGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// GetProjectGrant returns the non-removed grant of projectID to
// grantedOrgID, if any.
func (q GrantQueries) GetProjectGrant(ctx context.Context, instanceID, projectID, grantedOrgID string) (ProjectGrant, bool, error) {
	row := q.queryRow(ctx, "SELECT "+projectGrantColumns+` FROM projections.project_grants
		WHERE instance_id = $1 AND project_id = $2 AND granted_org_id = $3 AND state <> $4`, instanceID, projectID, grantedOrgID, stateRemoved)
	g, err := scanProjectGrant(row)
	if err != nil {
		if isNoRows(err) {
			return ProjectGrant{}, false, nil
		}
		return ProjectGrant{}, false, err
	}
	return g, true, nil
}

// ListProjectGrantsByOrg returns every project grant extended to grantedOrgID.
func (q GrantQueries) ListProjectGrantsByOrg(ctx context.Context, instanceID, grantedOrgID string) ([]ProjectGrant, error) {
	rows, err := q.query(ctx, "SELECT "+projectGrantColumns+` FROM projections.project_grants
		WHERE instance_id = $1 AND granted_org_id = $2 AND state <> $3`, instanceID, grantedOrgID, stateRemoved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []ProjectGrant
	for rows.Next() {
		g, err := scanProjectGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanUserGrant(row interface {
	Scan(dest ...any) error
}) (UserGrant, error) {
	var g UserGrant
	err := row.Scan(&g.ID, &g.InstanceID, &g.UserID, &g.ProjectID, &g.ProjectGrantID, &g.ResourceOwner, (*jsonStringSlice)(&g.Roles), &g.State, &g.Sequence)
	return g, err
}

func scanProjectGrant(row interface {
	Scan(dest ...any) error
}) (ProjectGrant, error) {
	var g ProjectGrant
	err := row.Scan(&g.InstanceID, &g.ProjectID, &g.GrantedOrgID, (*jsonStringSlice)(&g.GrantedRoles), &g.State, &g.Sequence)
	return g, err
}
