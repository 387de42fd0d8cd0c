package readmodel

import (
	"context"

	"iamcore/pkg/txstore"
)

// MemberScope identifies which level a membership row belongs to,
// matching the role-aggregation sources the permission engine reads.
type MemberScope string

const (
	ScopeInstance      MemberScope = "instance"
	ScopeOrg           MemberScope = "org"
	ScopeProject       MemberScope = "project"
	ScopeProjectGrant  MemberScope = "project_grant"
)

// Member is one row of projections.members.
type Member struct {
	InstanceID string
	Scope      MemberScope
	ScopeID    string
	UserID     string
	Roles      []string
	Sequence   int64
}

const memberColumns = `instance_id, scope, scope_id, user_id, roles, sequence`

// MemberQueries reads projections.members.
type MemberQueries struct{ base }

// NewMemberQueries constructs a MemberQueries over store.
func NewMemberQueries(store *txstore.Store) MemberQueries { return MemberQueries{newBase(store)} }

// ListByScope returns every member of one (scope, scopeID) pair, e.g. all
// org members of one org, or all project-grant members of one grant.
func (q MemberQueries) ListByScope(ctx context.Context, instanceID string, scope MemberScope, scopeID string) ([]Member, error) {
	rows, err := q.query(ctx, "SELECT "+memberColumns+` FROM projections.members
		WHERE instance_id = $1 AND scope = $2 AND scope_id = $3
		ORDER BY user_id`, instanceID, string(scope), scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

// ListByUser returns every membership row for userID across all scopes —
// the permission engine's primary aggregation source (§4.G).
func (q MemberQueries) ListByUser(ctx context.Context, instanceID, userID string) ([]Member, error) {
	rows, err := q.query(ctx, "SELECT "+memberColumns+` FROM projections.members
		WHERE instance_id = $1 AND user_id = $2`, instanceID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

func scanMembers(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Member, error) {
	var members []Member
	for rows.Next() {
		var m Member
		var scope string
		if err := rows.Scan(&m.InstanceID, &scope, &m.ScopeID, &m.UserID, (*jsonStringSlice)(&m.Roles), &m.Sequence); err != nil {
			return nil, err
		}
		m.Scope = MemberScope(scope)
		members = append(members, m)
	}
	return members, rows.Err()
}
