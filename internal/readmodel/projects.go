package readmodel

import (
	"context"

	"iamcore/pkg/queryfilter"
	"iamcore/pkg/txstore"
)

// Project is the projected shape of a project aggregate.
type Project struct {
	ID                  string
	InstanceID          string
	OrgID               string
	Name                string
	State               string
	RoleAssertion       bool
	RoleCheck           bool
	PrivateLabelSetting string
	Sequence            int64
}

// ProjectRole is one role defined on a project.
type ProjectRole struct {
	ProjectID   string
	RoleKey     string
	DisplayName string
}

// ProjectFilter narrows a project search.
type ProjectFilter struct {
	OrgID          string
	NamePrefix     string
	State          string
	IncludeRemoved bool
}

func (f ProjectFilter) expr() queryfilter.Expr {
	var conds []queryfilter.Expr
	if f.OrgID != "" {
		conds = append(conds, queryfilter.Eq("org_id", f.OrgID))
	}
	if f.NamePrefix != "" {
		conds = append(conds, queryfilter.StartsWith("name", f.NamePrefix))
	}
	if f.State != "" {
		conds = append(conds, queryfilter.Eq("state", f.State))
	}
	var merged queryfilter.Expr
	if len(conds) > 0 {
		merged = queryfilter.And(conds...)
	}
	return withoutTombstones(merged, f.IncludeRemoved)
}

const projectColumns = `id, instance_id, org_id, name, state, role_assertion, role_check, private_label_setting, sequence`

// ProjectQueries reads projections.projects and projections.project_roles.
type ProjectQueries struct{ base }

// NewProjectQueries constructs a ProjectQueries over store.
func NewProjectQueries(store *txstore.Store) ProjectQueries { return ProjectQueries{newBase(store)} }

// GetByID returns the project with id, or (Project{}, false, nil) if
// absent or tombstoned (spec §3.4: queries exclude removed rows by default).
func (q ProjectQueries) GetByID(ctx context.Context, instanceID, id string) (Project, bool, error) {
	row := q.queryRow(ctx, "SELECT "+projectColumns+" FROM projections.projects WHERE instance_id = $1 AND id = $2 AND state <> $3", instanceID, id, stateRemoved)
	p, err := scanProject(row)
	if err != nil {
		if isNoRows(err) {
			return Project{}, false, nil
		}
		return Project{}, false, err
	}
	return p, true, nil
}

// Search returns projects matching filter, paginated and ordered by name.
func (q ProjectQueries) Search(ctx context.Context, instanceID string, filter ProjectFilter, page Pagination) ([]Project, error) {
	expr := combineAnd(queryfilter.Eq("instance_id", instanceID), filter.expr())
	sql, args := queryfilter.Compile(page.toQuery(expr, []queryfilter.Order{{Column: "name"}}), 1)
	rows, err := q.query(ctx, "SELECT "+projectColumns+" FROM projections.projects "+sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListRoles returns every role defined on projectID.
func (q ProjectQueries) ListRoles(ctx context.Context, instanceID, projectID string) ([]ProjectRole, error) {
	rows, err := q.query(ctx, `
		SELECT project_id, role_key, display_name FROM projections.project_roles
		WHERE instance_id = $1 AND project_id = $2
		ORDER BY role_key
	`, instanceID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []ProjectRole
	for rows.Next() {
		var r ProjectRole
		if err := rows.Scan(&r.ProjectID, &r.RoleKey, &r.DisplayName); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func scanProject(row interface {
	Scan(dest ...any) error
}) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.InstanceID, &p.OrgID, &p.Name, &p.State, &p.RoleAssertion, &p.RoleCheck, &p.PrivateLabelSetting, &p.Sequence)
	return p, err
}
