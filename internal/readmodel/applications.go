package readmodel

import (
	"context"
	"encoding/json"

	"iamcore/pkg/queryfilter"
	"iamcore/pkg/txstore"
)

// Application is the projected shape of an application aggregate.
type Application struct {
	ID         string
	InstanceID string
	ProjectID  string
	Name       string
	State      string
	AppType    string
	Config     json.RawMessage
	Sequence   int64
}

// AppFilter narrows an application search.
type AppFilter struct {
	ProjectID      string
	AppType        string
	IncludeRemoved bool
}

func (f AppFilter) expr() queryfilter.Expr {
	var conds []queryfilter.Expr
	if f.ProjectID != "" {
		conds = append(conds, queryfilter.Eq("project_id", f.ProjectID))
	}
	if f.AppType != "" {
		conds = append(conds, queryfilter.Eq("app_type", f.AppType))
	}
	var merged queryfilter.Expr
	if len(conds) > 0 {
		merged = queryfilter.And(conds...)
	}
	return withoutTombstones(merged, f.IncludeRemoved)
}

const appColumns = `id, instance_id, project_id, name, state, app_type, config, sequence`

// AppQueries reads projections.applications.
type AppQueries struct{ base }

// NewAppQueries constructs an AppQueries over store.
func NewAppQueries(store *txstore.Store) AppQueries { return AppQueries{newBase(store)} }

// GetByID returns the application with id, or (Application{}, false, nil)
// if absent or tombstoned (spec §3.4: queries exclude removed rows by default).
func (q AppQueries) GetByID(ctx context.Context, instanceID, id string) (Application, bool, error) {
	row := q.queryRow(ctx, "SELECT "+appColumns+" FROM projections.applications WHERE instance_id = $1 AND id = $2 AND state <> $3", instanceID, id, stateRemoved)
	a, err := scanApp(row)
	if err != nil {
		if isNoRows(err) {
			return Application{}, false, nil
		}
		return Application{}, false, err
	}
	return a, true, nil
}

// Search returns applications matching filter, paginated and ordered by name.
func (q AppQueries) Search(ctx context.Context, instanceID string, filter AppFilter, page Pagination) ([]Application, error) {
	expr := combineAnd(queryfilter.Eq("instance_id", instanceID), filter.expr())
	sql, args := queryfilter.Compile(page.toQuery(expr, []queryfilter.Order{{Column: "name"}}), 1)
	rows, err := q.query(ctx, "SELECT "+appColumns+" FROM projections.applications "+sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func scanApp(row interface {
	Scan(dest ...any) error
}) (Application, error) {
	var a Application
	err := row.Scan(&a.ID, &a.InstanceID, &a.ProjectID, &a.Name, &a.State, &a.AppType, &a.Config, &a.Sequence)
	return a, err
}
