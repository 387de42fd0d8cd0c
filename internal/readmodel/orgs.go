package readmodel

import (
	"context"

	"iamcore/pkg/queryfilter"
	"iamcore/pkg/txstore"
)

// Org is the projected shape of an org aggregate.
type Org struct {
	ID            string
	InstanceID    string
	Name          string
	State         string
	PrimaryDomain string
	Sequence      int64
}

// OrgFilter narrows an org search.
type OrgFilter struct {
	NamePrefix     string
	State          string
	IncludeRemoved bool
}

func (f OrgFilter) expr() queryfilter.Expr {
	var conds []queryfilter.Expr
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

const orgColumns = `id, instance_id, name, state, primary_domain, sequence`

// OrgQueries reads projections.orgs and projections.org_domains.
type OrgQueries struct{ base }

// NewOrgQueries constructs an OrgQueries over store.
func NewOrgQueries(store *txstore.Store) OrgQueries { return OrgQueries{newBase(store)} }

// GetByID returns the org with id, or (Org{}, false, nil) if absent or
// tombstoned (spec §3.4: queries exclude removed rows by default).
func (q OrgQueries) GetByID(ctx context.Context, instanceID, id string) (Org, bool, error) {
	row := q.queryRow(ctx, "SELECT "+orgColumns+" FROM projections.orgs WHERE instance_id = $1 AND id = $2 AND state <> $3", instanceID, id, stateRemoved)
	o, err := scanOrg(row)
	if err != nil {
		if isNoRows(err) {
			return Org{}, false, nil
		}
		return Org{}, false, err
	}
	return o, true, nil
}

// GetByDomainGlobal finds the org owning domain across the whole instance,
// regardless of which org the caller is scoped to — domains are globally
// unique (spec §3.4 S6).
func (q OrgQueries) GetByDomainGlobal(ctx context.Context, instanceID, domain string) (Org, bool, error) {
	var orgID string
	row := q.queryRow(ctx, `
		SELECT org_id FROM projections.org_domains
		WHERE instance_id = $1 AND domain = $2
	`, instanceID, domain)
	if err := row.Scan(&orgID); err != nil {
		if isNoRows(err) {
			return Org{}, false, nil
		}
		return Org{}, false, err
	}
	return q.GetByID(ctx, instanceID, orgID)
}

// Search returns orgs matching filter, paginated and ordered by name.
func (q OrgQueries) Search(ctx context.Context, instanceID string, filter OrgFilter, page Pagination) ([]Org, error) {
	expr := combineAnd(queryfilter.Eq("instance_id", instanceID), filter.expr())
	sql, args := queryfilter.Compile(page.toQuery(expr, []queryfilter.Order{{Column: "name"}}), 1)
	rows, err := q.query(ctx, "SELECT "+orgColumns+" FROM projections.orgs "+sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Org
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func scanOrg(row interface {
	Scan(dest ...any) error
}) (Org, error) {
	var o Org
	err := row.Scan(&o.ID, &o.InstanceID, &o.Name, &o.State, &o.PrimaryDomain, &o.Sequence)
	return o, err
}
