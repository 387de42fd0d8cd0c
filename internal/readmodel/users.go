package readmodel

import (
	"context"
	"encoding/json"

	"iamcore/pkg/queryfilter"
	"iamcore/pkg/txstore"
)

// User is the projected shape of a user aggregate.
type User struct {
	ID           string
	InstanceID   string
	OrgID        string
	Username     string
	Emails       []string
	Phone        string
	Profile      json.RawMessage
	State        string
	MFAConfigs   json.RawMessage
	PasswordHash string
	Sequence     int64
}

// UserFilter narrows a user search.
type UserFilter struct {
	OrgID          string
	UsernamePrefix string
	State          string
	IncludeRemoved bool
}

func (f UserFilter) expr() queryfilter.Expr {
	var conds []queryfilter.Expr
	if f.OrgID != "" {
		conds = append(conds, queryfilter.Eq("org_id", f.OrgID))
	}
	if f.UsernamePrefix != "" {
		conds = append(conds, queryfilter.StartsWith("username", f.UsernamePrefix))
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

const userColumns = `id, instance_id, org_id, username, emails, phone, profile, state, mfa_configs, password_hash, sequence`

// UserQueries reads projections.users.
type UserQueries struct{ base }

// NewUserQueries constructs a UserQueries over store.
func NewUserQueries(store *txstore.Store) UserQueries {
	return UserQueries{newBase(store)}
}

// GetByID returns the user with id, or (User{}, false, nil) if absent or
// tombstoned (spec §3.4: queries exclude removed rows by default).
func (q UserQueries) GetByID(ctx context.Context, instanceID, id string) (User, bool, error) {
	row := q.queryRow(ctx, "SELECT "+userColumns+" FROM projections.users WHERE instance_id = $1 AND id = $2 AND state <> $3", instanceID, id, stateRemoved)
	u, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// GetByUsername returns the user with the given username within instanceID.
func (q UserQueries) GetByUsername(ctx context.Context, instanceID, username string) (User, bool, error) {
	row := q.queryRow(ctx, "SELECT "+userColumns+" FROM projections.users WHERE instance_id = $1 AND username = $2 AND state <> $3", instanceID, username, stateRemoved)
	u, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// Search returns users matching filter, paginated and ordered by username.
func (q UserQueries) Search(ctx context.Context, instanceID string, filter UserFilter, page Pagination) ([]User, error) {
	expr := combineAnd(queryfilter.Eq("instance_id", instanceID), filter.expr())
	sql, args := queryfilter.Compile(page.toQuery(expr, []queryfilter.Order{{Column: "username"}}), 1)
	rows, err := q.query(ctx, "SELECT "+userColumns+" FROM projections.users "+sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.InstanceID, &u.OrgID, &u.Username, (*jsonStringSlice)(&u.Emails), &u.Phone, &u.Profile, &u.State, &u.MFAConfigs, &u.PasswordHash, &u.Sequence)
	return u, err
}
