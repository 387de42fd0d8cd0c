// Package permission aggregates a caller's memberships, user grants, and
// project grants into a flat permission set and answers authorization
// checks against it, caching the aggregation per (user, instance, org,
// project) for a short TTL.
package permission

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"iamcore/internal/readmodel"
)

// CallerContext identifies whose permissions are being computed and the
// org/project scope narrowing the aggregation, if any.
type CallerContext struct {
	UserID     string
	InstanceID string
	OrgID      string
	ProjectID  string
}

// Permission is one (resource, action) pair a caller holds, together
// with the conditions (e.g. project=<id>) that scope it.
type Permission struct {
	Resource   string
	Action     string
	Conditions map[string]string
}

// Requirement is one (resource, action, conditions) a caller must hold
// to pass an authorization check.
type Requirement struct {
	Resource   string
	Action     string
	Conditions map[string]string
}

// Result is the outcome of CheckUserPermissions.
type Result struct {
	HasPermission      bool
	MatchedPermissions []Permission
	Reason             string
}

// PermissionDeniedError reports an authorization rejection with a stable
// code callers can surface to clients or logs.
type PermissionDeniedError struct {
	Code string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Code)
}

// roleTemplate is one (resource, action) a role expands to before
// per-source conditions are attached.
type roleTemplate struct {
	Resource string
	Action   string
}

// RoleMappings is the static role -> permission-template table (§4.G).
// Roles not present here expand to no permissions rather than erroring,
// since unknown role strings are a data problem for an operator to fix,
// not a reason to fail every permission check for the caller.
var RoleMappings = map[string][]roleTemplate{
	"IAM_OWNER": {
		{Resource: "zitadel.instance", Action: "manage"},
		{Resource: "zitadel.org", Action: "manage"},
		{Resource: "zitadel.user", Action: "manage"},
	},
	"ORG_ADMIN": {
		{Resource: "zitadel.project", Action: "manage"},
		{Resource: "zitadel.org", Action: "read"},
		{Resource: "zitadel.user", Action: "read"},
	},
	"PROJECT_USER": {
		{Resource: "zitadel.project", Action: "read"},
		{Resource: "zitadel.app", Action: "read"},
	},
}

type cacheKey struct {
	userID     string
	instanceID string
	orgID      string
	projectID  string
}

const cacheTTL = 5 * time.Minute

// memberLister is the slice of readmodel.MemberQueries the engine needs;
// declared locally so tests can supply a fake without a database.
type memberLister interface {
	ListByUser(ctx context.Context, instanceID, userID string) ([]readmodel.Member, error)
}

// grantLister is the slice of readmodel.GrantQueries the engine needs.
type grantLister interface {
	ListUserGrantsByUser(ctx context.Context, instanceID, userID string) ([]readmodel.UserGrant, error)
	ListProjectGrantsByOrg(ctx context.Context, instanceID, grantedOrgID string) ([]readmodel.ProjectGrant, error)
}

// Engine computes and caches permission sets.
type Engine struct {
	members memberLister
	grants  grantLister
	cache   *lru.LRU[cacheKey, []Permission]
}

// NewEngine constructs an Engine reading memberships/grants via members
// and grants, caching aggregated permission sets for up to 1024 distinct
// callers at a time.
func NewEngine(members memberLister, grants grantLister) *Engine {
	return &Engine{
		members: members,
		grants:  grants,
		cache:   lru.NewLRU[cacheKey, []Permission](1024, nil, cacheTTL),
	}
}

// GetMyPermissions aggregates cc's memberships, user grants, and project
// grants into a deduplicated permission set, expanding roles through
// RoleMappings and unioning conditions on duplicate (resource, action)
// pairs.
func (e *Engine) GetMyPermissions(ctx context.Context, cc CallerContext) ([]Permission, error) {
	key := cacheKey{userID: cc.UserID, instanceID: cc.InstanceID, orgID: cc.OrgID, projectID: cc.ProjectID}
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	perms := make(map[string]Permission)
	merge := func(tpl roleTemplate, conditions map[string]string) {
		k := tpl.Resource + "|" + tpl.Action
		existing, ok := perms[k]
		if !ok {
			var own map[string]string
			if conditions != nil {
				own = make(map[string]string, len(conditions))
				for ck, cv := range conditions {
					own[ck] = cv
				}
			}
			perms[k] = Permission{Resource: tpl.Resource, Action: tpl.Action, Conditions: own}
			return
		}
		for ck, cv := range conditions {
			if existing.Conditions == nil {
				existing.Conditions = map[string]string{}
			}
			existing.Conditions[ck] = cv
		}
		perms[k] = existing
	}

	members, err := e.members.ListByUser(ctx, cc.InstanceID, cc.UserID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		conditions := conditionsForScope(m.Scope, m.ScopeID)
		for _, role := range m.Roles {
			for _, tpl := range RoleMappings[role] {
				merge(tpl, conditions)
			}
		}
	}

	userGrants, err := e.grants.ListUserGrantsByUser(ctx, cc.InstanceID, cc.UserID)
	if err != nil {
		return nil, err
	}
	for _, g := range userGrants {
		conditions := map[string]string{"project": g.ProjectID, "resourceOwner": g.ResourceOwner}
		for _, role := range g.Roles {
			for _, tpl := range RoleMappings[role] {
				merge(tpl, conditions)
			}
		}
	}

	if cc.OrgID != "" {
		projectGrants, err := e.grants.ListProjectGrantsByOrg(ctx, cc.InstanceID, cc.OrgID)
		if err != nil {
			return nil, err
		}
		for _, g := range projectGrants {
			conditions := map[string]string{"project": g.ProjectID}
			for _, role := range g.GrantedRoles {
				for _, tpl := range RoleMappings[role] {
					merge(tpl, conditions)
				}
			}
		}
	}

	result := make([]Permission, 0, len(perms))
	for _, p := range perms {
		result = append(result, p)
	}
	e.cache.Add(key, result)
	return result, nil
}

func conditionsForScope(scope readmodel.MemberScope, scopeID string) map[string]string {
	switch scope {
	case readmodel.ScopeOrg:
		return map[string]string{"org": scopeID}
	case readmodel.ScopeProject:
		return map[string]string{"project": scopeID}
	case readmodel.ScopeProjectGrant:
		return map[string]string{"project": scopeID}
	default:
		return nil
	}
}

// CheckUserPermissions reports whether cc holds every requirement: for
// each requirement, some permission must match on resource equality,
// action equality or the permission's "manage" action, and every
// required condition must be present with an equal value.
func (e *Engine) CheckUserPermissions(ctx context.Context, cc CallerContext, required []Requirement) (Result, error) {
	perms, err := e.GetMyPermissions(ctx, cc)
	if err != nil {
		return Result{}, err
	}

	var matched []Permission
	for _, req := range required {
		found := false
		for _, p := range perms {
			if p.Resource != req.Resource {
				continue
			}
			if p.Action != req.Action && p.Action != "manage" {
				continue
			}
			if !conditionsSatisfy(p.Conditions, req.Conditions) {
				continue
			}
			matched = append(matched, p)
			found = true
			break
		}
		if !found {
			return Result{
				HasPermission:      false,
				MatchedPermissions: matched,
				Reason:             fmt.Sprintf("missing %s on %s", req.Action, req.Resource),
			}, nil
		}
	}
	return Result{HasPermission: true, MatchedPermissions: matched}, nil
}

func conditionsSatisfy(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// ClearCache evicts every cached permission set for (userID, instanceID)
// across all org/project scopes, so a subsequent write is never followed
// by a stale read.
func (e *Engine) ClearCache(userID, instanceID string) {
	for _, k := range e.cache.Keys() {
		if k.userID == userID && k.instanceID == instanceID {
			e.cache.Remove(k)
		}
	}
}
