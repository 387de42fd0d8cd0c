package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iamcore/internal/readmodel"
)

type fakeMembers struct {
	members []readmodel.Member
}

func (f fakeMembers) ListByUser(ctx context.Context, instanceID, userID string) ([]readmodel.Member, error) {
	return f.members, nil
}

type fakeGrants struct {
	userGrants    []readmodel.UserGrant
	projectGrants []readmodel.ProjectGrant
}

func (f fakeGrants) ListUserGrantsByUser(ctx context.Context, instanceID, userID string) ([]readmodel.UserGrant, error) {
	return f.userGrants, nil
}

func (f fakeGrants) ListProjectGrantsByOrg(ctx context.Context, instanceID, grantedOrgID string) ([]readmodel.ProjectGrant, error) {
	return f.projectGrants, nil
}

func TestGetMyPermissions_ExpandsMembershipRoles(t *testing.T) {
	members := fakeMembers{members: []readmodel.Member{
		{Scope: readmodel.ScopeOrg, ScopeID: "org1", UserID: "u1", Roles: []string{"ORG_ADMIN"}},
	}}
	e := NewEngine(members, fakeGrants{})

	perms, err := e.GetMyPermissions(context.Background(), CallerContext{UserID: "u1", InstanceID: "inst1"})
	require.NoError(t, err)
	assert.Len(t, perms, 3)

	var manageProject Permission
	for _, p := range perms {
		if p.Resource == "zitadel.project" && p.Action == "manage" {
			manageProject = p
		}
	}
	assert.Equal(t, "org1", manageProject.Conditions["org"])
}

func TestGetMyPermissions_UnionsConditionsOnDuplicatePermission(t *testing.T) {
	members := fakeMembers{members: []readmodel.Member{
		{Scope: readmodel.ScopeOrg, ScopeID: "org1", UserID: "u1", Roles: []string{"ORG_ADMIN"}},
	}}
	grants := fakeGrants{userGrants: []readmodel.UserGrant{
		{ProjectID: "proj1", ResourceOwner: "org1", Roles: []string{"ORG_ADMIN"}},
	}}
	e := NewEngine(members, grants)

	perms, err := e.GetMyPermissions(context.Background(), CallerContext{UserID: "u1", InstanceID: "inst1"})
	require.NoError(t, err)

	var manageProject Permission
	for _, p := range perms {
		if p.Resource == "zitadel.project" && p.Action == "manage" {
			manageProject = p
		}
	}
	assert.Equal(t, "org1", manageProject.Conditions["org"])
	assert.Equal(t, "proj1", manageProject.Conditions["project"])
}

func TestGetMyPermissions_CachesResult(t *testing.T) {
	calls := 0
	members := countingMembers{fakeMembers{}, &calls}
	e := NewEngine(members, fakeGrants{})

	cc := CallerContext{UserID: "u1", InstanceID: "inst1"}
	_, err := e.GetMyPermissions(context.Background(), cc)
	require.NoError(t, err)
	_, err = e.GetMyPermissions(context.Background(), cc)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

type countingMembers struct {
	fakeMembers
	calls *int
}

func (c countingMembers) ListByUser(ctx context.Context, instanceID, userID string) ([]readmodel.Member, error) {
	*c.calls++
	return c.fakeMembers.members, nil
}

func TestGetMyPermissions_ClearCacheForcesRefetch(t *testing.T) {
	calls := 0
	members := countingMembers{fakeMembers{}, &calls}
	e := NewEngine(members, fakeGrants{})

	cc := CallerContext{UserID: "u1", InstanceID: "inst1"}
	_, _ = e.GetMyPermissions(context.Background(), cc)
	e.ClearCache("u1", "inst1")
	_, _ = e.GetMyPermissions(context.Background(), cc)

	assert.Equal(t, 2, calls)
}

func TestCheckUserPermissions_ManageActionSubsumesRead(t *testing.T) {
	members := fakeMembers{members: []readmodel.Member{
		{Scope: readmodel.ScopeInstance, ScopeID: "inst1", UserID: "u1", Roles: []string{"IAM_OWNER"}},
	}}
	e := NewEngine(members, fakeGrants{})

	result, err := e.CheckUserPermissions(context.Background(), CallerContext{UserID: "u1", InstanceID: "inst1"}, []Requirement{
		{Resource: "zitadel.org", Action: "read"},
	})
	require.NoError(t, err)
	assert.True(t, result.HasPermission)
}

func TestCheckUserPermissions_MissingConditionFails(t *testing.T) {
	members := fakeMembers{members: []readmodel.Member{
		{Scope: readmodel.ScopeProject, ScopeID: "proj1", UserID: "u1", Roles: []string{"PROJECT_USER"}},
	}}
	e := NewEngine(members, fakeGrants{})

	result, err := e.CheckUserPermissions(context.Background(), CallerContext{UserID: "u1", InstanceID: "inst1"}, []Requirement{
		{Resource: "zitadel.project", Action: "read", Conditions: map[string]string{"project": "other-project"}},
	})
	require.NoError(t, err)
	assert.False(t, result.HasPermission)
	assert.NotEmpty(t, result.Reason)
}

func TestConditionsSatisfy(t *testing.T) {
	assert.True(t, conditionsSatisfy(map[string]string{"project": "p1", "org": "o1"}, map[string]string{"project": "p1"}))
	assert.False(t, conditionsSatisfy(map[string]string{"project": "p1"}, map[string]string{"project": "p2"}))
	assert.True(t, conditionsSatisfy(map[string]string{"project": "p1"}, nil))
}
