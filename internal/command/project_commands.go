package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateProject = "project"

// AddProject creates a new project owned by cc.OrgID.
func (c *Commands) AddProject(ctx context.Context, cc CommandContext, name string) (string, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectAdded{Name: name})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("project.added", aggregateProject, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateProjectInput is the input to UpdateProject.
type UpdateProjectInput struct {
	ProjectID     string
	Name          string
	RoleAssertion bool
	RoleCheck     bool
}

// UpdateProject changes a project's name and role-enforcement flags.
func (c *Commands) UpdateProject(ctx context.Context, cc CommandContext, in UpdateProjectInput) error {
	if err := requireNonEmpty("name", in.Name); err != nil {
		return err
	}
	version, err := c.requireProject(ctx, cc, in.ProjectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectChanged{
		Name:          in.Name,
		RoleAssertion: in.RoleAssertion,
		RoleCheck:     in.RoleCheck,
	})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.changed", aggregateProject, in.ProjectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) simpleProjectTransition(ctx context.Context, cc CommandContext, projectID, eventType string, payload eventpayload.Payload) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	data, err := eventpayload.Encode(payload)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd(eventType, aggregateProject, projectID, data, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// DeactivateProject marks a project deactivated.
func (c *Commands) DeactivateProject(ctx context.Context, cc CommandContext, projectID string) error {
	return c.simpleProjectTransition(ctx, cc, projectID, "project.deactivated", eventpayload.ProjectDeactivated{})
}

// ReactivateProject is modeled as a project.changed transition back to
// active state; the spec lists no dedicated project.reactivated event
// type in §6.3, unlike org/user, and the reducer sets state to active on
// every project.changed it applies.
func (c *Commands) ReactivateProject(ctx context.Context, cc CommandContext, projectID string, in UpdateProjectInput) error {
	return c.UpdateProject(ctx, cc, in)
}

// RemoveProject tombstones a project.
func (c *Commands) RemoveProject(ctx context.Context, cc CommandContext, projectID string) error {
	return c.simpleProjectTransition(ctx, cc, projectID, "project.removed", eventpayload.ProjectRemoved{})
}

// AddProjectRole defines a new role key on a project.
func (c *Commands) AddProjectRole(ctx context.Context, cc CommandContext, projectID, roleKey, displayName string) error {
	if err := requireNonEmpty("roleKey", roleKey); err != nil {
		return err
	}
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectRoleAdded{RoleKey: roleKey, DisplayName: displayName})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.role.added", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// AddProjectMember grants project-scoped roles to a user.
func (c *Commands) AddProjectMember(ctx context.Context, cc CommandContext, projectID, userID string, roles []string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectMemberAdded{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.member.added", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// ChangeProjectMember replaces a project member's role set.
func (c *Commands) ChangeProjectMember(ctx context.Context, cc CommandContext, projectID, userID string, roles []string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectMemberChanged{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.member.changed", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveProjectMember revokes a project-scoped membership.
func (c *Commands) RemoveProjectMember(ctx context.Context, cc CommandContext, projectID, userID string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectMemberRemoved{UserID: userID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.member.removed", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// AddProjectGrant extends a subset of a project's roles to another org.
func (c *Commands) AddProjectGrant(ctx context.Context, cc CommandContext, projectID, grantedOrgID string, roleKeys []string) error {
	if err := requireNonEmpty("grantedOrgId", grantedOrgID); err != nil {
		return err
	}
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectGrantAdded{GrantedOrgID: grantedOrgID, RoleKeys: roleKeys})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.grant.added", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveProjectGrant revokes a project grant from an org.
func (c *Commands) RemoveProjectGrant(ctx context.Context, cc CommandContext, projectID, grantedOrgID string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectGrantRemoved{GrantedOrgID: grantedOrgID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.grant.removed", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// AddProjectGrantMember grants roles to a user within a granted org's
// scope of a project grant.
func (c *Commands) AddProjectGrantMember(ctx context.Context, cc CommandContext, projectID, grantedOrgID, userID string, roles []string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectGrantMemberAdded{GrantedOrgID: grantedOrgID, UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.grant.member.added", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveProjectGrantMember revokes a project-grant-scoped membership.
func (c *Commands) RemoveProjectGrantMember(ctx context.Context, cc CommandContext, projectID, grantedOrgID, userID string) error {
	version, err := c.requireProject(ctx, cc, projectID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ProjectGrantMemberRemoved{GrantedOrgID: grantedOrgID, UserID: userID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("project.grant.member.removed", aggregateProject, projectID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireProject(ctx context.Context, cc CommandContext, projectID string) (int64, error) {
	if err := requireNonEmpty("projectId", projectID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateProject, projectID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "project does not exist"}
	}
	return version, nil
}
