package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateUserGrant = "user_grant"

// AddUserGrant grants userID a set of roles on projectID, either directly
// or (when projectGrantID is set) scoped through a project grant to
// another org's members.
func (c *Commands) AddUserGrant(ctx context.Context, cc CommandContext, userID, projectID, projectGrantID string, roles []string) (string, error) {
	if err := requireNonEmpty("userId", userID); err != nil {
		return "", err
	}
	if _, err := c.requireProject(ctx, cc, projectID); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.UserGrantAdded{
		UserID:         userID,
		ProjectID:      projectID,
		ProjectGrantID: projectGrantID,
		Roles:          roles,
	})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("user_grant.added", aggregateUserGrant, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// ChangeUserGrant replaces a user grant's role set.
func (c *Commands) ChangeUserGrant(ctx context.Context, cc CommandContext, grantID string, roles []string) error {
	version, err := c.requireUserGrant(ctx, cc, grantID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.UserGrantChanged{Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user_grant.changed", aggregateUserGrant, grantID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveUserGrant revokes a user grant.
func (c *Commands) RemoveUserGrant(ctx context.Context, cc CommandContext, grantID string) error {
	version, err := c.requireUserGrant(ctx, cc, grantID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.UserGrantRemoved{})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user_grant.removed", aggregateUserGrant, grantID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireUserGrant(ctx context.Context, cc CommandContext, grantID string) (int64, error) {
	if err := requireNonEmpty("grantId", grantID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateUserGrant, grantID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "user grant does not exist"}
	}
	return version, nil
}
