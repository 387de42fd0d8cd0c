package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateApplication = "application"
const aggregateInstance = "instance"

// AddOIDCApp creates a new OIDC application under a project.
func (c *Commands) AddOIDCApp(ctx context.Context, cc CommandContext, projectID, name string) (string, error) {
	return c.addApplication(ctx, cc, projectID, name, "oidc")
}

// AddAPIApp creates a new API application under a project.
func (c *Commands) AddAPIApp(ctx context.Context, cc CommandContext, projectID, name string) (string, error) {
	return c.addApplication(ctx, cc, projectID, name, "api")
}

func (c *Commands) addApplication(ctx context.Context, cc CommandContext, projectID, name, appType string) (string, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return "", err
	}
	if _, err := c.requireProject(ctx, cc, projectID); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.ApplicationAdded{ProjectID: projectID, Name: name, AppType: appType})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("application.added", aggregateApplication, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// OIDCConfigInput is the input to UpdateOIDCConfig.
type OIDCConfigInput struct {
	AppID         string
	RedirectURIs  []string
	GrantTypes    []string
	ResponseTypes []string
}

// UpdateOIDCConfig replaces an OIDC app's redirect/grant/response configuration.
func (c *Commands) UpdateOIDCConfig(ctx context.Context, cc CommandContext, in OIDCConfigInput) error {
	version, err := c.requireApp(ctx, cc, in.AppID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ApplicationOIDCConfigChanged{
		RedirectURIs:  in.RedirectURIs,
		GrantTypes:    in.GrantTypes,
		ResponseTypes: in.ResponseTypes,
	})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("application.oidc.config.changed", aggregateApplication, in.AppID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// UpdateAPIConfig changes an API app's authentication method.
func (c *Commands) UpdateAPIConfig(ctx context.Context, cc CommandContext, appID, authMethod string) error {
	version, err := c.requireApp(ctx, cc, appID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.ApplicationAPIConfigChanged{AuthMethod: authMethod})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("application.api.config.changed", aggregateApplication, appID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) simpleAppTransition(ctx context.Context, cc CommandContext, appID, eventType string, payload eventpayload.Payload) error {
	version, err := c.requireApp(ctx, cc, appID)
	if err != nil {
		return err
	}
	data, err := eventpayload.Encode(payload)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd(eventType, aggregateApplication, appID, data, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// DeactivateApp deactivates an application.
func (c *Commands) DeactivateApp(ctx context.Context, cc CommandContext, appID string) error {
	return c.simpleAppTransition(ctx, cc, appID, "application.deactivated", eventpayload.ApplicationDeactivated{})
}

// RemoveApp tombstones an application.
func (c *Commands) RemoveApp(ctx context.Context, cc CommandContext, appID string) error {
	return c.simpleAppTransition(ctx, cc, appID, "application.removed", eventpayload.ApplicationRemoved{})
}

// RegenerateAppSecret generates a new secret id and pushes an
// application.api.config.changed event whose auth method is
// "secret:<id>", replacing the app's previous auth method; the read-model
// reducer stores that payload in the application's config column. There
// is no dedicated secret-rotation event type (§6.3).
func (c *Commands) RegenerateAppSecret(ctx context.Context, cc CommandContext, appID string) (string, error) {
	secretID, err := c.newID()
	if err != nil {
		return "", err
	}
	if err := c.UpdateAPIConfig(ctx, cc, appID, "secret:"+secretID); err != nil {
		return "", err
	}
	return secretID, nil
}

func (c *Commands) requireApp(ctx context.Context, cc CommandContext, appID string) (int64, error) {
	if err := requireNonEmpty("appId", appID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateApplication, appID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "application does not exist"}
	}
	return version, nil
}

// AddInstanceMember grants instance-scoped roles to a user.
func (c *Commands) AddInstanceMember(ctx context.Context, cc CommandContext, userID string, roles []string) error {
	payload, err := eventpayload.Encode(eventpayload.InstanceMemberAdded{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	version, err := currentVersion(ctx, c.es, aggregateInstance, cc.InstanceID, cc.InstanceID)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("instance.member.added", aggregateInstance, cc.InstanceID, payload, cc.UserID, cc.InstanceID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// ChangeInstanceMember replaces an instance member's role set.
func (c *Commands) ChangeInstanceMember(ctx context.Context, cc CommandContext, userID string, roles []string) error {
	payload, err := eventpayload.Encode(eventpayload.InstanceMemberChanged{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	version, err := currentVersion(ctx, c.es, aggregateInstance, cc.InstanceID, cc.InstanceID)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("instance.member.changed", aggregateInstance, cc.InstanceID, payload, cc.UserID, cc.InstanceID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveInstanceMember revokes an instance-scoped membership.
func (c *Commands) RemoveInstanceMember(ctx context.Context, cc CommandContext, userID string) error {
	payload, err := eventpayload.Encode(eventpayload.InstanceMemberRemoved{UserID: userID})
	if err != nil {
		return err
	}
	version, err := currentVersion(ctx, c.es, aggregateInstance, cc.InstanceID, cc.InstanceID)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("instance.member.removed", aggregateInstance, cc.InstanceID, payload, cc.UserID, cc.InstanceID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}
