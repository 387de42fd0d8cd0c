package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateOrg = "org"

// AddOrganization creates a new org.
func (c *Commands) AddOrganization(ctx context.Context, cc CommandContext, name string) (string, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgAdded{Name: name})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("org.added", aggregateOrg, id, payload, cc.UserID, id, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateOrganization renames an org.
func (c *Commands) UpdateOrganization(ctx context.Context, cc CommandContext, orgID, name string) error {
	if err := requireNonEmpty("name", name); err != nil {
		return err
	}
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgChanged{Name: name})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("org.changed", aggregateOrg, orgID, payload, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) simpleOrgTransition(ctx context.Context, cc CommandContext, orgID, eventType string, payload eventpayload.Payload) error {
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	data, err := eventpayload.Encode(payload)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd(eventType, aggregateOrg, orgID, data, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// DeactivateOrganization marks an org deactivated.
func (c *Commands) DeactivateOrganization(ctx context.Context, cc CommandContext, orgID string) error {
	return c.simpleOrgTransition(ctx, cc, orgID, "org.deactivated", eventpayload.OrgDeactivated{})
}

// ReactivateOrganization clears an org's deactivation.
func (c *Commands) ReactivateOrganization(ctx context.Context, cc CommandContext, orgID string) error {
	return c.simpleOrgTransition(ctx, cc, orgID, "org.reactivated", eventpayload.OrgReactivated{})
}

// RemoveOrganization tombstones an org.
func (c *Commands) RemoveOrganization(ctx context.Context, cc CommandContext, orgID string) error {
	return c.simpleOrgTransition(ctx, cc, orgID, "org.removed", eventpayload.OrgRemoved{})
}

// AddOrganizationDomain adds a candidate (unverified) domain to an org.
// Domains are globally unique across the instance (§3.4 S6), so this
// checks the read-model before appending.
func (c *Commands) AddOrganizationDomain(ctx context.Context, cc CommandContext, orgID, domain string) error {
	if err := requireNonEmpty("domain", domain); err != nil {
		return err
	}
	existing, found, err := c.orgs.GetByDomainGlobal(ctx, cc.InstanceID, domain)
	if err != nil {
		return err
	}
	if found && existing.ID != orgID {
		return &PreconditionError{Msg: "domain already claimed by another organization"}
	}
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgDomainAdded{Domain: domain})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("org.domain.added", aggregateOrg, orgID, payload, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) orgDomainTransition(ctx context.Context, cc CommandContext, orgID, domain, eventType string, payload eventpayload.Payload) error {
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	data, err := eventpayload.Encode(payload)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd(eventType, aggregateOrg, orgID, data, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// VerifyOrganizationDomain marks a domain verified.
func (c *Commands) VerifyOrganizationDomain(ctx context.Context, cc CommandContext, orgID, domain string) error {
	return c.orgDomainTransition(ctx, cc, orgID, domain, "org.domain.verified", eventpayload.OrgDomainVerified{Domain: domain})
}

// SetPrimaryOrganizationDomain marks domain as the org's primary domain.
func (c *Commands) SetPrimaryOrganizationDomain(ctx context.Context, cc CommandContext, orgID, domain string) error {
	return c.orgDomainTransition(ctx, cc, orgID, domain, "org.domain.primary.set", eventpayload.OrgDomainPrimarySet{Domain: domain})
}

// RemoveOrganizationDomain removes a domain claim from an org.
func (c *Commands) RemoveOrganizationDomain(ctx context.Context, cc CommandContext, orgID, domain string) error {
	return c.orgDomainTransition(ctx, cc, orgID, domain, "org.domain.removed", eventpayload.OrgDomainRemoved{Domain: domain})
}

// AddOrganizationMember grants roles to a user at org scope.
func (c *Commands) AddOrganizationMember(ctx context.Context, cc CommandContext, orgID, userID string, roles []string) error {
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgMemberAdded{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("org.member.added", aggregateOrg, orgID, payload, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// UpdateOrganizationMember replaces a member's role set.
func (c *Commands) UpdateOrganizationMember(ctx context.Context, cc CommandContext, orgID, userID string, roles []string) error {
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgMemberChanged{UserID: userID, Roles: roles})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("org.member.changed", aggregateOrg, orgID, payload, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveOrganizationMember revokes a user's org-scoped membership.
func (c *Commands) RemoveOrganizationMember(ctx context.Context, cc CommandContext, orgID, userID string) error {
	version, err := c.requireOrg(ctx, cc, orgID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.OrgMemberRemoved{UserID: userID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("org.member.removed", aggregateOrg, orgID, payload, cc.UserID, orgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireOrg(ctx context.Context, cc CommandContext, orgID string) (int64, error) {
	if err := requireNonEmpty("orgId", orgID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateOrg, orgID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "organization does not exist"}
	}
	return version, nil
}
