// Package eventpayload decodes raw event bodies into a tagged union, one
// variant per eventType, so reducers can switch on a concrete Go type
// instead of unmarshalling into map[string]any by hand.
package eventpayload

import (
	"encoding/json"
	"fmt"

	"iamcore/pkg/eventstore"
)

// Payload is implemented by every known event payload variant. Opaque
// satisfies it too, so Decode never fails on an event type the caller
// doesn't recognize yet.
type Payload interface {
	payloadMarker()
}

// Opaque wraps the raw bytes of an event type with no registered decoder.
type Opaque struct {
	EventType string
	Raw       json.RawMessage
}

func (Opaque) payloadMarker() {}

// --- user aggregate ---

type HumanAdded struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	PasswordHash string `json:"passwordHash"`
}

func (HumanAdded) payloadMarker() {}

type HumanProfileChanged struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}

func (HumanProfileChanged) payloadMarker() {}

type HumanEmailChanged struct {
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
}

func (HumanEmailChanged) payloadMarker() {}

type HumanPhoneChanged struct {
	Phone      string `json:"phone"`
	IsVerified bool   `json:"isVerified"`
}

func (HumanPhoneChanged) payloadMarker() {}

type UsernameChanged struct {
	Username string `json:"username"`
}

func (UsernameChanged) payloadMarker() {}

type UserDeactivated struct{}

func (UserDeactivated) payloadMarker() {}

type UserReactivated struct{}

func (UserReactivated) payloadMarker() {}

type UserLocked struct{}

func (UserLocked) payloadMarker() {}

type UserUnlocked struct{}

func (UserUnlocked) payloadMarker() {}

type UserRemoved struct{}

func (UserRemoved) payloadMarker() {}

type MachineUserAdded struct {
	Username    string `json:"username"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (MachineUserAdded) payloadMarker() {}

type MachineKeyAdded struct {
	KeyID     string `json:"keyId"`
	PublicKey []byte `json:"publicKey"`
	ExpiresAt string `json:"expiresAt"`
}

func (MachineKeyAdded) payloadMarker() {}

type MachineKeyRemoved struct {
	KeyID string `json:"keyId"`
}

func (MachineKeyRemoved) payloadMarker() {}

// --- org aggregate ---

type OrgAdded struct {
	Name string `json:"name"`
}

func (OrgAdded) payloadMarker() {}

type OrgChanged struct {
	Name string `json:"name"`
}

func (OrgChanged) payloadMarker() {}

type OrgDeactivated struct{}

func (OrgDeactivated) payloadMarker() {}

type OrgReactivated struct{}

func (OrgReactivated) payloadMarker() {}

type OrgRemoved struct{}

func (OrgRemoved) payloadMarker() {}

type OrgDomainAdded struct {
	Domain string `json:"domain"`
}

func (OrgDomainAdded) payloadMarker() {}

type OrgDomainVerified struct {
	Domain string `json:"domain"`
}

func (OrgDomainVerified) payloadMarker() {}

type OrgDomainPrimarySet struct {
	Domain string `json:"domain"`
}

func (OrgDomainPrimarySet) payloadMarker() {}

type OrgDomainRemoved struct {
	Domain string `json:"domain"`
}

func (OrgDomainRemoved) payloadMarker() {}

type OrgMemberAdded struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (OrgMemberAdded) payloadMarker() {}

type OrgMemberChanged struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (OrgMemberChanged) payloadMarker() {}

type OrgMemberRemoved struct {
	UserID string `json:"userId"`
}

func (OrgMemberRemoved) payloadMarker() {}

// --- project aggregate ---

type ProjectAdded struct {
	Name string `json:"name"`
}

func (ProjectAdded) payloadMarker() {}

type ProjectChanged struct {
	Name          string `json:"name"`
	RoleAssertion bool   `json:"roleAssertion"`
	RoleCheck     bool   `json:"roleCheck"`
}

func (ProjectChanged) payloadMarker() {}

type ProjectDeactivated struct{}

func (ProjectDeactivated) payloadMarker() {}

type ProjectRemoved struct{}

func (ProjectRemoved) payloadMarker() {}

type ProjectRoleAdded struct {
	RoleKey     string `json:"roleKey"`
	DisplayName string `json:"displayName"`
}

func (ProjectRoleAdded) payloadMarker() {}

type ProjectMemberAdded struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (ProjectMemberAdded) payloadMarker() {}

type ProjectMemberChanged struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (ProjectMemberChanged) payloadMarker() {}

type ProjectMemberRemoved struct {
	UserID string `json:"userId"`
}

func (ProjectMemberRemoved) payloadMarker() {}

type ProjectGrantAdded struct {
	GrantedOrgID string   `json:"grantedOrgId"`
	RoleKeys     []string `json:"roleKeys"`
}

func (ProjectGrantAdded) payloadMarker() {}

type ProjectGrantChanged struct {
	GrantedOrgID string   `json:"grantedOrgId"`
	RoleKeys     []string `json:"roleKeys"`
}

func (ProjectGrantChanged) payloadMarker() {}

type ProjectGrantRemoved struct {
	GrantedOrgID string `json:"grantedOrgId"`
}

func (ProjectGrantRemoved) payloadMarker() {}

type ProjectGrantMemberAdded struct {
	GrantedOrgID string   `json:"grantedOrgId"`
	UserID       string   `json:"userId"`
	Roles        []string `json:"roles"`
}

func (ProjectGrantMemberAdded) payloadMarker() {}

type ProjectGrantMemberRemoved struct {
	GrantedOrgID string `json:"grantedOrgId"`
	UserID       string `json:"userId"`
}

func (ProjectGrantMemberRemoved) payloadMarker() {}

// --- instance aggregate ---

type InstanceMemberAdded struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (InstanceMemberAdded) payloadMarker() {}

type InstanceMemberChanged struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (InstanceMemberChanged) payloadMarker() {}

type InstanceMemberRemoved struct {
	UserID string `json:"userId"`
}

func (InstanceMemberRemoved) payloadMarker() {}

// --- application aggregate ---

type ApplicationAdded struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	AppType   string `json:"appType"`
}

func (ApplicationAdded) payloadMarker() {}

type ApplicationOIDCConfigChanged struct {
	RedirectURIs []string `json:"redirectUris"`
	GrantTypes   []string `json:"grantTypes"`
	ResponseTypes []string `json:"responseTypes"`
}

func (ApplicationOIDCConfigChanged) payloadMarker() {}

type ApplicationAPIConfigChanged struct {
	AuthMethod string `json:"authMethod"`
}

func (ApplicationAPIConfigChanged) payloadMarker() {}

type ApplicationDeactivated struct{}

func (ApplicationDeactivated) payloadMarker() {}

type ApplicationRemoved struct{}

func (ApplicationRemoved) payloadMarker() {}

// --- user_grant aggregate ---
//
// §3.4's read model names projections.user_grants as the permission
// engine's second aggregation source, but §6.3's event catalogue never
// spells out the grant/change/remove events that populate it; these
// follow the same added/changed/removed shape as project_grant.

type UserGrantAdded struct {
	UserID         string   `json:"userId"`
	ProjectID      string   `json:"projectId"`
	ProjectGrantID string   `json:"projectGrantId"`
	Roles          []string `json:"roles"`
}

func (UserGrantAdded) payloadMarker() {}

type UserGrantChanged struct {
	Roles []string `json:"roles"`
}

func (UserGrantChanged) payloadMarker() {}

type UserGrantRemoved struct{}

func (UserGrantRemoved) payloadMarker() {}

// --- saml_request / saml_session aggregates ---

type SAMLRequestAdded struct {
	IssuerID    string `json:"issuerId"`
	ACSURL      string `json:"acsUrl"`
	RelayState  string `json:"relayState"`
}

func (SAMLRequestAdded) payloadMarker() {}

type SAMLRequestSessionLinked struct {
	SessionID string `json:"sessionId"`
}

func (SAMLRequestSessionLinked) payloadMarker() {}

type SAMLRequestSucceeded struct{}

func (SAMLRequestSucceeded) payloadMarker() {}

type SAMLRequestFailed struct {
	Reason string `json:"reason"`
}

func (SAMLRequestFailed) payloadMarker() {}

type SAMLSessionAdded struct {
	UserID string `json:"userId"`
}

func (SAMLSessionAdded) payloadMarker() {}

type SAMLSessionTerminated struct{}

func (SAMLSessionTerminated) payloadMarker() {}

// --- idp_intent aggregate ---
//
// §6.3's event catalogue names no idp_intent.* events explicitly, but
// §6.1's command surface names startIDPIntent/getIDPIntentByState/
// handleOAuthCallback/handleOIDCCallback, which need somewhere to persist
// their state transitions; these follow the same added/succeeded/failed
// shape as saml_request.

type IDPIntentStarted struct {
	IDPID       string `json:"idpId"`
	State       string `json:"state"`
	RedirectURI string `json:"redirectUri"`
}

func (IDPIntentStarted) payloadMarker() {}

type IDPIntentSucceeded struct {
	UserID string `json:"userId"`
}

func (IDPIntentSucceeded) payloadMarker() {}

type IDPIntentFailed struct {
	Reason string `json:"reason"`
}

func (IDPIntentFailed) payloadMarker() {}

// decoders maps eventType to a factory returning a pointer to a zero
// Payload value, ready for json.Unmarshal.
var decoders = map[string]func() Payload{
	"user.human.added":            func() Payload { return &HumanAdded{} },
	"user.human.profile.changed":  func() Payload { return &HumanProfileChanged{} },
	"user.human.email.changed":    func() Payload { return &HumanEmailChanged{} },
	"user.human.phone.changed":    func() Payload { return &HumanPhoneChanged{} },
	"user.username.changed":       func() Payload { return &UsernameChanged{} },
	"user.deactivated":            func() Payload { return &UserDeactivated{} },
	"user.reactivated":            func() Payload { return &UserReactivated{} },
	"user.locked":                 func() Payload { return &UserLocked{} },
	"user.unlocked":                func() Payload { return &UserUnlocked{} },
	"user.removed":                func() Payload { return &UserRemoved{} },
	"user.machine.added":          func() Payload { return &MachineUserAdded{} },
	"user.machine.key.added":      func() Payload { return &MachineKeyAdded{} },
	"user.machine.key.removed":    func() Payload { return &MachineKeyRemoved{} },

	"org.added":                func() Payload { return &OrgAdded{} },
	"org.changed":              func() Payload { return &OrgChanged{} },
	"org.deactivated":          func() Payload { return &OrgDeactivated{} },
	"org.reactivated":          func() Payload { return &OrgReactivated{} },
	"org.removed":              func() Payload { return &OrgRemoved{} },
	"org.domain.added":         func() Payload { return &OrgDomainAdded{} },
	"org.domain.verified":      func() Payload { return &OrgDomainVerified{} },
	"org.domain.primary.set":   func() Payload { return &OrgDomainPrimarySet{} },
	"org.domain.removed":       func() Payload { return &OrgDomainRemoved{} },
	"org.member.added":         func() Payload { return &OrgMemberAdded{} },
	"org.member.changed":       func() Payload { return &OrgMemberChanged{} },
	"org.member.removed":       func() Payload { return &OrgMemberRemoved{} },

	"project.added":                  func() Payload { return &ProjectAdded{} },
	"project.changed":                func() Payload { return &ProjectChanged{} },
	"project.deactivated":            func() Payload { return &ProjectDeactivated{} },
	"project.removed":                func() Payload { return &ProjectRemoved{} },
	"project.role.added":             func() Payload { return &ProjectRoleAdded{} },
	"project.member.added":           func() Payload { return &ProjectMemberAdded{} },
	"project.member.changed":         func() Payload { return &ProjectMemberChanged{} },
	"project.member.removed":         func() Payload { return &ProjectMemberRemoved{} },
	"project.grant.added":            func() Payload { return &ProjectGrantAdded{} },
	"project.grant.changed":          func() Payload { return &ProjectGrantChanged{} },
	"project.grant.removed":          func() Payload { return &ProjectGrantRemoved{} },
	"project.grant.member.added":     func() Payload { return &ProjectGrantMemberAdded{} },
	"project.grant.member.removed":   func() Payload { return &ProjectGrantMemberRemoved{} },

	"instance.member.added":   func() Payload { return &InstanceMemberAdded{} },
	"instance.member.changed": func() Payload { return &InstanceMemberChanged{} },
	"instance.member.removed": func() Payload { return &InstanceMemberRemoved{} },

	"application.added":              func() Payload { return &ApplicationAdded{} },
	"application.oidc.config.changed": func() Payload { return &ApplicationOIDCConfigChanged{} },
	"application.api.config.changed":  func() Payload { return &ApplicationAPIConfigChanged{} },
	"application.deactivated":        func() Payload { return &ApplicationDeactivated{} },
	"application.removed":            func() Payload { return &ApplicationRemoved{} },

	"saml_request.added":          func() Payload { return &SAMLRequestAdded{} },
	"saml_request.session.linked": func() Payload { return &SAMLRequestSessionLinked{} },
	"saml_request.succeeded":      func() Payload { return &SAMLRequestSucceeded{} },
	"saml_request.failed":         func() Payload { return &SAMLRequestFailed{} },
	"saml_session.added":          func() Payload { return &SAMLSessionAdded{} },
	"saml_session.terminated":     func() Payload { return &SAMLSessionTerminated{} },

	"idp_intent.started":   func() Payload { return &IDPIntentStarted{} },
	"idp_intent.succeeded": func() Payload { return &IDPIntentSucceeded{} },
	"idp_intent.failed":    func() Payload { return &IDPIntentFailed{} },

	"user_grant.added":   func() Payload { return &UserGrantAdded{} },
	"user_grant.changed": func() Payload { return &UserGrantChanged{} },
	"user_grant.removed": func() Payload { return &UserGrantRemoved{} },
}

// Decode turns an event's raw payload into its concrete Payload variant.
// Unknown event types decode to Opaque rather than failing, so the
// projection engine can route them to a quarantine path or ignore them.
func Decode(e eventstore.Event) (Payload, error) {
	factory, ok := decoders[e.EventType]
	if !ok {
		return Opaque{EventType: e.EventType, Raw: e.Payload}, nil
	}
	p := factory()
	if len(e.Payload) == 0 {
		return derefPayload(p), nil
	}
	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil, fmt.Errorf("eventpayload: decode %s: %w", e.EventType, err)
	}
	// factory returns a pointer; dereference so callers type-switch on value types.
	return derefPayload(p), nil
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *HumanAdded:
		return *v
	case *HumanProfileChanged:
		return *v
	case *HumanEmailChanged:
		return *v
	case *HumanPhoneChanged:
		return *v
	case *UsernameChanged:
		return *v
	case *UserDeactivated:
		return *v
	case *UserReactivated:
		return *v
	case *UserLocked:
		return *v
	case *UserUnlocked:
		return *v
	case *UserRemoved:
		return *v
	case *MachineUserAdded:
		return *v
	case *MachineKeyAdded:
		return *v
	case *MachineKeyRemoved:
		return *v
	case *OrgAdded:
		return *v
	case *OrgChanged:
		return *v
	case *OrgDeactivated:
		return *v
	case *OrgReactivated:
		return *v
	case *OrgRemoved:
		return *v
	case *OrgDomainAdded:
		return *v
	case *OrgDomainVerified:
		return *v
	case *OrgDomainPrimarySet:
		return *v
	case *OrgDomainRemoved:
		return *v
	case *OrgMemberAdded:
		return *v
	case *OrgMemberChanged:
		return *v
	case *OrgMemberRemoved:
		return *v
	case *ProjectAdded:
		return *v
	case *ProjectChanged:
		return *v
	case *ProjectDeactivated:
		return *v
	case *ProjectRemoved:
		return *v
	case *ProjectRoleAdded:
		return *v
	case *ProjectMemberAdded:
		return *v
	case *ProjectMemberChanged:
		return *v
	case *ProjectMemberRemoved:
		return *v
	case *ProjectGrantAdded:
		return *v
	case *ProjectGrantChanged:
		return *v
	case *ProjectGrantRemoved:
		return *v
	case *ProjectGrantMemberAdded:
		return *v
	case *ProjectGrantMemberRemoved:
		return *v
	case *InstanceMemberAdded:
		return *v
	case *InstanceMemberChanged:
		return *v
	case *InstanceMemberRemoved:
		return *v
	case *ApplicationAdded:
		return *v
	case *ApplicationOIDCConfigChanged:
		return *v
	case *ApplicationAPIConfigChanged:
		return *v
	case *ApplicationDeactivated:
		return *v
	case *ApplicationRemoved:
		return *v
	case *SAMLRequestAdded:
		return *v
	case *SAMLRequestSessionLinked:
		return *v
	case *SAMLRequestSucceeded:
		return *v
	case *SAMLRequestFailed:
		return *v
	case *SAMLSessionAdded:
		return *v
	case *SAMLSessionTerminated:
		return *v
	case *IDPIntentStarted:
		return *v
	case *IDPIntentSucceeded:
		return *v
	case *IDPIntentFailed:
		return *v
	case *UserGrantAdded:
		return *v
	case *UserGrantChanged:
		return *v
	case *UserGrantRemoved:
		return *v
	default:
		return p
	}
}

// Encode marshals a payload variant to JSON for eventstore.NewCmd.
func Encode(p Payload) (json.RawMessage, error) {
	if o, ok := p.(Opaque); ok {
		return o.Raw, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("eventpayload: encode: %w", err)
	}
	return b, nil
}
