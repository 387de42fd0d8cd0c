package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateSAMLRequest = "saml_request"
const aggregateSAMLSession = "saml_session"

// AddSAMLRequestInput is the input to AddSAMLRequest. Wire-format parsing
// of the actual SAML AuthnRequest is out of scope; callers hand in the
// already-parsed fields a transport layer extracted.
type AddSAMLRequestInput struct {
	IssuerID   string
	ACSURL     string
	RelayState string
}

// AddSAMLRequest records a new inbound SAML authentication request.
func (c *Commands) AddSAMLRequest(ctx context.Context, cc CommandContext, in AddSAMLRequestInput) (string, error) {
	if err := requireNonEmpty("issuerId", in.IssuerID); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.SAMLRequestAdded{
		IssuerID:   in.IssuerID,
		ACSURL:     in.ACSURL,
		RelayState: in.RelayState,
	})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("saml_request.added", aggregateSAMLRequest, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// LinkSessionToSAMLRequest associates an established session with a
// pending SAML request so a subsequent response can be correlated back
// to the authenticated subject.
func (c *Commands) LinkSessionToSAMLRequest(ctx context.Context, cc CommandContext, requestID, sessionID string) error {
	version, err := c.requireSAMLRequest(ctx, cc, requestID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.SAMLRequestSessionLinked{SessionID: sessionID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("saml_request.session.linked", aggregateSAMLRequest, requestID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// HandleSAMLResponse records the outcome of processing a SAML response
// for a previously linked request: success starts a saml_session,
// failure records the reason on the request itself. The caller has
// already validated the response's signature/assertions upstream; this
// command only persists the resulting domain decision.
func (c *Commands) HandleSAMLResponse(ctx context.Context, cc CommandContext, requestID, userID string, success bool, failureReason string) (string, error) {
	version, err := c.requireSAMLRequest(ctx, cc, requestID)
	if err != nil {
		return "", err
	}

	if !success {
		payload, err := eventpayload.Encode(eventpayload.SAMLRequestFailed{Reason: failureReason})
		if err != nil {
			return "", err
		}
		cmd := eventstore.NewCmd("saml_request.failed", aggregateSAMLRequest, requestID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
		_, err = c.push(ctx, version, cmd)
		return "", err
	}

	succeededPayload, err := eventpayload.Encode(eventpayload.SAMLRequestSucceeded{})
	if err != nil {
		return "", err
	}
	succeededCmd := eventstore.NewCmd("saml_request.succeeded", aggregateSAMLRequest, requestID, succeededPayload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, version, succeededCmd); err != nil {
		return "", err
	}

	sessionID, err := c.newID()
	if err != nil {
		return "", err
	}
	sessionPayload, err := eventpayload.Encode(eventpayload.SAMLSessionAdded{UserID: userID})
	if err != nil {
		return "", err
	}
	sessionCmd := eventstore.NewCmd("saml_session.added", aggregateSAMLSession, sessionID, sessionPayload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, sessionCmd); err != nil {
		return "", err
	}
	return sessionID, nil
}

// TerminateSAMLSession ends a SAML-established session.
func (c *Commands) TerminateSAMLSession(ctx context.Context, cc CommandContext, sessionID string) error {
	version, err := currentVersion(ctx, c.es, aggregateSAMLSession, sessionID, cc.InstanceID)
	if err != nil {
		return err
	}
	if version == 0 {
		return &PreconditionError{Msg: "saml session does not exist"}
	}
	payload, err := eventpayload.Encode(eventpayload.SAMLSessionTerminated{})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("saml_session.terminated", aggregateSAMLSession, sessionID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireSAMLRequest(ctx context.Context, cc CommandContext, requestID string) (int64, error) {
	if err := requireNonEmpty("requestId", requestID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateSAMLRequest, requestID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "saml request does not exist"}
	}
	return version, nil
}
