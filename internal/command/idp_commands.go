package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateIDPIntent = "idp_intent"

// StartIDPIntent begins a federated login attempt against an external
// identity provider, persisting enough state to correlate the eventual
// callback back to this attempt.
func (c *Commands) StartIDPIntent(ctx context.Context, cc CommandContext, idpID, state, redirectURI string) (string, error) {
	if err := requireNonEmpty("idpId", idpID); err != nil {
		return "", err
	}
	if err := requireNonEmpty("state", state); err != nil {
		return "", err
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.IDPIntentStarted{
		IDPID:       idpID,
		State:       state,
		RedirectURI: redirectURI,
	})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("idp_intent.started", aggregateIDPIntent, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// GetIDPIntentByState treats state as an intent aggregate id and returns
// it if an idp_intent aggregate with that id exists. The State field
// recorded by StartIDPIntent is not searched, and StartIDPIntent
// generates its own aggregate id, so a lookup by the state value passed
// to StartIDPIntent finds the intent only when that value equals the id.
func (c *Commands) GetIDPIntentByState(ctx context.Context, cc CommandContext, state string) (string, error) {
	if err := requireNonEmpty("state", state); err != nil {
		return "", err
	}
	version, err := currentVersion(ctx, c.es, aggregateIDPIntent, state, cc.InstanceID)
	if err != nil {
		return "", err
	}
	if version == 0 {
		return "", &PreconditionError{Msg: "idp intent does not exist"}
	}
	return state, nil
}

// HandleOAuthCallback records the outcome of an OAuth2 provider callback
// for a pending intent. Token exchange and profile retrieval happen
// upstream of this command; it only persists the resulting decision.
func (c *Commands) HandleOAuthCallback(ctx context.Context, cc CommandContext, intentID, userID string, success bool, failureReason string) error {
	return c.resolveIDPIntent(ctx, cc, intentID, userID, success, failureReason)
}

// HandleOIDCCallback records the outcome of an OIDC provider callback.
// The protocol differs from plain OAuth2 upstream (ID token verification
// vs. opaque profile fetch) but the resulting state transition on the
// intent aggregate is identical, so both delegate to the same helper.
func (c *Commands) HandleOIDCCallback(ctx context.Context, cc CommandContext, intentID, userID string, success bool, failureReason string) error {
	return c.resolveIDPIntent(ctx, cc, intentID, userID, success, failureReason)
}

func (c *Commands) resolveIDPIntent(ctx context.Context, cc CommandContext, intentID, userID string, success bool, failureReason string) error {
	version, err := c.requireIDPIntent(ctx, cc, intentID)
	if err != nil {
		return err
	}

	if !success {
		payload, err := eventpayload.Encode(eventpayload.IDPIntentFailed{Reason: failureReason})
		if err != nil {
			return err
		}
		cmd := eventstore.NewCmd("idp_intent.failed", aggregateIDPIntent, intentID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
		_, err = c.push(ctx, version, cmd)
		return err
	}

	payload, err := eventpayload.Encode(eventpayload.IDPIntentSucceeded{UserID: userID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("idp_intent.succeeded", aggregateIDPIntent, intentID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireIDPIntent(ctx context.Context, cc CommandContext, intentID string) (int64, error) {
	if err := requireNonEmpty("intentId", intentID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateIDPIntent, intentID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "idp intent does not exist"}
	}
	return version, nil
}
