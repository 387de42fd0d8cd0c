package command

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
)

const aggregateUser = "user"

// AddHumanUserInput is the input to AddHumanUser.
type AddHumanUserInput struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
}

// AddHumanUser creates a new human user under cc's org.
func (c *Commands) AddHumanUser(ctx context.Context, cc CommandContext, in AddHumanUserInput) (string, error) {
	if err := requireNonEmpty("username", in.Username); err != nil {
		return "", err
	}
	if err := requireNonEmpty("email", in.Email); err != nil {
		return "", err
	}

	existing, found, err := c.users.GetByUsername(ctx, cc.InstanceID, in.Username)
	if err != nil {
		return "", err
	}
	if found {
		_ = existing
		return "", &PreconditionError{Msg: "username already taken"}
	}

	id, err := c.newID()
	if err != nil {
		return "", err
	}

	payload, err := eventpayload.Encode(eventpayload.HumanAdded{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
	})
	if err != nil {
		return "", err
	}

	cmd := eventstore.NewCmd("user.human.added", aggregateUser, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// ChangeProfileInput is the input to ChangeProfile.
type ChangeProfileInput struct {
	UserID      string
	FirstName   string
	LastName    string
	DisplayName string
}

// ChangeProfile updates a user's profile fields.
func (c *Commands) ChangeProfile(ctx context.Context, cc CommandContext, in ChangeProfileInput) error {
	if err := requireNonEmpty("userId", in.UserID); err != nil {
		return err
	}
	version, err := currentVersion(ctx, c.es, aggregateUser, in.UserID, cc.InstanceID)
	if err != nil {
		return err
	}
	if version == 0 {
		return &PreconditionError{Msg: "user does not exist"}
	}

	payload, err := eventpayload.Encode(eventpayload.HumanProfileChanged{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		DisplayName: in.DisplayName,
	})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.human.profile.changed", aggregateUser, in.UserID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// ChangeEmail updates a user's email, resetting its verified flag.
func (c *Commands) ChangeEmail(ctx context.Context, cc CommandContext, userID, email string) error {
	if err := requireNonEmpty("email", email); err != nil {
		return err
	}
	version, err := currentVersion(ctx, c.es, aggregateUser, userID, cc.InstanceID)
	if err != nil {
		return err
	}
	if version == 0 {
		return &PreconditionError{Msg: "user does not exist"}
	}
	payload, err := eventpayload.Encode(eventpayload.HumanEmailChanged{Email: email, IsVerified: false})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.human.email.changed", aggregateUser, userID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// ChangeUsername renames a user, checking global uniqueness first.
func (c *Commands) ChangeUsername(ctx context.Context, cc CommandContext, userID, username string) error {
	if err := requireNonEmpty("username", username); err != nil {
		return err
	}
	_, found, err := c.users.GetByUsername(ctx, cc.InstanceID, username)
	if err != nil {
		return err
	}
	if found {
		return &PreconditionError{Msg: "username already taken"}
	}
	version, err := currentVersion(ctx, c.es, aggregateUser, userID, cc.InstanceID)
	if err != nil {
		return err
	}
	if version == 0 {
		return &PreconditionError{Msg: "user does not exist"}
	}
	payload, err := eventpayload.Encode(eventpayload.UsernameChanged{Username: username})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.username.changed", aggregateUser, userID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// ChangeUserPhone sets or replaces a user's phone number.
func (c *Commands) ChangeUserPhone(ctx context.Context, cc CommandContext, userID, phone string) error {
	version, err := c.requireUser(ctx, cc, userID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.HumanPhoneChanged{Phone: phone, IsVerified: false})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.human.phone.changed", aggregateUser, userID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveUserPhone clears a user's phone number.
func (c *Commands) RemoveUserPhone(ctx context.Context, cc CommandContext, userID string) error {
	return c.ChangeUserPhone(ctx, cc, userID, "")
}

func (c *Commands) simpleUserTransition(ctx context.Context, cc CommandContext, userID, eventType string, payload eventpayload.Payload) error {
	version, err := c.requireUser(ctx, cc, userID)
	if err != nil {
		return err
	}
	data, err := eventpayload.Encode(payload)
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd(eventType, aggregateUser, userID, data, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// DeactivateUser marks a user deactivated.
func (c *Commands) DeactivateUser(ctx context.Context, cc CommandContext, userID string) error {
	return c.simpleUserTransition(ctx, cc, userID, "user.deactivated", eventpayload.UserDeactivated{})
}

// ReactivateUser marks a deactivated user active again.
func (c *Commands) ReactivateUser(ctx context.Context, cc CommandContext, userID string) error {
	return c.simpleUserTransition(ctx, cc, userID, "user.reactivated", eventpayload.UserReactivated{})
}

// LockUser locks a user out (e.g. after too many failed logins).
func (c *Commands) LockUser(ctx context.Context, cc CommandContext, userID string) error {
	return c.simpleUserTransition(ctx, cc, userID, "user.locked", eventpayload.UserLocked{})
}

// UnlockUser clears a user's lock.
func (c *Commands) UnlockUser(ctx context.Context, cc CommandContext, userID string) error {
	return c.simpleUserTransition(ctx, cc, userID, "user.unlocked", eventpayload.UserUnlocked{})
}

// RemoveUser tombstones a user.
func (c *Commands) RemoveUser(ctx context.Context, cc CommandContext, userID string) error {
	return c.simpleUserTransition(ctx, cc, userID, "user.removed", eventpayload.UserRemoved{})
}

// AddMachineUserInput is the input to AddMachineUser.
type AddMachineUserInput struct {
	Username    string
	Name        string
	Description string
}

// AddMachineUser creates a service-account-style user with no password,
// authenticated instead via machine keys (§6.3 names the machine.key.*
// events with no originating command in the distilled surface).
func (c *Commands) AddMachineUser(ctx context.Context, cc CommandContext, in AddMachineUserInput) (string, error) {
	if err := requireNonEmpty("username", in.Username); err != nil {
		return "", err
	}
	_, found, err := c.users.GetByUsername(ctx, cc.InstanceID, in.Username)
	if err != nil {
		return "", err
	}
	if found {
		return "", &PreconditionError{Msg: "username already taken"}
	}
	id, err := c.newID()
	if err != nil {
		return "", err
	}
	payload, err := eventpayload.Encode(eventpayload.MachineUserAdded{
		Username:    in.Username,
		Name:        in.Name,
		Description: in.Description,
	})
	if err != nil {
		return "", err
	}
	cmd := eventstore.NewCmd("user.machine.added", aggregateUser, id, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	if _, err := c.push(ctx, 0, cmd); err != nil {
		return "", err
	}
	return id, nil
}

// AddMachineKeyInput is the input to AddMachineKey.
type AddMachineKeyInput struct {
	UserID    string
	KeyID     string
	PublicKey []byte
	ExpiresAt string
}

// AddMachineKey attaches a public key a machine user can authenticate with.
func (c *Commands) AddMachineKey(ctx context.Context, cc CommandContext, in AddMachineKeyInput) error {
	version, err := c.requireUser(ctx, cc, in.UserID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.MachineKeyAdded{
		KeyID:     in.KeyID,
		PublicKey: in.PublicKey,
		ExpiresAt: in.ExpiresAt,
	})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.machine.key.added", aggregateUser, in.UserID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

// RemoveMachineKey revokes a previously added machine key.
func (c *Commands) RemoveMachineKey(ctx context.Context, cc CommandContext, userID, keyID string) error {
	version, err := c.requireUser(ctx, cc, userID)
	if err != nil {
		return err
	}
	payload, err := eventpayload.Encode(eventpayload.MachineKeyRemoved{KeyID: keyID})
	if err != nil {
		return err
	}
	cmd := eventstore.NewCmd("user.machine.key.removed", aggregateUser, userID, payload, cc.UserID, cc.OrgID, cc.InstanceID)
	_, err = c.push(ctx, version, cmd)
	return err
}

func (c *Commands) requireUser(ctx context.Context, cc CommandContext, userID string) (int64, error) {
	if err := requireNonEmpty("userId", userID); err != nil {
		return 0, err
	}
	version, err := currentVersion(ctx, c.es, aggregateUser, userID, cc.InstanceID)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, &PreconditionError{Msg: "user does not exist"}
	}
	return version, nil
}
