package reducers

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// UserReducer folds user.* and the human/machine sub-events into
// projections.users.
type UserReducer struct{ base }

// NewUserReducer constructs a UserReducer over store.
func NewUserReducer(store *txstore.Store) *UserReducer {
	return &UserReducer{base{store: store}}
}

func (r *UserReducer) Init(ctx context.Context) error { return nil }

func (r *UserReducer) Reset(ctx context.Context) error {
	return r.exec(ctx, `DELETE FROM projections.users`)
}

func (r *UserReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.HumanAdded:
		emails, err := jsonArray([]string{p.Email})
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			INSERT INTO projections.users (id, instance_id, org_id, username, emails, password_hash, state, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, 'active', $7)
			ON CONFLICT (id) DO UPDATE SET
				username = excluded.username, emails = excluded.emails,
				password_hash = excluded.password_hash, sequence = excluded.sequence, updated_at = now()
			WHERE projections.users.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, e.ResourceOwner, p.Username, emails, p.PasswordHash, e.AggregateVersion)

	case eventpayload.MachineUserAdded:
		return r.exec(ctx, `
			INSERT INTO projections.users (id, instance_id, org_id, username, state, sequence)
			VALUES ($1, $2, $3, $4, 'active', $5)
			ON CONFLICT (id) DO UPDATE SET
				username = excluded.username, sequence = excluded.sequence, updated_at = now()
			WHERE projections.users.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, e.ResourceOwner, p.Username, e.AggregateVersion)

	case eventpayload.HumanProfileChanged:
		return r.touchUser(ctx, e)

	case eventpayload.HumanEmailChanged:
		emails, err := jsonArray([]string{p.Email})
		if err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.users SET emails = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, emails, e.AggregateVersion, e.AggregateID)

	case eventpayload.HumanPhoneChanged:
		return r.exec(ctx, `
			UPDATE projections.users SET phone = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, p.Phone, e.AggregateVersion, e.AggregateID)

	case eventpayload.UsernameChanged:
		return r.exec(ctx, `
			UPDATE projections.users SET username = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, p.Username, e.AggregateVersion, e.AggregateID)

	case eventpayload.UserDeactivated:
		return r.setState(ctx, e, "deactivated")
	case eventpayload.UserReactivated:
		return r.setState(ctx, e, "active")
	case eventpayload.UserLocked:
		return r.setState(ctx, e, "locked")
	case eventpayload.UserUnlocked:
		return r.setState(ctx, e, "active")
	case eventpayload.UserRemoved:
		return r.setState(ctx, e, "removed")

	default:
		return nil
	}
}

func (r *UserReducer) touchUser(ctx context.Context, e eventstore.Event) error {
	return r.exec(ctx, `
		UPDATE projections.users SET sequence = $1, updated_at = now()
		WHERE id = $2 AND sequence < $1`, e.AggregateVersion, e.AggregateID)
}

func (r *UserReducer) setState(ctx context.Context, e eventstore.Event, state string) error {
	return r.exec(ctx, `
		UPDATE projections.users SET state = $1, sequence = $2, updated_at = now()
		WHERE id = $3 AND sequence < $2`, state, e.AggregateVersion, e.AggregateID)
}
