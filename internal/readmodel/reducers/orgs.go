package reducers

import (
	"context"

	"iamcore/internal/eventpayload"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/txstore"
)

// OrgReducer folds org.* events into projections.orgs and
// projections.org_domains.
type OrgReducer struct{ base }

// NewOrgReducer constructs an OrgReducer over store.
func NewOrgReducer(store *txstore.Store) *OrgReducer {
	return &OrgReducer{base{store: store}}
}

func (r *OrgReducer) Init(ctx context.Context) error { return nil }

func (r *OrgReducer) Reset(ctx context.Context) error {
	if err := r.exec(ctx, `DELETE FROM projections.org_domains`); err != nil {
		return err
	}
	return r.exec(ctx, `DELETE FROM projections.orgs`)
}

func (r *OrgReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	payload, err := decode(e)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case eventpayload.OrgAdded:
		return r.exec(ctx, `
			INSERT INTO projections.orgs (id, instance_id, name, state, sequence)
			VALUES ($1, $2, $3, 'active', $4)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, sequence = excluded.sequence, updated_at = now()
			WHERE projections.orgs.sequence < excluded.sequence`,
			e.AggregateID, e.InstanceID, p.Name, e.AggregateVersion)

	case eventpayload.OrgChanged:
		return r.exec(ctx, `
			UPDATE projections.orgs SET name = $1, sequence = $2, updated_at = now()
			WHERE id = $3 AND sequence < $2`, p.Name, e.AggregateVersion, e.AggregateID)

	case eventpayload.OrgDeactivated:
		return r.setOrgState(ctx, e, "deactivated")
	case eventpayload.OrgReactivated:
		return r.setOrgState(ctx, e, "active")
	case eventpayload.OrgRemoved:
		return r.setOrgState(ctx, e, "removed")

	case eventpayload.OrgDomainAdded:
		return r.exec(ctx, `
			INSERT INTO projections.org_domains (instance_id, org_id, domain)
			VALUES ($1, $2, $3)
			ON CONFLICT (instance_id, org_id, domain) DO NOTHING`,
			e.InstanceID, e.AggregateID, p.Domain)

	case eventpayload.OrgDomainVerified:
		return r.exec(ctx, `
			UPDATE projections.org_domains SET is_verified = true
			WHERE instance_id = $1 AND org_id = $2 AND domain = $3`,
			e.InstanceID, e.AggregateID, p.Domain)

	case eventpayload.OrgDomainPrimarySet:
		if err := r.exec(ctx, `
			UPDATE projections.org_domains SET is_primary = false
			WHERE instance_id = $1 AND org_id = $2`, e.InstanceID, e.AggregateID); err != nil {
			return err
		}
		if err := r.exec(ctx, `
			UPDATE projections.org_domains SET is_primary = true
			WHERE instance_id = $1 AND org_id = $2 AND domain = $3`,
			e.InstanceID, e.AggregateID, p.Domain); err != nil {
			return err
		}
		return r.exec(ctx, `
			UPDATE projections.orgs SET primary_domain = $1, updated_at = now()
			WHERE id = $2`, p.Domain, e.AggregateID)

	case eventpayload.OrgDomainRemoved:
		return r.exec(ctx, `
			DELETE FROM projections.org_domains
			WHERE instance_id = $1 AND org_id = $2 AND domain = $3`,
			e.InstanceID, e.AggregateID, p.Domain)

	default:
		return nil
	}
}

func (r *OrgReducer) setOrgState(ctx context.Context, e eventstore.Event, state string) error {
	return r.exec(ctx, `
		UPDATE projections.orgs SET state = $1, sequence = $2, updated_at = now()
		WHERE id = $3 AND sequence < $2`, state, e.AggregateVersion, e.AggregateID)
}
