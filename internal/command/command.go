// Package command implements every write operation in the external
// command surface, one file per aggregate. Every command follows the
// same five-step contract: authorize the caller (left to the transport
// layer), validate inputs, load current aggregate state when a
// transition must be checked against it, build the ordered events for
// the transition, and append them with an optimistic concurrency check.
package command

import (
	"context"
	"fmt"

	"iamcore/internal/readmodel"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/idgen"
)

// CommandContext carries the caller's tenancy scope explicitly through
// every command call. There is no module-level singleton holding this —
// every call site threads its own CommandContext.
type CommandContext struct {
	InstanceID string
	OrgID      string
	UserID     string
}

// Commands bundles every aggregate's command methods behind the
// dependencies they share: the eventstore they append to and the
// read-models they consult for uniqueness/validation checks.
type Commands struct {
	es    eventstore.EventStore
	users readmodel.UserQueries
	orgs  readmodel.OrgQueries
	projs readmodel.ProjectQueries
	apps  readmodel.AppQueries
	ids   *idgen.Generator
}

// New constructs a Commands bundle.
func New(es eventstore.EventStore, ids *idgen.Generator, users readmodel.UserQueries, orgs readmodel.OrgQueries, projs readmodel.ProjectQueries, apps readmodel.AppQueries) *Commands {
	return &Commands{es: es, users: users, orgs: orgs, projs: projs, apps: apps, ids: ids}
}

// ValidationError reports a command input that failed validation before
// any event was built.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command: validation failed on %s: %s", e.Field, e.Msg)
}

// PreconditionError reports a uniqueness or state precondition failure
// discovered via a read-model or eventstore peek (step 2 of the
// contract), distinct from a concurrent-write ConcurrencyError.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return "command: precondition failed: " + e.Msg }

func requireNonEmpty(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Msg: "must not be empty"}
	}
	return nil
}

func (c *Commands) newID() (string, error) {
	id, err := c.ids.NextString()
	if err != nil {
		return "", fmt.Errorf("command: generate id: %w", err)
	}
	return id, nil
}

// push is the shared step-5 call every command ends with: append the
// built events under an optimistic concurrency check against
// expectedVersion (0 for a brand-new aggregate).
func (c *Commands) push(ctx context.Context, expectedVersion int64, cmds ...eventstore.Cmd) ([]eventstore.Event, error) {
	return c.es.PushWithConcurrencyCheck(ctx, cmds, expectedVersion)
}

func currentVersion(ctx context.Context, es eventstore.EventStore, aggregateType, aggregateID, instanceID string) (int64, error) {
	e, ok, err := es.LatestEvent(ctx, aggregateType, aggregateID, instanceID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return e.AggregateVersion, nil
}
