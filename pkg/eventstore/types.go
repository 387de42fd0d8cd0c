package eventstore

import "time"

// Position totally orders events across the whole log: Position is the
// global, strictly-increasing ordinal assigned at append; InPositionOrder
// disambiguates events written in the same transaction/batch.
type Position struct {
	Position        int64
	InPositionOrder int32
}

// Less reports whether p sorts strictly before other.
func (p Position) Less(other Position) bool {
	if p.Position != other.Position {
		return p.Position < other.Position
	}
	return p.InPositionOrder < other.InPositionOrder
}

// Compare returns -1, 0 or 1 as p is less than, equal to, or greater
// than other.
func (p Position) Compare(other Position) int {
	switch {
	case p.Position < other.Position, p.Position == other.Position && p.InPositionOrder < other.InPositionOrder:
		return -1
	case p == other:
		return 0
	default:
		return 1
	}
}

// Event is an immutable fact appended to the log. Only the eventstore
// constructs Events with a Position/ID/AggregateVersion assigned; events
// built for append (Cmd) carry none of those until Push returns.
type Event struct {
	ID               string
	EventType        string
	AggregateType    string
	AggregateID      string
	AggregateVersion int64
	Payload          []byte
	Editor           string
	ResourceOwner    string
	InstanceID       string
	Position         Position
	CreationDate     time.Time
	Revision         int
}

// Cmd describes one event to append; the store fills in ID, Position and
// AggregateVersion.
type Cmd struct {
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte
	Editor        string
	ResourceOwner string
	InstanceID    string
	Revision      int
}

// NewCmd constructs a Cmd. Revision defaults to 1 when unset by the caller.
func NewCmd(eventType, aggregateType, aggregateID string, payload []byte, editor, resourceOwner, instanceID string) Cmd {
	return Cmd{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		Editor:        editor,
		ResourceOwner: resourceOwner,
		InstanceID:    instanceID,
		Revision:      1,
	}
}

// WithRevision overrides the default payload schema revision.
func (c Cmd) WithRevision(revision int) Cmd {
	c.Revision = revision
	return c
}

// Aggregate is the derived entity (aggregateType, aggregateID): the fold
// of its events, carrying the current version and tenant scope.
type Aggregate struct {
	Type       string
	ID         string
	InstanceID string
	Version    int64
	Events     []Event
}

// Filter selects events by set-membership on several fields combined
// with AND, plus a position lower bound. Search(filters...) takes the
// OR/union of several Filters (spec §4.C).
type Filter struct {
	AggregateTypes []string
	AggregateID    string
	EventTypes     []string
	ResourceOwner  string
	InstanceID     string
	FromPosition   *Position
	// AtPosition, when set, narrows to the single event whose
	// (Position, InPositionOrder) equals it exactly. Unlike FromPosition
	// (a strict lower bound used to drain a tail), this targets one known
	// event, e.g. a quarantined event identified by its failed-events row.
	AtPosition *Position
	Limit      int
	Descending bool
}
