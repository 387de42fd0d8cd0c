package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iamcore/pkg/eventstore"
)

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateStopped:  "STOPPED",
		StateStarting: "STARTING",
		StateCatchUp:  "CATCH_UP",
		StateLive:     "LIVE",
		StateStopping: "STOPPING",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("users")
	assert.Equal(t, "users", cfg.Name)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.EnableLocking)
	assert.False(t, cfg.RebuildOnStart)
}

func TestHandler_Matches(t *testing.T) {
	h := &Handler{cfg: Config{
		AggregateTypes: []string{"user"},
		EventTypes:     []string{"user.human.added", "user.removed"},
	}}

	assert.True(t, h.matches(eventstore.Event{AggregateType: "user", EventType: "user.human.added"}))
	assert.False(t, h.matches(eventstore.Event{AggregateType: "org", EventType: "org.added"}))
	assert.False(t, h.matches(eventstore.Event{AggregateType: "user", EventType: "user.locked"}))
}

func TestHandler_Matches_NoFilterMatchesEverything(t *testing.T) {
	h := &Handler{}
	assert.True(t, h.matches(eventstore.Event{AggregateType: "anything", EventType: "anything.happened"}))
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "a"))
}
