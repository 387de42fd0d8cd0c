package eventpayload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iamcore/pkg/eventstore"
)

func TestDecode_KnownEventType(t *testing.T) {
	raw, err := json.Marshal(HumanAdded{
		Username:  "alice",
		Email:     "alice@acme.test",
		FirstName: "Alice",
		LastName:  "Anderson",
	})
	require.NoError(t, err)

	p, err := Decode(eventstore.Event{EventType: "user.human.added", Payload: raw})
	require.NoError(t, err)

	added, ok := p.(HumanAdded)
	require.True(t, ok)
	assert.Equal(t, "alice", added.Username)
	assert.Equal(t, "alice@acme.test", added.Email)
}

func TestDecode_UnknownEventType_ReturnsOpaque(t *testing.T) {
	raw := json.RawMessage(`{"foo":"bar"}`)
	p, err := Decode(eventstore.Event{EventType: "something.unrecognized", Payload: raw})
	require.NoError(t, err)

	opaque, ok := p.(Opaque)
	require.True(t, ok)
	assert.Equal(t, "something.unrecognized", opaque.EventType)
	assert.JSONEq(t, `{"foo":"bar"}`, string(opaque.Raw))
}

func TestDecode_EmptyPayload_ZeroValue(t *testing.T) {
	p, err := Decode(eventstore.Event{EventType: "user.deactivated", Payload: nil})
	require.NoError(t, err)
	assert.Equal(t, UserDeactivated{}, p)
}

func TestDecode_MalformedPayload_Errors(t *testing.T) {
	_, err := Decode(eventstore.Event{EventType: "user.human.added", Payload: []byte(`not json`)})
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	orig := OrgDomainVerified{Domain: "acme.test"}
	raw, err := Encode(orig)
	require.NoError(t, err)

	decoded, err := Decode(eventstore.Event{EventType: "org.domain.verified", Payload: raw})
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}

func TestEncode_Opaque_ReturnsRawVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"x":1}`)
	out, err := Encode(Opaque{EventType: "unknown.thing", Raw: raw})
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}
