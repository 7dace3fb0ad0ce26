package request

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMap_PreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("c", 1)
	m.Set("a", 2)
	m.Set("b", 3)

	assert.Equal(t, []string{"c", "a", "b"}, m.Keys())
	assert.Equal(t, 3, m.Len())
}

func TestOrderedMap_SetOverwritesWithoutReordering(t *testing.T) {
	m := NewOrderedMap()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 99)

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestOrderedMap_GetMissingReturnsFalse(t *testing.T) {
	m := NewOrderedMap()
	_, ok := m.Get("missing")
	assert.False(t, ok)
}

func TestOrderedMap_CloneIsIndependent(t *testing.T) {
	m := NewOrderedMap()
	m.Set("a", 1)

	c := m.Clone()
	c.Set("b", 2)

	assert.Equal(t, []string{"a"}, m.Keys())
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestFirst_ReturnsFirstValue(t *testing.T) {
	p := fakeValuesPacket{values: map[string][]string{"x": {"one", "two"}}}
	v, ok := First(p, "x")
	require.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestFirst_MissingAttributeReturnsFalse(t *testing.T) {
	p := fakeValuesPacket{}
	_, ok := First(p, "x")
	assert.False(t, ok)
}

func TestString_RendersByteSlicesAsLowercaseHex(t *testing.T) {
	assert.Equal(t, "deadbeef", String([]byte{0xde, 0xad, 0xbe, 0xef}))
	assert.Equal(t, "plain", String("plain"))
}

func TestPacketSnapshot_MarshalJSON_FlattensMetadataAndAttributes(t *testing.T) {
	code, id := 1, 42
	snap := PacketSnapshot{
		Code:  &code,
		ID:    &id,
		Host:  "10.0.0.1",
		Port:  1812,
		Attrs: map[string]any{"User-Name": "alice"},
	}

	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	assert.EqualValues(t, 1, out["_code"])
	assert.EqualValues(t, 42, out["_id"])
	assert.Equal(t, "10.0.0.1", out["_host"])
	assert.EqualValues(t, 1812, out["_port"])
	assert.Equal(t, "alice", out["User-Name"])
	assert.NotContains(t, out, "_ts")
	assert.NotContains(t, out, "_tsStr")
}

func TestPacketSnapshot_MarshalJSON_OmitsZeroMetadataFields(t *testing.T) {
	code, id := 2, 7
	snap := PacketSnapshot{Code: &code, ID: &id}

	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	assert.NotContains(t, out, "_host")
	assert.NotContains(t, out, "_port")
	assert.NotContains(t, out, "_ts")
	assert.NotContains(t, out, "_tsStr")
}

type fakeValuesPacket struct {
	values map[string][]string
}

func (p fakeValuesPacket) Code() int                   { return 1 }
func (p fakeValuesPacket) ID() int                     { return 1 }
func (p fakeValuesPacket) Names() []string             { return nil }
func (p fakeValuesPacket) Values(name string) []string { return p.values[name] }
