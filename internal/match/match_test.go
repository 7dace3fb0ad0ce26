package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lion7/radiusd/internal/config"
)

type fakePacket struct {
	code  int
	attrs map[string][]string
}

func (p fakePacket) Code() int                   { return p.code }
func (p fakePacket) ID() int                     { return 1 }
func (p fakePacket) Names() []string             { return nil }
func (p fakePacket) Values(name string) []string { return p.attrs[name] }

func TestSelect_FirstMatchWins(t *testing.T) {
	groups := []config.RuleGroup{
		{Target: "voip", Predicates: []config.Predicate{{"Calling-Station-Id": "^00"}}},
		{Target: "default"},
	}
	e, err := NewEngine(groups)
	require.NoError(t, err)

	req := fakePacket{attrs: map[string][]string{"Calling-Station-Id": {"0031612345"}}}
	assert.Equal(t, "voip", e.Select(req, "fallback"))
}

func TestSelect_FallsThroughToDefaultTarget(t *testing.T) {
	groups := []config.RuleGroup{
		{Target: "voip", Predicates: []config.Predicate{{"Calling-Station-Id": "^00"}}},
	}
	e, err := NewEngine(groups)
	require.NoError(t, err)

	req := fakePacket{attrs: map[string][]string{"Calling-Station-Id": {"+31612345"}}}
	assert.Equal(t, "fallback", e.Select(req, "fallback"))
}

func TestSelect_PredicatesWithinAGroupAreOred(t *testing.T) {
	groups := []config.RuleGroup{
		{Target: "matched", Predicates: []config.Predicate{
			{"NAS-Identifier": "never-matches"},
			{"NAS-Identifier": "nas1"},
		}},
	}
	e, err := NewEngine(groups)
	require.NoError(t, err)

	req := fakePacket{attrs: map[string][]string{"NAS-Identifier": {"nas1.example.com"}}}
	assert.Equal(t, "matched", e.Select(req, "fallback"))
}

func TestSelect_AttributesWithinAPredicateAreAnded(t *testing.T) {
	groups := []config.RuleGroup{
		{Target: "matched", Predicates: []config.Predicate{
			{"NAS-Identifier": "nas1", "Service-Type": "Framed"},
		}},
	}
	e, err := NewEngine(groups)
	require.NoError(t, err)

	partial := fakePacket{attrs: map[string][]string{"NAS-Identifier": {"nas1"}}}
	assert.Equal(t, "fallback", e.Select(partial, "fallback"))

	full := fakePacket{attrs: map[string][]string{"NAS-Identifier": {"nas1"}, "Service-Type": {"Framed"}}}
	assert.Equal(t, "matched", e.Select(full, "fallback"))
}

func TestSelect_EmptyPredicateListIsCatchAll(t *testing.T) {
	groups := []config.RuleGroup{{Target: "anything"}}
	e, err := NewEngine(groups)
	require.NoError(t, err)

	assert.Equal(t, "anything", e.Select(fakePacket{}, "fallback"))
}

func TestNewEngine_RejectsMissingTarget(t *testing.T) {
	_, err := NewEngine([]config.RuleGroup{{Target: ""}})
	assert.Error(t, err)
}

func TestNewEngine_RejectsInvalidRegex(t *testing.T) {
	_, err := NewEngine([]config.RuleGroup{
		{Target: "x", Predicates: []config.Predicate{{"attr": "("}}},
	})
	assert.Error(t, err)
}
