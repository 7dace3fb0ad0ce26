package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lion7/radiusd/internal/request"
)

// AttrMap is an insertion-ordered map of attribute name to literal or
// directive value, used for reply_definitions.*.attributes. Declaration
// order must survive parsing because directive evaluation is
// side-effectful: a fromPool directive allocates on evaluation, so
// re-ordering attributes can change which pool entries get consumed first.
type AttrMap struct {
	*request.OrderedMap
}

func newAttrMap() AttrMap {
	return AttrMap{OrderedMap: request.NewOrderedMap()}
}

// UnmarshalYAML walks the mapping node's Content slice directly instead of
// decoding into a Go map, since map[string]any unmarshaling in yaml.v3
// does not preserve key order.
func (a *AttrMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping, got kind %d", node.Kind)
	}
	m := newAttrMap()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		var key string
		if err := keyNode.Decode(&key); err != nil {
			return fmt.Errorf("decoding attribute key: %w", err)
		}
		var value any
		if err := valNode.Decode(&value); err != nil {
			return fmt.Errorf("decoding attribute %q: %w", key, err)
		}
		m.Set(key, value)
	}
	*a = m
	return nil
}

// UnmarshalJSON walks the raw token stream, since encoding/json's
// map[string]any unmarshaling also discards key order. This and
// RuleGroup.UnmarshalJSON are the places the config loader falls back to
// the standard library's low-level API rather than a third-party
// ordered-map type: no such library appears
// anywhere in the retrieval pack (see DESIGN.md).
func (a *AttrMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	m := newAttrMap()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected a string key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding attribute %q: %w", key, err)
		}
		m.Set(key, value)
	}
	*a = m
	return nil
}

// MarshalJSON is provided so AttrMap round-trips in diagnostics output;
// production code never re-serializes a loaded config.
func (a AttrMap) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, k := range a.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		v, _ := a.Get(k)
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
