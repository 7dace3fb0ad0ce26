// Package request defines the duck-typed packet view the rest of the core
// operates on, plus the small ordered-map and dialog types that travel
// alongside it. Nothing in this package talks to the network or to any
// wire codec; it exists so the core packages (match, reply, backend,
// dialogstore) can be written against an interface instead of a concrete
// decoder library.
package request

import "fmt"

// Packet is the read side of an inbound RADIUS datagram: a code, an id,
// and an attribute multimap. Whatever a Decoder returns must implement
// this. Attribute lookups return the first value for a scalar read.
type Packet interface {
	Code() int
	ID() int
	Names() []string
	Values(name string) []string
}

// First returns the first value of name, and whether it was present.
func First(p Packet, name string) (string, bool) {
	vs := p.Values(name)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// OrderedMap is an insertion-ordered string-keyed map. Reply templates and
// materialized reply attributes must preserve declaration order because
// directive evaluation (fromPool in particular) is side-effectful:
// evaluating "Framed-IP-Address" before "Delegated-IPv6-Prefix" allocates
// from the pools in that order.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// Set appends name to the iteration order on first use, or overwrites the
// value in place if name was already present.
func (m *OrderedMap) Set(name string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = value
}

// Get returns the value for name and whether it was present.
func (m *OrderedMap) Get(name string) (any, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Keys returns the attribute names in declaration order.
func (m *OrderedMap) Keys() []string {
	return m.keys
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// Clone returns a deep-enough copy: same keys, same order, independent
// backing slice/map so appends to the clone never affect the original.
func (m *OrderedMap) Clone() *OrderedMap {
	c := NewOrderedMap()
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// String renders a value for stringification purposes (dialog-token parts
// read from reply attribute values). Byte slices render as lowercase hex
// without a "0x" prefix, matching the dialog JSON contract.
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return fmt.Sprintf("%x", t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// BackendResult is the outcome of dispatching one inbound packet through
// the backend orchestrator.
type BackendResult struct {
	ReplyCode       *uint8
	ReplyAttributes *OrderedMap
	DialogToken     *string
}

// Dialog is the persisted (request, reply) pair, matching the external
// JSON contract downstream inspection tooling expects exactly.
type Dialog struct {
	Request PacketSnapshot `json:"request"`
	Reply   PacketSnapshot `json:"reply"`
}

// PacketSnapshot is one side of a Dialog: metadata fields prefixed with an
// underscore, then one entry per packet attribute (collapsed to a scalar
// when there is exactly one value, kept as a list otherwise).
type PacketSnapshot struct {
	Code  *int           `json:"_code"`
	ID    *int           `json:"_id"`
	Host  string         `json:"_host,omitempty"`
	Port  int            `json:"_port,omitempty"`
	TS    int64          `json:"_ts,omitempty"`
	TSStr string         `json:"_tsStr,omitempty"`
	Attrs map[string]any `json:"-"`
}
