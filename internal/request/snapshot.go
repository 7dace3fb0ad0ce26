package request

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON flattens the fixed metadata fields and the dynamic attribute
// map into a single JSON object: there is no nested "attrs" key, attributes
// sit directly alongside "_code", "_id", and friends.
func (s PacketSnapshot) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	first := true
	write := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}

	if err := write("_code", s.Code); err != nil {
		return nil, err
	}
	if err := write("_id", s.ID); err != nil {
		return nil, err
	}
	if s.Host != "" {
		if err := write("_host", s.Host); err != nil {
			return nil, err
		}
	}
	if s.Port != 0 {
		if err := write("_port", s.Port); err != nil {
			return nil, err
		}
	}
	if s.TS != 0 {
		if err := write("_ts", s.TS); err != nil {
			return nil, err
		}
	}
	if s.TSStr != "" {
		if err := write("_tsStr", s.TSStr); err != nil {
			return nil, err
		}
	}
	for name, value := range s.Attrs {
		if err := write(name, value); err != nil {
			return nil, fmt.Errorf("marshal attribute %q: %w", name, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
