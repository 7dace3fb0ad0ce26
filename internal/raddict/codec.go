package raddict

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"layeh.com/radius"

	"github.com/lion7/radiusd/internal/request"
)

// packetView adapts a decoded *radius.Packet to request.Packet.
type packetView struct {
	p *radius.Packet
}

func (v packetView) Code() int { return int(v.p.Code) }
func (v packetView) ID() int   { return int(v.p.Identifier) }

func (v packetView) Names() []string {
	var names []string
	for t := range v.p.Attributes {
		if name, ok := nameForType(t); ok {
			names = append(names, name)
		}
	}
	return names
}

func (v packetView) Values(name string) []string {
	t, k, ok := lookup(name)
	if !ok {
		return nil
	}
	attrs := v.p.Attributes[t]
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, decodeValue(k, a))
	}
	return out
}

// EncodeRequest builds and encodes a standalone request packet (used by
// radclient to originate an Access-Request or Accounting-Request; the
// server side never calls this, it only ever replies to decoded packets
// via NewEncoder).
func EncodeRequest(code uint8, id byte, attrs *request.OrderedMap, secret []byte) ([]byte, error) {
	p := radius.New(radius.Code(code), secret)
	p.Identifier = id

	for _, name := range attrs.Keys() {
		v, _ := attrs.Get(name)
		t, k, ok := lookup(name)
		if !ok {
			continue
		}
		encoded, err := encodeValue(k, v)
		if err != nil {
			return nil, fmt.Errorf("encoding attribute %s: %w", name, err)
		}
		p.Add(t, encoded)
	}

	out, err := p.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding RADIUS request: %w", err)
	}
	return out, nil
}

// NewDecoder returns a Decoder bound to secret, suitable for
// udpserver.Decoder.
func NewDecoder(secret []byte) func([]byte) (request.Packet, error) {
	return func(data []byte) (request.Packet, error) {
		p, err := radius.Parse(data, secret)
		if err != nil {
			return nil, fmt.Errorf("parsing RADIUS packet: %w", err)
		}
		return packetView{p: p}, nil
	}
}

// NewEncoder returns an Encoder bound to secret, suitable for
// udpserver.Encoder. The response authenticator is derived from the
// request's authenticator per RFC 2865 §3, which radius.Packet.Encode
// computes when Authenticator is seeded from the request before encoding.
func NewEncoder(secret []byte) func(uint8, *request.OrderedMap, request.Packet) ([]byte, error) {
	return func(replyCode uint8, attrs *request.OrderedMap, req request.Packet) ([]byte, error) {
		view, ok := req.(packetView)
		if !ok {
			return nil, fmt.Errorf("encoder requires a packet decoded by raddict")
		}

		reply := radius.New(radius.Code(replyCode), secret)
		reply.Identifier = view.p.Identifier
		reply.Authenticator = view.p.Authenticator

		for _, name := range attrs.Keys() {
			v, _ := attrs.Get(name)
			t, k, ok := lookup(name)
			if !ok {
				// Unknown attribute name: no wire type to pack it under,
				// so it is dropped rather than guessed at.
				continue
			}
			encoded, err := encodeValue(k, v)
			if err != nil {
				return nil, fmt.Errorf("encoding attribute %s: %w", name, err)
			}
			reply.Add(t, encoded)
		}

		out, err := reply.Encode()
		if err != nil {
			return nil, fmt.Errorf("encoding RADIUS reply: %w", err)
		}
		return out, nil
	}
}

func decodeValue(k kind, a radius.Attribute) string {
	switch k {
	case kindIPv4Addr:
		if len(a) == 4 {
			return net.IP(a).String()
		}
	case kindIPv6Prefix:
		return decodeIPv6Prefix(a)
	case kindInteger:
		if len(a) == 4 {
			return strconv.FormatUint(uint64(binary.BigEndian.Uint32(a)), 10)
		}
	case kindOctets:
		return hex.EncodeToString(a)
	}
	return string(a)
}

func encodeValue(k kind, v any) (radius.Attribute, error) {
	// "0x<hex>" strings targeting octets-typed attributes are unhexed
	// rather than stored literally.
	if s, ok := v.(string); ok && k == kindOctets && strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
		}
		return radius.Attribute(b), nil
	}

	switch k {
	case kindIPv4Addr:
		s, _ := v.(string)
		ip := net.ParseIP(s).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q", s)
		}
		return radius.Attribute(ip), nil
	case kindIPv6Prefix:
		s, _ := v.(string)
		return encodeIPv6Prefix(s)
	case kindInteger:
		switch n := v.(type) {
		case int:
			return uint32Attribute(uint32(n)), nil
		case int64:
			return uint32Attribute(uint32(n)), nil
		case string:
			parsed, err := strconv.ParseUint(n, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid integer value %q", n)
			}
			return uint32Attribute(uint32(parsed)), nil
		default:
			return nil, fmt.Errorf("unsupported integer value %v (%T)", v, v)
		}
	default:
		switch s := v.(type) {
		case string:
			return radius.Attribute(s), nil
		case []byte:
			return radius.Attribute(s), nil
		default:
			return radius.Attribute(fmt.Sprintf("%v", v)), nil
		}
	}
}

func uint32Attribute(n uint32) radius.Attribute {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return radius.Attribute(b)
}

// decodeIPv6Prefix renders the RFC 3162 §2 / RFC 4818 §3 wire format
// (1 reserved byte, 1 prefix-length byte, up to 16 address bytes padded
// with zeroes) as canonical "<addr>/<len>" text.
func decodeIPv6Prefix(a radius.Attribute) string {
	if len(a) < 2 {
		return ""
	}
	prefixLen := int(a[1])
	addrBytes := make([]byte, 16)
	copy(addrBytes, a[2:])
	return fmt.Sprintf("%s/%d", net.IP(addrBytes).String(), prefixLen)
}

func encodeIPv6Prefix(s string) (radius.Attribute, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv6 prefix %q: %w", s, err)
	}
	if ip.To4() != nil {
		return nil, fmt.Errorf("%q is not an IPv6 prefix", s)
	}
	ones, _ := ipnet.Mask.Size()
	out := make([]byte, 2, 18)
	out[0] = 0
	out[1] = byte(ones)
	out = append(out, ipnet.IP.To16()...)
	return radius.Attribute(out), nil
}
