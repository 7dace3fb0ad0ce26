// Package raddict adapts layeh.com/radius to the Decoder/Encoder contract
// the core expects, playing the role of the external RADIUS packet
// wire-encoding/decoding library the orchestrator is built against.
//
// Attribute dictionary authoring is out of scope: this package does not
// implement a general dictionary-file parser. It carries only the small,
// fixed table of attribute numbers (the handful of common RFC
// 2865/2866/3162/4818 AVPs a policy server actually routes on) needed to
// translate the attribute *names* the config and directive language use
// into the wire Type byte layeh.com/radius needs.
package raddict

import "layeh.com/radius"

// kind classifies how an attribute's Go-side value maps to wire bytes.
type kind int

const (
	kindText kind = iota
	kindOctets
	kindIPv4Addr
	kindIPv6Prefix
	kindInteger
)

type attrDef struct {
	typ  radius.Type
	kind kind
}

// builtin is the fixed name -> (type, kind) table. Numbers are the
// attribute types assigned in the RADIUS attribute registry for RFC 2865
// (AVPs 1-39 and 60-63), RFC 2866 (AVPs 40-51), RFC 3162 (96-99, IPv6), and RFC 4818
// (123, delegated IPv6 prefix).
var builtin = map[string]attrDef{
	"User-Name":             {1, kindText},
	"User-Password":         {2, kindOctets},
	"NAS-IP-Address":        {4, kindIPv4Addr},
	"NAS-Port":              {5, kindInteger},
	"Service-Type":          {6, kindInteger},
	"Framed-Protocol":       {7, kindInteger},
	"Framed-IP-Address":     {8, kindIPv4Addr},
	"Framed-IP-Netmask":     {9, kindIPv4Addr},
	"Reply-Message":         {18, kindText},
	"Session-Timeout":       {27, kindInteger},
	"Idle-Timeout":          {28, kindInteger},
	"Called-Station-Id":     {30, kindText},
	"Calling-Station-Id":    {31, kindText},
	"NAS-Identifier":        {32, kindText},
	"Class":                 {25, kindOctets},
	"Acct-Status-Type":      {40, kindInteger},
	"Acct-Delay-Time":       {41, kindInteger},
	"Acct-Input-Octets":     {42, kindInteger},
	"Acct-Output-Octets":    {43, kindInteger},
	"Acct-Session-Id":       {44, kindText},
	"Acct-Authentic":        {45, kindInteger},
	"Acct-Session-Time":     {46, kindInteger},
	"Acct-Terminate-Cause":  {49, kindInteger},
	"NAS-Port-Type":         {61, kindInteger},
	"Framed-IPv6-Prefix":    {97, kindIPv6Prefix},
	"Delegated-IPv6-Prefix": {123, kindIPv6Prefix},
}

// lookup returns the wire type and kind for a known attribute name, or
// (0, kindOctets, false) for anything outside the built-in table. Every
// caller skips an attribute whose lookup reports false.
func lookup(name string) (radius.Type, kind, bool) {
	def, ok := builtin[name]
	if !ok {
		return 0, kindOctets, false
	}
	return def.typ, def.kind, true
}

// nameForType is the reverse of lookup, used when decoding an inbound
// packet into a request.Packet keyed by attribute name.
func nameForType(t radius.Type) (string, bool) {
	for name, def := range builtin {
		if def.typ == t {
			return name, true
		}
	}
	return "", false
}
