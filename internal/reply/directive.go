// Package reply implements the reply-attribute directive language: literal
// pass-through, "-> fromPool", "-> fromUuid", and
// "-> fromRequest.<Attr>[.transform]". The grammar is regex-checked and
// never evaluated as code: widening it means adding a new recognized
// pattern here, not an eval escape hatch.
package reply

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lion7/radiusd/internal/request"
)

const directivePrefix = "-> "

// Pools is the subset of pool.Runtime capabilities the reply builder
// needs to evaluate a fromPool directive.
type Pools interface {
	AllocateIPv4() (string, bool)
	AllocateIPv6() (string, bool)
	AllocateIPv6Delegated() (string, bool)
}

// DirectiveError is returned for any directive evaluation failure. Its
// Error() text is the canonical message placed verbatim into a
// Reply-Message attribute, so Build never needs to reformat it.
type DirectiveError struct {
	msg string
}

func (e *DirectiveError) Error() string { return e.msg }

func errPoolExhausted() error {
	return &DirectiveError{msg: "IP Address in pool is exhausted"}
}

func errPoolMissing() error {
	return &DirectiveError{msg: "pool missing"}
}

func errMissingAttr(attr string) error {
	return &DirectiveError{msg: fmt.Sprintf("missing avp %s in incoming request", attr)}
}

func errUnsupportedTransform(suffix string) error {
	return &DirectiveError{msg: fmt.Sprintf("unsupported transform '%s' (eval is disabled)", suffix)}
}

func errUnknownDirective(directive string) error {
	return &DirectiveError{msg: fmt.Sprintf("unknown directive '%s'", directive)}
}

var fromRequestPattern = regexp.MustCompile(`^fromRequest\.([A-Za-z0-9\-_]+)(.*)$`)
var splitPattern = regexp.MustCompile(`^\.split\((['"])(.*)['"]\)\[(-?\d+)]$`)

// Build evaluates template in declared order against req and an optional
// pool (nil is valid: the builder tolerates a missing pool for requests
// whose template never references fromPool). It returns the materialized
// attribute map, or, on the first directive failure, a map holding only a
// Reply-Message with the failure text together with the DirectiveError
// describing it — the caller decides how to turn that into
// a reply (Access-Reject for auth; accounting templates never use
// directives, so this path is never invoked for acct).
func Build(req request.Packet, template *request.OrderedMap, pool Pools) (*request.OrderedMap, error) {
	out := request.NewOrderedMap()
	for _, name := range template.Keys() {
		raw, _ := template.Get(name)
		value, err := evaluate(name, raw, req, pool)
		if err != nil {
			return errorAttrs(err), err
		}
		out.Set(name, value)
	}
	return out, nil
}

func errorAttrs(err error) *request.OrderedMap {
	out := request.NewOrderedMap()
	out.Set("Reply-Message", err.Error())
	return out
}

func evaluate(name string, raw any, req request.Packet, pool Pools) (any, error) {
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, directivePrefix) {
		return raw, nil
	}
	directive := strings.TrimPrefix(s, directivePrefix)

	switch {
	case directive == "fromUuid":
		return uuid.New().String(), nil

	case directive == "fromPool":
		return fromPool(name, pool)

	case strings.HasPrefix(directive, "fromRequest."):
		return fromRequest(directive, req)

	default:
		return nil, errUnknownDirective(directive)
	}
}

func fromPool(name string, pool Pools) (string, error) {
	if pool == nil {
		return "", errPoolMissing()
	}
	var (
		val string
		ok  bool
	)
	switch name {
	case "Framed-IP-Address":
		val, ok = pool.AllocateIPv4()
	case "Framed-IPv6-Prefix":
		val, ok = pool.AllocateIPv6()
	case "Delegated-IPv6-Prefix":
		val, ok = pool.AllocateIPv6Delegated()
	default:
		return "", &DirectiveError{msg: fmt.Sprintf("fromPool is not supported for attribute %s", name)}
	}
	if !ok {
		return "", errPoolExhausted()
	}
	return val, nil
}

func fromRequest(directive string, req request.Packet) (string, error) {
	m := fromRequestPattern.FindStringSubmatch(directive)
	if m == nil {
		return "", errUnsupportedTransform(directive)
	}
	attr, suffix := m[1], m[2]

	value, ok := request.First(req, attr)
	if !ok {
		return "", errMissingAttr(attr)
	}

	switch {
	case suffix == "":
		return value, nil
	case suffix == ".lower()":
		return strings.ToLower(value), nil
	case suffix == ".upper()":
		return strings.ToUpper(value), nil
	default:
		if sm := splitPattern.FindStringSubmatch(suffix); sm != nil {
			sep := sm[2]
			idx, err := strconv.Atoi(sm[3])
			if err != nil {
				return "", errUnsupportedTransform(suffix)
			}
			return splitIndex(value, sep, idx)
		}
		return "", errUnsupportedTransform(suffix)
	}
}

func splitIndex(value, sep string, idx int) (string, error) {
	parts := strings.Split(value, sep)
	n := len(parts)
	i := idx
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return "", &DirectiveError{msg: fmt.Sprintf("split index out of range for value '%s'", value)}
	}
	return parts[i], nil
}
