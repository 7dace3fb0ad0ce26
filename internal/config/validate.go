package config

import (
	"fmt"
	"net"
	"regexp"
)

// ValidationError accumulates every violation found while validating a
// Config, each tagged with the dotted path to the offending key, rather
// than failing fast on the first one found.
type ValidationError struct {
	Violations []Violation
}

// Violation is one configuration-schema failure.
type Violation struct {
	Path    string
	Message string
}

func (e *ValidationError) add(path, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "no violations"
	}
	msg := fmt.Sprintf("%d configuration violation(s):", len(e.Violations))
	for _, v := range e.Violations {
		msg += fmt.Sprintf("\n  %s: %s", v.Path, v.Message)
	}
	return msg
}

var authCodes = map[uint8]bool{2: true, 3: true, 11: true}
var acctCodes = map[uint8]bool{5: true}

// Validate checks every structural constraint a config file must satisfy
// and returns a non-nil *ValidationError (implementing error) naming every
// violation found, or nil if the config is well-formed.
func Validate(c *Config) error {
	errs := &ValidationError{}

	if len(c.AddressPools) == 0 {
		errs.add("address_pools", "must declare at least one pool")
	}
	for name, pool := range c.AddressPools {
		path := fmt.Sprintf("address_pools.%s", name)
		validateCIDRList(errs, path+".ipv4", pool.IPv4, false)
		validateCIDRList(errs, path+".ipv6", pool.IPv6, true)
		validateCIDRList(errs, path+".ipv6_delegated", pool.IPv6Delegated, true)
		if len(pool.IPv4) == 0 && len(pool.IPv6) == 0 && len(pool.IPv6Delegated) == 0 {
			errs.add(path, "pool has no ipv4, ipv6, or ipv6_delegated entries")
		}
	}

	for i, g := range c.PoolMatchRules {
		validateRuleGroup(errs, fmt.Sprintf("pool_match_rules.%d", i), g)
	}

	if len(c.ReplyMatchRules.Auth) == 0 {
		errs.add("reply_match_rules.auth", "must declare at least one rule")
	}
	for i, g := range c.ReplyMatchRules.Auth {
		validateRuleGroup(errs, fmt.Sprintf("reply_match_rules.auth.%d", i), g)
	}
	if len(c.ReplyMatchRules.Acct) == 0 {
		errs.add("reply_match_rules.acct", "must declare at least one rule")
	}
	for i, g := range c.ReplyMatchRules.Acct {
		validateRuleGroup(errs, fmt.Sprintf("reply_match_rules.acct.%d", i), g)
	}

	for name, r := range c.ReplyDefinitions.Auth {
		if !authCodes[r.Code] {
			errs.add(fmt.Sprintf("reply_definitions.auth.%s.code", name), "must be 2, 3, or 11, got %d", r.Code)
		}
	}
	for name, r := range c.ReplyDefinitions.Acct {
		if !acctCodes[r.Code] {
			errs.add(fmt.Sprintf("reply_definitions.acct.%s.code", name), "must be 5, got %d", r.Code)
		}
	}

	validateAttrList(errs, "redis_storage.auth", c.RedisStorage.Auth)
	validateAttrList(errs, "redis_storage.acct", c.RedisStorage.Acct)
	validateAttrList(errs, "redis_storage.coa", c.RedisStorage.CoA)
	validateAttrList(errs, "redis_storage.disc", c.RedisStorage.Disc)

	if len(errs.Violations) == 0 {
		return nil
	}
	return errs
}

func validateAttrList(errs *ValidationError, path string, list []string) {
	if len(list) == 0 {
		errs.add(path, "must be non-empty")
	}
}

func validateCIDRList(errs *ValidationError, path string, cidrs []string, wantV6 bool) {
	for i, c := range cidrs {
		ip, _, err := net.ParseCIDR(c)
		if err != nil {
			errs.add(fmt.Sprintf("%s.%d", path, i), "not a valid CIDR: %v", err)
			continue
		}
		isV6 := ip.To4() == nil
		if isV6 != wantV6 {
			want, got := "IPv4", "IPv6"
			if wantV6 {
				want, got = got, want
			}
			errs.add(fmt.Sprintf("%s.%d", path, i), "expected an %s CIDR, got an %s address (%s)", want, got, c)
		}
	}
}

var attrNamePattern = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

func validateRuleGroup(errs *ValidationError, path string, g RuleGroup) {
	if g.Target == "" {
		errs.add(path, "rule group has no target key")
	}
	if len(g.extraKeys) > 0 {
		errs.add(path, "rule group has more than one top-level key: %v (first: %s)", g.extraKeys, g.Target)
	}
	for i, pred := range g.Predicates {
		for attr, pattern := range pred {
			if !attrNamePattern.MatchString(attr) {
				errs.add(fmt.Sprintf("%s.predicates.%d", path, i), "invalid attribute name %q", attr)
				continue
			}
			if _, err := regexp.Compile(pattern); err != nil {
				errs.add(fmt.Sprintf("%s.predicates.%d.%s", path, i, attr), "invalid regex %q: %v", pattern, err)
			}
		}
	}
}
