// Package config holds the validated, in-memory representation of a
// radiusd configuration file: address pools, reply templates, match
// rules, and the Redis dialog-store settings. Loading and validating a
// file is the only startup input the rest of the core needs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the top-level, validated configuration tree. Unknown keys
// anywhere reject the config (enforced in the loader, not here).
type Config struct {
	AddressPools     map[string]AddressPool `yaml:"address_pools" json:"address_pools"`
	ReplyDefinitions ReplyDefinitions       `yaml:"reply_definitions" json:"reply_definitions"`
	PoolMatchRules   []RuleGroup            `yaml:"pool_match_rules" json:"pool_match_rules"`
	ReplyMatchRules  ReplyMatchRules        `yaml:"reply_match_rules" json:"reply_match_rules"`
	RedisStorage     RedisStorageConfig     `yaml:"redis_storage" json:"redis_storage"`
}

// AddressPool is the declared shape of a named pool: the CIDRs it draws
// from, and whether its runtime sequences are shuffled at construction.
type AddressPool struct {
	Shuffle       bool     `yaml:"shuffle" json:"shuffle"`
	IPv4          []string `yaml:"ipv4" json:"ipv4"`
	IPv6          []string `yaml:"ipv6" json:"ipv6"`
	IPv6Delegated []string `yaml:"ipv6_delegated" json:"ipv6_delegated"`
}

// ReplyDefinitions holds the named reply templates for each packet family.
type ReplyDefinitions struct {
	Auth map[string]AuthReply `yaml:"auth" json:"auth"`
	Acct map[string]AcctReply `yaml:"acct" json:"acct"`
}

// AuthReply is a reply template for Access-Request packets. Code is
// constrained to 2 (Accept), 3 (Reject), 11 (Challenge).
type AuthReply struct {
	Code       uint8   `yaml:"code" json:"code"`
	Attributes AttrMap `yaml:"attributes" json:"attributes"`
}

// AcctReply is a reply template for Accounting-Request packets. Code is
// constrained to 5 (Accounting-Response). Templates are always literal:
// no directive expansion happens for accounting replies.
type AcctReply struct {
	Code       uint8   `yaml:"code" json:"code"`
	Attributes AttrMap `yaml:"attributes" json:"attributes"`
}

// ReplyMatchRules holds the ordered rule lists used to pick a reply
// template, one list per packet family.
type ReplyMatchRules struct {
	Auth []RuleGroup `yaml:"auth" json:"auth"`
	Acct []RuleGroup `yaml:"acct" json:"acct"`
}

// RuleGroup is a single-key map {target: predicates} decoded from either a
// pool_match_rules or reply_match_rules list entry. A group with more than
// one top-level key is a configuration error, surfaced by Validate rather
// than silently picking one key.
type RuleGroup struct {
	Target     string
	Predicates []Predicate

	// extraKeys records additional top-level keys seen while decoding, so
	// Validate can report the configuration error with the offending
	// path instead of the decoder silently dropping them.
	extraKeys []string
}

// Predicate is one AND-group of attr-name -> regex-pattern pairs. All
// pairs within a Predicate must match for the predicate to match; the
// predicates within a RuleGroup are OR'd together.
type Predicate map[string]string

// RedisStorageConfig describes the Redis connection, the dialog-store key
// prefix, and the attribute-name lists used to build persistence keys per
// packet code.
type RedisStorageConfig struct {
	Addr   string   `yaml:"addr" json:"addr"`
	Prefix string   `yaml:"prefix" json:"prefix"`
	Auth   []string `yaml:"auth" json:"auth"`
	Acct   []string `yaml:"acct" json:"acct"`
	CoA    []string `yaml:"coa" json:"coa"`
	Disc   []string `yaml:"disc" json:"disc"`
}

func (g *RuleGroup) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping with exactly one key, got kind %d", node.Kind)
	}
	*g = RuleGroup{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if g.Target != "" {
			g.extraKeys = append(g.extraKeys, key)
			continue
		}
		g.Target = key
		if err := node.Content[i+1].Decode(&g.Predicates); err != nil {
			return fmt.Errorf("decoding predicates for %q: %w", key, err)
		}
	}
	return nil
}

func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	*g = RuleGroup{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected a string key")
		}
		if g.Target != "" {
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return err
			}
			g.extraKeys = append(g.extraKeys, key)
			continue
		}
		g.Target = key
		if err := dec.Decode(&g.Predicates); err != nil {
			return fmt.Errorf("decoding predicates for %q: %w", key, err)
		}
	}
	return nil
}
