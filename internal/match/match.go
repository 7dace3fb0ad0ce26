// Package match implements the ordered, first-match regex rule engine
// used for both pool selection and reply selection: a small constructor
// that validates rule shape up front, and plain wrapped errors for any
// rule that fails to compile.
package match

import (
	"fmt"
	"regexp"

	"github.com/lion7/radiusd/internal/config"
	"github.com/lion7/radiusd/internal/request"
)

// Rule is one compiled {target: predicates} group. An empty Predicates
// list is a catch-all that matches unconditionally.
type Rule struct {
	Target     string
	Predicates []compiledPredicate
}

type compiledPredicate map[string]*regexp.Regexp

// Engine evaluates an ordered list of Rules against a request.Packet.
type Engine struct {
	rules []Rule
}

// NewEngine compiles groups into an Engine. config.Validate already rejects
// a rule group with more than one top-level key before this is reached;
// NewEngine repeats the missing-target and invalid-regex checks so that
// rule groups which never went through Validate still fail cleanly.
func NewEngine(groups []config.RuleGroup) (*Engine, error) {
	e := &Engine{}
	for i, g := range groups {
		if g.Target == "" {
			return nil, fmt.Errorf("rule %d: missing target", i)
		}
		rule := Rule{Target: g.Target}
		for _, pred := range g.Predicates {
			compiled := make(compiledPredicate, len(pred))
			for attr, pattern := range pred {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("rule %d (%s): invalid regex for %s: %w", i, g.Target, attr, err)
				}
				compiled[attr] = re
			}
			rule.Predicates = append(rule.Predicates, compiled)
		}
		e.rules = append(e.rules, rule)
	}
	return e, nil
}

// Select returns the target of the first rule that matches req, or
// defaultTarget if no rule matches. A rule matches if any one of its
// predicates matches (OR); a predicate matches if every attr/pattern pair
// within it matches (AND), using unanchored substring search semantics
// equivalent to ECMAScript's .search.
func (e *Engine) Select(req request.Packet, defaultTarget string) string {
	for _, rule := range e.rules {
		if len(rule.Predicates) == 0 {
			return rule.Target
		}
		for _, pred := range rule.Predicates {
			if predicateMatches(req, pred) {
				return rule.Target
			}
		}
	}
	return defaultTarget
}

func predicateMatches(req request.Packet, pred compiledPredicate) bool {
	for attr, re := range pred {
		value, ok := request.First(req, attr)
		if !ok {
			return false
		}
		if !re.MatchString(value) {
			return false
		}
	}
	return true
}
