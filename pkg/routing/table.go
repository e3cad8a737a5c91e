package routing

import (
	"context"
	"fmt"
	"sort"

	"github.com/moddash/bffgate/pkg/apierror"
)

// Table is the immutable set of route rules. Built once at startup; lookups
// require no locking because nothing mutates after NewTable returns.
type Table struct {
	// rules sorted by descending prefix length; equal lengths keep their
	// configuration order so the first-registered rule wins deterministically.
	rules []*RouteRule
}

// NewTable validates the rules, resolves each rule's upstream target, and
// freezes the result.
func NewTable(rules []RouteRule, resolver *Resolver) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("routing table is empty")
	}

	seen := make(map[string]struct{}, len(rules))
	ordered := make([]*RouteRule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		if err := rule.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[rule.PathPrefix]; dup {
			return nil, fmt.Errorf("route %q: duplicate pathPrefix", rule.PathPrefix)
		}
		seen[rule.PathPrefix] = struct{}{}

		target, err := resolver.Resolve(rule.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rule.PathPrefix, err)
		}
		rule.target = target
		if rule.Resource == "" {
			rule.Resource = "services"
		}
		ordered = append(ordered, &rule)
	}

	// Longest prefix first; SliceStable preserves configuration order for
	// equal lengths.
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].PathPrefix) > len(ordered[j].PathPrefix)
	})

	return &Table{rules: ordered}, nil
}

// Route selects the rule with the longest matching prefix and returns the
// rewritten path. No match fails with NoRouteMatched.
func (t *Table) Route(path string) (*RouteRule, string, error) {
	for _, rule := range t.rules {
		if rest, ok := rule.matches(path); ok {
			return rule, rule.rewrite(rest), nil
		}
	}
	return nil, "", apierror.Newf(apierror.KindNoRouteMatched,
		"no route matches path %s", path)
}

// Rules returns the rules in match-precedence order.
func (t *Table) Rules() []*RouteRule {
	return t.rules
}

// RouteLabel returns a bounded-cardinality label for metrics: the matched
// rule's prefix, or "unmatched".
func (t *Table) RouteLabel(path string) string {
	for _, rule := range t.rules {
		if _, ok := rule.matches(path); ok {
			return rule.PathPrefix
		}
	}
	return "unmatched"
}

// Ready reports table readiness for the readiness probe. A constructed table
// is always ready; the probe exists so startup ordering is observable.
func (t *Table) Ready(ctx context.Context) error {
	if len(t.rules) == 0 {
		return fmt.Errorf("routing table not loaded")
	}
	return nil
}
