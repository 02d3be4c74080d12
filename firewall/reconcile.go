// Package firewall implements the reconciliation of a remote firewall's
// rule set against the operator's current public IP address: the pure rule
// diffing, the match policies that decide which rules belong to a stale
// address, and the Runner that sequences a full synchronization run.
package firewall

import (
	"net/netip"

	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// MatchPolicy decides whether a rule belongs to the given tracked address
// and should be removed when that address goes stale.
type MatchPolicy func(r types.Rule, ip netip.Prefix) bool

// MatchSourceIP matches any rule whose source IPs contain the address,
// regardless of direction, protocol or port. This is deliberately coarse: a
// rule allowing the stale address alongside other addresses, or for an
// unrelated port, is still dropped.
func MatchSourceIP(r types.Rule, ip netip.Prefix) bool {
	return r.AllowsSource(ip.String())
}

// MatchTrackedRule returns a stricter policy that only matches rules whose
// direction, protocol and port equal the template's, in addition to the
// source IP membership.
func MatchTrackedRule(tmpl types.Template) MatchPolicy {
	return func(r types.Rule, ip netip.Prefix) bool {
		return r.AllowsSource(ip.String()) &&
			r.Direction == tmpl.Direction &&
			r.Protocol == tmpl.Protocol &&
			r.Port == tmpl.Port
	}
}

// Reconcile computes the rule set that reflects the current address: every
// rule matching the previous address is removed (only when a previous
// address exists and differs from the current one), and a fresh rule built
// from the template is appended. The relative order of untouched rules is
// preserved.
//
// last may be the zero Prefix, meaning no address was tracked before (first
// run). A nil match falls back to MatchSourceIP.
//
// No deduplication is performed against pre-existing rules for the current
// address; re-running after a partial prior failure therefore yields two
// equivalent rules. Callers that want to avoid this should check
// rules.Contains(tmpl.Rule(current)) beforehand (see Runner's SkipUnchanged
// option).
func Reconcile(
	rules types.RuleSet, last, current netip.Prefix, tmpl types.Template, match MatchPolicy,
) types.RuleSet {
	if match == nil {
		match = MatchSourceIP
	}

	next := make(types.RuleSet, 0, len(rules)+1)
	for _, r := range rules {
		if last.IsValid() && last != current && match(r, last) {
			continue
		}
		next = append(next, r)
	}

	return append(next, tmpl.Rule(current))
}
