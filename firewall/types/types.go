// Package types contains the generic firewall types and interfaces used
// throughout the application. These are defined separately from the main
// firewall package so that packages that use firewall functionality don't
// need to depend on a specific provider implementation.
package types

import (
	"context"
	"net/netip"
	"slices"
)

// Rule directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Rule protocols.
const (
	ProtocolTCP  = "tcp"
	ProtocolUDP  = "udp"
	ProtocolICMP = "icmp"
)

// PortAny matches any destination port.
const PortAny = "any"

// Rule is a single firewall rule as held by the remote provider. All fields
// are carried verbatim, including ones this application never sets, so that
// a full-replace apply never drops data of unrelated rules.
type Rule struct {
	Direction      string   `json:"direction"`
	SourceIPs      []string `json:"source_ips,omitempty"`
	DestinationIPs []string `json:"destination_ips,omitempty"`
	Port           string   `json:"port,omitempty"`
	Protocol       string   `json:"protocol"`
	Description    string   `json:"description,omitempty"`
}

// Equal reports whether both rules are identical in all fields.
func (r Rule) Equal(other Rule) bool {
	return r.Direction == other.Direction &&
		r.Protocol == other.Protocol &&
		r.Port == other.Port &&
		r.Description == other.Description &&
		slices.Equal(r.SourceIPs, other.SourceIPs) &&
		slices.Equal(r.DestinationIPs, other.DestinationIPs)
}

// AllowsSource reports whether the given CIDR string is a member of the
// rule's source IPs. Matching is on the exact string form, the same way the
// provider stores it.
func (r Rule) AllowsSource(cidr string) bool {
	return slices.Contains(r.SourceIPs, cidr)
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	c := r
	c.SourceIPs = slices.Clone(r.SourceIPs)
	c.DestinationIPs = slices.Clone(r.DestinationIPs)
	return c
}

// RuleSet is the ordered sequence of rules held by one firewall resource.
type RuleSet []Rule

// Clone returns a deep copy of the rule set.
func (rs RuleSet) Clone() RuleSet {
	if rs == nil {
		return nil
	}
	c := make(RuleSet, len(rs))
	for i, r := range rs {
		c[i] = r.Clone()
	}
	return c
}

// Contains reports whether the rule set contains a rule equal to r.
func (rs RuleSet) Contains(r Rule) bool {
	return slices.ContainsFunc(rs, r.Equal)
}

// Template describes the single tracked allow-rule this application owns.
// The source IPs are filled in at reconciliation time with the current
// public address.
type Template struct {
	Direction   string
	Protocol    string
	Port        string
	Description string
}

// DefaultTemplate returns the tracked-rule template used unless configured
// otherwise: allow inbound TCP on any port.
func DefaultTemplate() Template {
	return Template{
		Direction: DirectionIn,
		Protocol:  ProtocolTCP,
		Port:      PortAny,
	}
}

// Rule constructs a concrete rule for the given host prefix.
func (t Template) Rule(ip netip.Prefix) Rule {
	return Rule{
		Direction:   t.Direction,
		Protocol:    t.Protocol,
		Port:        t.Port,
		SourceIPs:   []string{ip.String()},
		Description: t.Description,
	}
}

// Provider is the interface to a remote firewall resource. Implementations
// are bound to a single firewall at construction.
type Provider interface {
	// Rules fetches the current rule set of the firewall resource.
	Rules(ctx context.Context) (RuleSet, error)

	// SetRules replaces the entire rule set of the firewall resource. The
	// remote API applies the whole set transactionally.
	SetRules(ctx context.Context, rules RuleSet) error
}
