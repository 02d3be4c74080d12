// Package mock contains an in-memory firewall provider used in tests.
package mock

import (
	"context"

	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// Provider is an in-memory implementation of types.Provider. It records
// every call so tests can assert on the exact sequence of rule-set writes.
type Provider struct {
	rules types.RuleSet

	fetchErr      error
	applyErr      error
	applyErrOnce  bool
	FetchCalls    int
	SetRulesCalls []types.RuleSet
}

var _ types.Provider = (*Provider)(nil)

// New returns a new Provider holding the given initial rule set.
func New(rules types.RuleSet) *Provider {
	return &Provider{rules: rules.Clone()}
}

// Rules implements types.Provider.
func (p *Provider) Rules(_ context.Context) (types.RuleSet, error) {
	p.FetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.rules.Clone(), nil
}

// SetRules implements types.Provider.
func (p *Provider) SetRules(_ context.Context, rules types.RuleSet) error {
	p.SetRulesCalls = append(p.SetRulesCalls, rules.Clone())
	if p.applyErr != nil {
		err := p.applyErr
		if p.applyErrOnce {
			p.applyErr = nil
		}
		return err
	}
	p.rules = rules.Clone()
	return nil
}

// Current returns the rule set currently held by the provider.
func (p *Provider) Current() types.RuleSet {
	return p.rules.Clone()
}

// FailFetch makes all subsequent Rules calls fail with err.
func (p *Provider) FailFetch(err error) {
	p.fetchErr = err
}

// FailApply makes all subsequent SetRules calls fail with err.
func (p *Provider) FailApply(err error) {
	p.applyErr = err
	p.applyErrOnce = false
}

// FailApplyOnce makes only the next SetRules call fail with err.
func (p *Provider) FailApplyOnce(err error) {
	p.applyErr = err
	p.applyErrOnce = true
}
