package firewall_test

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botsarefuture/hetzner-firewall/firewall"
	"github.com/botsarefuture/hetzner-firewall/firewall/mock"
	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

type stubResolver struct {
	addr  netip.Addr
	err   error
	calls int
}

func (r *stubResolver) Resolve(_ context.Context) (netip.Addr, error) {
	r.calls++
	if r.err != nil {
		return netip.Addr{}, r.err
	}
	return r.addr, nil
}

type memStore struct {
	addr     netip.Addr
	tracked  bool
	readErr  error
	writeErr error
	writes   []netip.Addr
}

func (s *memStore) Last() (netip.Addr, bool, error) {
	if s.readErr != nil {
		return netip.Addr{}, false, s.readErr
	}
	return s.addr, s.tracked, nil
}

func (s *memStore) SetLast(ip netip.Addr) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, ip)
	s.addr, s.tracked = ip, true
	return nil
}

type stubNotifier struct {
	subjects []string
	err      error
}

func (n *stubNotifier) Notify(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return n.err
}

type stubRecorder struct {
	recs []firewall.RunRecord
}

func (r *stubRecorder) Record(_ context.Context, rec firewall.RunRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func newTestRunner(
	t *testing.T, provider types.Provider, resolver *stubResolver, store *memStore,
	extra ...firewall.RunnerOption,
) *firewall.Runner {
	t.Helper()

	opts := []firewall.RunnerOption{
		firewall.WithLogger(slog.New(slog.DiscardHandler)),
		firewall.WithRunID(func() string { return "test-run" }),
		firewall.WithTimeNow(timeNowFn),
	}
	opts = append(opts, extra...)

	runner, err := firewall.NewRunner(provider, resolver, store, opts...)
	require.NoError(t, err)

	return runner
}

func TestNewRunner(t *testing.T) {
	t.Parallel()

	provider := mock.New(nil)
	resolver := &stubResolver{addr: netip.MustParseAddr("1.2.3.4")}
	store := &memStore{}

	tests := []struct {
		name     string
		provider types.Provider
		resolver firewall.IPResolver
		store    firewall.StateStore
		expErr   string
	}{
		{name: "ok/valid", provider: provider, resolver: resolver, store: store},
		{name: "err/nil_provider", resolver: resolver, store: store, expErr: "firewall provider is required"},
		{name: "err/nil_resolver", provider: provider, store: store, expErr: "IP resolver is required"},
		{name: "err/nil_store", provider: provider, resolver: resolver, expErr: "state store is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner, err := firewall.NewRunner(tt.provider, tt.resolver, tt.store)

			if tt.expErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expErr)
				assert.Nil(t, runner)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, runner)
			}
		})
	}
}

func TestRunnerFirstRun(t *testing.T) {
	t.Parallel()

	ssh := types.Rule{
		Direction: types.DirectionIn, Protocol: types.ProtocolTCP,
		Port: "22", SourceIPs: []string{"9.9.9.9/32"},
	}
	provider := mock.New(types.RuleSet{ssh})
	resolver := &stubResolver{addr: netip.MustParseAddr("1.2.3.4")}
	store := &memStore{}
	notifier := &stubNotifier{}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeSucceeded, res.Outcome)
	assert.False(t, res.PreviousIP.IsValid())
	assert.Equal(t, "1.2.3.4", res.CurrentIP.String())
	assert.Equal(t, types.RuleSet{ssh, allowRule("1.2.3.4/32")}, provider.Current())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("1.2.3.4")}, store.writes)
	assert.Equal(t, []string{"Firewall rules updated"}, notifier.subjects)
}

func TestRunnerChangedIP(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}
	recorder := &stubRecorder{}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithRecorder(recorder))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "1.2.3.4", res.PreviousIP.String())
	assert.Equal(t, types.RuleSet{allowRule("5.6.7.8/32")}, provider.Current())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("5.6.7.8")}, store.writes)

	require.Len(t, recorder.recs, 1)
	rec := recorder.recs[0]
	assert.Equal(t, "test-run", rec.RunID)
	assert.Equal(t, firewall.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, "1.2.3.4", rec.PreviousIP)
	assert.Equal(t, "5.6.7.8", rec.CurrentIP)
	assert.True(t, rec.Changed)
	assert.Equal(t, timeNow, rec.StartedAt)
}

func TestRunnerUnchangedIPAppendsAgain(t *testing.T) {
	t.Parallel()

	// Without the skip-unchanged guard the historical behavior is kept: the
	// rule is appended again even though an equivalent one already exists.
	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	resolver := &stubResolver{addr: netip.MustParseAddr("1.2.3.4")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}

	runner := newTestRunner(t, provider, resolver, store)

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeSucceeded, res.Outcome)
	assert.Equal(t,
		types.RuleSet{allowRule("1.2.3.4/32"), allowRule("1.2.3.4/32")},
		provider.Current())
}

func TestRunnerSkipUnchanged(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	resolver := &stubResolver{addr: netip.MustParseAddr("1.2.3.4")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}
	notifier := &stubNotifier{}

	runner := newTestRunner(t, provider, resolver, store,
		firewall.WithSkipUnchanged(true), firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeUnchanged, res.Outcome)
	assert.Empty(t, provider.SetRulesCalls)
	assert.Empty(t, store.writes)
	assert.Empty(t, notifier.subjects)
}

func TestRunnerSkipUnchangedMissingRule(t *testing.T) {
	t.Parallel()

	// The guard only applies when the target rule actually exists remotely;
	// a missing rule must still be converged.
	provider := mock.New(types.RuleSet{})
	resolver := &stubResolver{addr: netip.MustParseAddr("1.2.3.4")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithSkipUnchanged(true))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, types.RuleSet{allowRule("1.2.3.4/32")}, provider.Current())
}

func TestRunnerResolveFailure(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	resolver := &stubResolver{err: errors.New("lookup unreachable")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}
	recorder := &stubRecorder{}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithRecorder(recorder))

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "lookup unreachable")

	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	assert.Zero(t, provider.FetchCalls)
	assert.Empty(t, provider.SetRulesCalls)
	assert.Empty(t, store.writes)

	require.Len(t, recorder.recs, 1)
	assert.Equal(t, firewall.OutcomeFailed, recorder.recs[0].Outcome)
	assert.Contains(t, recorder.recs[0].Error, "lookup unreachable")
}

func TestRunnerFetchFailure(t *testing.T) {
	t.Parallel()

	provider := mock.New(nil)
	provider.FailFetch(errors.New("api down"))
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}

	runner := newTestRunner(t, provider, resolver, store)

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "api down")

	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	assert.Empty(t, provider.SetRulesCalls)
	assert.Empty(t, store.writes)
}

func TestRunnerApplyFailureRestores(t *testing.T) {
	t.Parallel()

	orig := types.RuleSet{allowRule("1.2.3.4/32")}
	provider := mock.New(orig)
	provider.FailApplyOnce(errors.New("set_rules rejected"))
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}
	notifier := &stubNotifier{}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "set_rules rejected")

	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	// First the computed set, then the best-effort restore of the
	// originally fetched set.
	require.Len(t, provider.SetRulesCalls, 2)
	assert.Equal(t, types.RuleSet{allowRule("5.6.7.8/32")}, provider.SetRulesCalls[0])
	assert.Equal(t, orig, provider.SetRulesCalls[1])
	// The tracked IP must stay at the old value so the next run retries.
	assert.Empty(t, store.writes)
	assert.Equal(t, []string{"Firewall rules update failed"}, notifier.subjects)
}

func TestRunnerApplyAndRestoreFailure(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	provider.FailApply(errors.New("api down"))
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}

	runner := newTestRunner(t, provider, resolver, store)

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "api down")

	// The restore failure is logged, not escalated; the run error is the
	// original apply failure.
	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	assert.Len(t, provider.SetRulesCalls, 2)
	assert.Empty(t, store.writes)
}

func TestRunnerStateWriteFailure(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{})
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{writeErr: errors.New("disk full")}
	notifier := &stubNotifier{}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "disk full")

	// The remote was updated, but the run must not claim success: the local
	// tracking is stale and the next run re-converges.
	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	assert.Equal(t, types.RuleSet{allowRule("5.6.7.8/32")}, provider.Current())
	assert.Empty(t, notifier.subjects)
}

func TestRunnerNotifyFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{})
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{}
	notifier := &stubNotifier{err: errors.New("smtp down")}

	runner := newTestRunner(t, provider, resolver, store, firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("5.6.7.8")}, store.writes)
}

func TestRunnerDryRun(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}
	notifier := &stubNotifier{}

	runner := newTestRunner(t, provider, resolver, store,
		firewall.WithDryRun(true), firewall.WithNotifier(notifier))

	res, err := runner.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, firewall.OutcomeDryRun, res.Outcome)
	assert.Equal(t, types.RuleSet{allowRule("5.6.7.8/32")}, res.Rules)
	assert.Empty(t, provider.SetRulesCalls)
	assert.Empty(t, store.writes)
	assert.Empty(t, notifier.subjects)
}

func TestRunnerConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		answer     bool
		expOutcome firewall.Outcome
		expApplied bool
	}{
		{name: "approved", answer: true, expOutcome: firewall.OutcomeSucceeded, expApplied: true},
		{name: "declined", answer: false, expOutcome: firewall.OutcomeDeclined, expApplied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := mock.New(types.RuleSet{allowRule("1.2.3.4/32")})
			resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
			store := &memStore{addr: netip.MustParseAddr("1.2.3.4"), tracked: true}

			var confirmedCurrent, confirmedNext types.RuleSet
			confirm := func(current, next types.RuleSet) (bool, error) {
				confirmedCurrent, confirmedNext = current, next
				return tt.answer, nil
			}

			runner := newTestRunner(t, provider, resolver, store, firewall.WithConfirm(confirm))

			res, err := runner.Run(t.Context())
			require.NoError(t, err)

			assert.Equal(t, tt.expOutcome, res.Outcome)
			assert.Equal(t, types.RuleSet{allowRule("1.2.3.4/32")}, confirmedCurrent)
			assert.Equal(t, types.RuleSet{allowRule("5.6.7.8/32")}, confirmedNext)

			if tt.expApplied {
				assert.Len(t, provider.SetRulesCalls, 1)
				assert.Len(t, store.writes, 1)
			} else {
				assert.Empty(t, provider.SetRulesCalls)
				assert.Empty(t, store.writes)
			}
		})
	}
}

func TestRunnerStateReadFailure(t *testing.T) {
	t.Parallel()

	provider := mock.New(types.RuleSet{})
	resolver := &stubResolver{addr: netip.MustParseAddr("5.6.7.8")}
	store := &memStore{readErr: errors.New("permission denied")}

	runner := newTestRunner(t, provider, resolver, store)

	res, err := runner.Run(t.Context())
	require.ErrorContains(t, err, "permission denied")

	assert.Equal(t, firewall.OutcomeFailed, res.Outcome)
	assert.Empty(t, provider.SetRulesCalls)
}
