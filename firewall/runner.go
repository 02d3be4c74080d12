package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// Outcome is the terminal state of a synchronization run.
type Outcome string

// All run outcomes. Succeeded, Unchanged, Declined and DryRun map to a zero
// exit code; Failed maps to a non-zero one.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDeclined  Outcome = "declined"
	OutcomeDryRun    Outcome = "dry-run"
	OutcomeFailed    Outcome = "failed"
)

// IPResolver obtains the caller's current public address.
type IPResolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// StateStore persists the last tracked IP address between runs.
type StateStore interface {
	// Last returns the previously tracked address. ok is false on the first
	// run, which is not an error.
	Last() (ip netip.Addr, ok bool, err error)
	// SetLast records the given address as the tracked one.
	SetLast(ip netip.Addr) error
}

// Notifier reports a run's outcome to the operator.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Recorder persists run records, e.g. to a local history log.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// ConfirmFunc is asked for approval before a computed rule set is applied.
// Returning false aborts the run without any mutation.
type ConfirmFunc func(current, next types.RuleSet) (bool, error)

// RunRecord describes a finished run for recording purposes.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	PreviousIP string
	CurrentIP  string
	Changed    bool
	Error      string
}

// Result is the outcome of a single synchronization run.
type Result struct {
	RunID      string
	Outcome    Outcome
	PreviousIP netip.Addr // zero on the first run
	CurrentIP  netip.Addr
	Rules      types.RuleSet // the computed rule set, for dry runs
}

// Runner sequences a single synchronization run: resolve the current public
// IP, fetch the remote rule set, reconcile, apply, persist the new tracked
// address and notify the operator. It is not reentrant-safe; overlapping
// invocations racing on the state file and the remote rule set are excluded
// by the intended cron-style invocation model.
type Runner struct {
	provider types.Provider
	resolver IPResolver
	store    StateStore
	notifier Notifier
	recorder Recorder
	confirm  ConfirmFunc

	template      types.Template
	match         MatchPolicy
	timeout       time.Duration
	skipUnchanged bool
	dryRun        bool
	newRunID      func() string
	timeNow       func() time.Time
	logger        *slog.Logger
}

// NewRunner returns a new Runner instance.
func NewRunner(
	provider types.Provider, resolver IPResolver, store StateStore, opts ...RunnerOption,
) (*Runner, error) {
	if provider == nil {
		return nil, fmt.Errorf("firewall provider is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("IP resolver is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}

	r := &Runner{provider: provider, resolver: resolver, store: store}

	opts = append(DefaultRunnerOptions(), opts...)
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Run executes one synchronization run. The returned Result is non-nil even
// on failure, so callers can inspect the terminal state.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: r.newRunID(), Outcome: OutcomeFailed}
	started := r.timeNow()
	logger := r.logger.With("run_id", res.RunID)

	runErr := r.run(ctx, res, logger)

	rec := RunRecord{
		RunID:      res.RunID,
		StartedAt:  started,
		FinishedAt: r.timeNow(),
		Outcome:    res.Outcome,
		Changed:    res.Outcome == OutcomeSucceeded,
	}
	if res.PreviousIP.IsValid() {
		rec.PreviousIP = res.PreviousIP.String()
	}
	if res.CurrentIP.IsValid() {
		rec.CurrentIP = res.CurrentIP.String()
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if r.recorder != nil {
		if err := r.recorder.Record(ctx, rec); err != nil {
			logger.Warn("failed recording run history", "error", err)
		}
	}

	return res, runErr
}

func (r *Runner) run(ctx context.Context, res *Result, logger *slog.Logger) error {
	// ResolvingIP: a failure here is fatal to the run, with no remote or
	// local mutation, so the next scheduled run can safely retry.
	current, err := r.remoteAddr(ctx)
	if err != nil {
		logger.Error("failed resolving current public IP", "error", err)
		return err
	}
	res.CurrentIP = current
	currentPrefix := netip.PrefixFrom(current, current.BitLen())
	logger = logger.With("current_ip", currentPrefix.String())

	last, tracked, err := r.store.Last()
	if err != nil {
		logger.Error("failed reading tracked IP state", "error", err)
		return err
	}
	var lastPrefix netip.Prefix
	if tracked {
		res.PreviousIP = last
		lastPrefix = netip.PrefixFrom(last, last.BitLen())
		logger = logger.With("previous_ip", lastPrefix.String())
	}

	// FetchingRules: same guarantee as above.
	fetched, err := r.fetchRules(ctx)
	if err != nil {
		logger.Error("failed fetching remote rule set", "error", err)
		return err
	}
	logger.Debug("fetched remote rule set", "rules", len(fetched))

	target := r.template.Rule(currentPrefix)
	if r.skipUnchanged && tracked && last == current && fetched.Contains(target) {
		logger.Info("tracked IP unchanged and rule present, nothing to do")
		res.Outcome = OutcomeUnchanged
		res.Rules = fetched
		return nil
	}

	// Reconciling is purely structural and cannot fail.
	next := Reconcile(fetched, lastPrefix, currentPrefix, r.template, r.match)
	res.Rules = next

	if r.dryRun {
		logger.Info("dry run, not applying computed rule set", "rules", len(next))
		res.Outcome = OutcomeDryRun
		return nil
	}

	if r.confirm != nil {
		proceed, err := r.confirm(fetched, next)
		if err != nil {
			return err
		}
		if !proceed {
			logger.Info("update declined by operator, no changes applied")
			res.Outcome = OutcomeDeclined
			return nil
		}
	}

	// Applying: a failure triggers a best-effort restore of the
	// pre-reconciliation rule set, and the tracked IP is left untouched so
	// the next run retries the same transition.
	if err = r.applyRules(ctx, next); err != nil {
		logger.Error("failed applying rule set, restoring previous rules", "error", err)
		if rerr := r.applyRules(ctx, fetched); rerr != nil {
			logger.Error("failed restoring previous rule set", "error", rerr)
		}
		r.notify(ctx, logger,
			"Firewall rules update failed",
			fmt.Sprintf("Updating the firewall allow-rule to %s failed (run %s): %v\nThe previous rule set was restored on a best-effort basis.",
				currentPrefix, res.RunID, err),
		)
		return err
	}
	logger.Info("applied rule set", "rules", len(next))

	// Persist before notifying: losing the notification is tolerable,
	// losing the recorded state is not.
	if err = r.store.SetLast(current); err != nil {
		logger.Error("rules applied but failed persisting tracked IP; next run will re-converge",
			"error", err)
		return err
	}

	r.notify(ctx, logger,
		"Firewall rules updated",
		fmt.Sprintf("The firewall allow-rule now grants access to %s (run %s).", currentPrefix, res.RunID),
	)

	res.Outcome = OutcomeSucceeded
	return nil
}

func (r *Runner) remoteAddr(ctx context.Context) (netip.Addr, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.resolver.Resolve(rctx)
}

func (r *Runner) fetchRules(ctx context.Context) (types.RuleSet, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.provider.Rules(rctx)
}

func (r *Runner) applyRules(ctx context.Context, rules types.RuleSet) error {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.provider.SetRules(rctx, rules)
}

// notify sends a notification on a best-effort basis. A failure to notify is
// logged, never escalated.
func (r *Runner) notify(ctx context.Context, logger *slog.Logger, subject, body string) {
	if r.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.notifier.Notify(nctx, subject, body); err != nil {
		logger.Warn("failed sending notification", "subject", subject, "error", err)
	}
}
