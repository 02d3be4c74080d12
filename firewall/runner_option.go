package firewall

import (
	"log/slog"
	"time"

	"github.com/nrednav/cuid2"

	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// RunnerOption is a function that allows configuring the Runner.
type RunnerOption func(*Runner) error

// WithConfirm sets a confirmation hook invoked between reconciling and
// applying the computed rule set.
func WithConfirm(confirm ConfirmFunc) RunnerOption {
	return func(r *Runner) error {
		r.confirm = confirm
		return nil
	}
}

// WithDryRun stops the run after reconciling, without applying, persisting
// or notifying.
func WithDryRun(dryRun bool) RunnerOption {
	return func(r *Runner) error {
		r.dryRun = dryRun
		return nil
	}
}

// WithLogger sets the logger used by the Runner.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) error {
		r.logger = logger.With("component", "runner")
		return nil
	}
}

// WithMatchPolicy sets the policy deciding which rules belong to a stale
// address.
func WithMatchPolicy(match MatchPolicy) RunnerOption {
	return func(r *Runner) error {
		r.match = match
		return nil
	}
}

// WithNotifier sets the notifier informed of run outcomes.
func WithNotifier(notifier Notifier) RunnerOption {
	return func(r *Runner) error {
		r.notifier = notifier
		return nil
	}
}

// WithRecorder sets the recorder of run history.
func WithRecorder(recorder Recorder) RunnerOption {
	return func(r *Runner) error {
		r.recorder = recorder
		return nil
	}
}

// WithRunID sets the function generating run IDs.
func WithRunID(newRunID func() string) RunnerOption {
	return func(r *Runner) error {
		r.newRunID = newRunID
		return nil
	}
}

// WithSkipUnchanged makes the Runner short-circuit to a no-change success
// when the tracked IP is unchanged and the target rule is already present.
// Off by default, matching the historical always-append behavior.
func WithSkipUnchanged(skip bool) RunnerOption {
	return func(r *Runner) error {
		r.skipUnchanged = skip
		return nil
	}
}

// WithTemplate sets the tracked-rule template.
func WithTemplate(tmpl types.Template) RunnerOption {
	return func(r *Runner) error {
		r.template = tmpl
		return nil
	}
}

// WithTimeout sets the per-call timeout for remote operations.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) error {
		r.timeout = timeout
		return nil
	}
}

// WithTimeNow sets the function used to retrieve the current system time.
func WithTimeNow(timeNow func() time.Time) RunnerOption {
	return func(r *Runner) error {
		r.timeNow = timeNow
		return nil
	}
}

// DefaultRunnerOptions returns the default Runner options.
func DefaultRunnerOptions() []RunnerOption {
	return []RunnerOption{
		WithLogger(slog.Default()),
		WithMatchPolicy(MatchSourceIP),
		WithRunID(cuid2.Generate),
		WithTemplate(types.DefaultTemplate()),
		WithTimeNow(time.Now),
		WithTimeout(10 * time.Second),
	}
}
