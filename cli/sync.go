package cli

import (
	"bufio"
	"fmt"
	"strings"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
	"github.com/botsarefuture/hetzner-firewall/firewall"
	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// Sync performs one synchronization run: it resolves the current public IP,
// swaps the stale allow-rule for a fresh one on the remote firewall, records
// the new tracked IP and notifies the operator.
type Sync struct {
	DryRun        bool `help:"Compute and print the new rule set without applying it."`
	Interactive   bool `help:"Ask for confirmation before applying the computed rule set."`
	SkipUnchanged bool `help:"Do nothing if the tracked IP is unchanged and its rule is already present."`
}

// Run the sync command.
func (c *Sync) Run(appCtx *actx.Context) error {
	provider, err := newProvider(appCtx)
	if err != nil {
		return err
	}

	opts := []firewall.RunnerOption{
		firewall.WithLogger(appCtx.Logger),
		firewall.WithTimeout(appCtx.Config.Lookup.Timeout),
		firewall.WithTimeNow(appCtx.TimeNow),
		firewall.WithDryRun(c.DryRun),
		firewall.WithSkipUnchanged(c.SkipUnchanged),
	}

	if notifier := newNotifier(appCtx); notifier != nil {
		opts = append(opts, firewall.WithNotifier(notifier))
	}

	if recorder, herr := openHistory(appCtx); herr != nil {
		// Run history is an audit convenience, never a reason to skip a sync.
		appCtx.Logger.Warn("run history unavailable", "error", herr)
	} else {
		defer recorder.Close() //nolint:errcheck // Nothing left to do about it.
		opts = append(opts, firewall.WithRecorder(recorder))
	}

	if c.Interactive {
		opts = append(opts, firewall.WithConfirm(c.confirm(appCtx)))
	}

	runner, err := firewall.NewRunner(provider, newResolver(appCtx), newStore(appCtx), opts...)
	if err != nil {
		return err
	}

	res, err := runner.Run(appCtx.Ctx)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case firewall.OutcomeDryRun:
		fmt.Fprintf(appCtx.Stdout, "Dry run. The following %d rules would be applied:\n", len(res.Rules))
		return renderTable(ruleHeader, ruleRows(res.Rules), appCtx.Stdout)
	case firewall.OutcomeUnchanged:
		fmt.Fprintf(appCtx.Stdout, "Already in sync: %s is allowed, nothing to do.\n", res.CurrentIP)
	case firewall.OutcomeDeclined:
		fmt.Fprintln(appCtx.Stdout, "Aborted, no changes were applied.")
	case firewall.OutcomeSucceeded:
		if res.PreviousIP.IsValid() && res.PreviousIP != res.CurrentIP {
			fmt.Fprintf(appCtx.Stdout, "Firewall updated: %s is now allowed (%s removed).\n",
				res.CurrentIP, res.PreviousIP)
		} else {
			fmt.Fprintf(appCtx.Stdout, "Firewall updated: %s is now allowed.\n", res.CurrentIP)
		}
	}

	return nil
}

// confirm returns the interactive approval hook: it prints the current and
// computed rule sets and asks the operator to proceed.
func (c *Sync) confirm(appCtx *actx.Context) firewall.ConfirmFunc {
	return func(current, next types.RuleSet) (bool, error) {
		fmt.Fprintln(appCtx.Stdout, "Current firewall rules:")
		if err := renderTable(ruleHeader, ruleRows(current), appCtx.Stdout); err != nil {
			return false, fmt.Errorf("failed rendering rules: %w", err)
		}
		fmt.Fprintln(appCtx.Stdout, "Rules after the update:")
		if err := renderTable(ruleHeader, ruleRows(next), appCtx.Stdout); err != nil {
			return false, fmt.Errorf("failed rendering rules: %w", err)
		}
		fmt.Fprint(appCtx.Stdout, "Do you want to proceed with this update? (yes/no): ")

		scanner := bufio.NewScanner(appCtx.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, fmt.Errorf("failed reading confirmation: %w", err)
			}
			return false, nil
		}

		return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes"), nil
	}
}

var ruleHeader = []string{"DIRECTION", "PROTOCOL", "PORT", "SOURCE IPS", "DESCRIPTION"}
