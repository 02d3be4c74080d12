package cli

import (
	"fmt"
	"net/netip"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// Status reports whether the firewall is in sync with the current public IP.
type Status struct{}

// Run the status command.
func (c *Status) Run(appCtx *actx.Context) error {
	provider, err := newProvider(appCtx)
	if err != nil {
		return err
	}

	current, err := newResolver(appCtx).Resolve(appCtx.Ctx)
	if err != nil {
		return err
	}

	last, tracked, err := newStore(appCtx).Last()
	if err != nil {
		return err
	}

	rules, err := provider.Rules(appCtx.Ctx)
	if err != nil {
		return err
	}

	target := types.DefaultTemplate().Rule(netip.PrefixFrom(current, current.BitLen()))
	rulePresent := rules.Contains(target)
	inSync := tracked && last == current && rulePresent

	trackedStr := "-"
	if tracked {
		trackedStr = last.String()
	}

	err = renderTable(
		[]string{"TRACKED IP", "CURRENT IP", "RULE PRESENT", "IN SYNC"},
		[][]string{{trackedStr, current.String(), yesNo(rulePresent), yesNo(inSync)}},
		appCtx.Stdout,
	)
	if err != nil {
		return fmt.Errorf("failed rendering status: %w", err)
	}

	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
