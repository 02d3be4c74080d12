package cli

import (
	"fmt"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
)

// Rules lists the current rules of the remote firewall.
type Rules struct{}

// Run the rules command.
func (c *Rules) Run(appCtx *actx.Context) error {
	provider, err := newProvider(appCtx)
	if err != nil {
		return err
	}

	rules, err := provider.Rules(appCtx.Ctx)
	if err != nil {
		return err
	}

	if len(rules) == 0 {
		fmt.Fprintln(appCtx.Stdout, "The firewall has no rules.")
		return nil
	}

	if err = renderTable(ruleHeader, ruleRows(rules), appCtx.Stdout); err != nil {
		return fmt.Errorf("failed rendering rules: %w", err)
	}

	return nil
}
