package cli

import (
	"fmt"
	"time"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
)

// History lists recent synchronization runs recorded in the local run log.
type History struct {
	Limit int `default:"20" help:"Maximum number of runs to list."`
}

// Run the history command.
func (c *History) Run(appCtx *actx.Context) error {
	hlog, err := openHistory(appCtx)
	if err != nil {
		return err
	}
	defer hlog.Close() //nolint:errcheck // Nothing left to do about it.

	recs, err := hlog.List(appCtx.Ctx, c.Limit)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Fprintln(appCtx.Stdout, "No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		prev := rec.PreviousIP
		if prev == "" {
			prev = "-"
		}
		cur := rec.CurrentIP
		if cur == "" {
			cur = "-"
		}
		rows = append(rows, []string{
			rec.FinishedAt.Local().Format(time.DateTime),
			rec.RunID,
			string(rec.Outcome),
			prev,
			cur,
			rec.Error,
		})
	}

	err = renderTable(
		[]string{"FINISHED", "RUN ID", "OUTCOME", "PREVIOUS IP", "CURRENT IP", "ERROR"},
		rows, appCtx.Stdout,
	)
	if err != nil {
		return fmt.Errorf("failed rendering history: %w", err)
	}

	return nil
}
