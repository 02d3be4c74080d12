package cli

import (
	"path/filepath"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
	"github.com/botsarefuture/hetzner-firewall/firewall/hetzner"
	"github.com/botsarefuture/hetzner-firewall/firewall/types"
	"github.com/botsarefuture/hetzner-firewall/history"
	"github.com/botsarefuture/hetzner-firewall/ipaddr"
	"github.com/botsarefuture/hetzner-firewall/notify"
	"github.com/botsarefuture/hetzner-firewall/state"
)

// Filenames within the data directory.
const (
	stateFileName   = "last_ip"
	historyFileName = "history.db"
)

func newProvider(appCtx *actx.Context) (*hetzner.Client, error) {
	if err := appCtx.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := appCtx.Config
	return hetzner.New(
		cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.FirewallID,
		cfg.Lookup.Timeout, appCtx.Logger,
	), nil
}

func newResolver(appCtx *actx.Context) *ipaddr.HTTPResolver {
	cfg := appCtx.Config
	return ipaddr.NewHTTPResolver(cfg.Lookup.URL, cfg.Lookup.Timeout, appCtx.Logger)
}

func newStore(appCtx *actx.Context) *state.FileStore {
	return state.NewFileStore(
		appCtx.FS, filepath.Join(appCtx.DataDir, stateFileName), appCtx.Logger)
}

// newNotifier assembles the configured notification channels. It returns nil
// if none are configured.
func newNotifier(appCtx *actx.Context) notify.Notifier {
	cfg := appCtx.Config

	var channels notify.Multi
	if cfg.EmailEnabled() {
		channels = append(channels, notify.NewEmail(
			cfg.Notify.SMTPHost, cfg.Notify.SMTPPort,
			cfg.Notify.From, cfg.Notify.Password, cfg.Notify.Email,
			appCtx.Logger,
		))
	}
	if cfg.WebhookEnabled() {
		channels = append(channels, notify.NewWebhook(
			cfg.Notify.WebhookURL, cfg.Lookup.Timeout, appCtx.Logger))
	}

	if len(channels) == 0 {
		return nil
	}
	return channels
}

func openHistory(appCtx *actx.Context) (*history.Log, error) {
	// The SQLite driver needs the directory to exist, but won't create it.
	if err := appCtx.FS.MkdirAll(appCtx.DataDir, 0o755); err != nil {
		return nil, aerrors.Wrap(aerrors.KindIO, "failed creating data directory", err, "path", appCtx.DataDir)
	}
	return history.Open(filepath.Join(appCtx.DataDir, historyFileName), appCtx.Logger)
}

func ruleRows(rules types.RuleSet) [][]string {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{
			r.Direction,
			r.Protocol,
			r.Port,
			joinOrDash(r.SourceIPs),
			r.Description,
		})
	}
	return rows
}

func joinOrDash(vals []string) string {
	if len(vals) == 0 {
		return "-"
	}
	out := vals[0]
	for _, v := range vals[1:] {
		out += ", " + v
	}
	return out
}
