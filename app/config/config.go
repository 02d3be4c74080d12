// Package config loads the application configuration from an optional .env
// file and the process environment. Core components never read the
// environment directly; they receive configuration values as plain
// parameters.
package config

import (
	"bytes"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/mandelsoft/vfs/pkg/vfs"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
)

// DefaultEnvFile is the .env file probed when none is specified explicitly.
// Its absence is not an error; the absence of an explicitly configured one is.
const DefaultEnvFile = ".env"

// Config represents the application configuration.
type Config struct {
	Provider Provider
	Lookup   Lookup
	Notify   Notify
}

// Provider defines the firewall provider API options.
type Provider struct {
	// Token is the bearer token for the provider API.
	Token string `env:"HETZNER_API_TOKEN"`
	// FirewallID is the provider-side ID of the managed firewall resource.
	FirewallID string `env:"FIREWALL_ID"`
	// BaseURL overrides the provider API endpoint, mainly for testing.
	BaseURL string `env:"HETZNER_API_URL"`
}

// Lookup defines the public-IP lookup options.
type Lookup struct {
	// URL overrides the IP lookup endpoint.
	URL string `env:"IP_LOOKUP_URL"`
	// Timeout applies to every remote call of a run, not only the lookup.
	Timeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// Notify defines the operator notification options. Both channels are
// optional; an empty recipient or URL disables the channel.
type Notify struct {
	// Email is the notification recipient address.
	Email string `env:"NOTIFY_EMAIL"`
	// From is the sending account, also used as the SMTP username.
	From     string `env:"EMAIL_ADDRESS"`
	Password string `env:"EMAIL_PASSWORD"`
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"465"`
	// WebhookURL enables JSON webhook notifications.
	WebhookURL string `env:"WEBHOOK_URL"`
}

// Load reads the optional .env file from the filesystem, overlays it with
// the given process environment (process values win) and parses the result.
// envFile == "" probes DefaultEnvFile and ignores its absence.
func Load(fsys vfs.FileSystem, environ []string, envFile string) (*Config, error) {
	values := make(map[string]string)

	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	data, err := vfs.ReadFile(fsys, path)
	switch {
	case err == nil:
		fileValues, perr := godotenv.Parse(bytes.NewReader(data))
		if perr != nil {
			return nil, aerrors.Wrap(aerrors.KindConfig, "failed parsing env file", perr, "path", path)
		}
		values = fileValues
	case vfs.IsErrNotExist(err) && envFile == "":
		// No .env file is fine unless one was asked for.
	default:
		return nil, aerrors.Wrap(aerrors.KindConfig, "failed reading env file", err, "path", path)
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}

	cfg := &Config{}
	err = env.ParseWithOptions(cfg, env.Options{Environment: values})
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindConfig, "failed parsing environment configuration", err)
	}

	return cfg, nil
}

// Validate checks that everything a synchronization run needs is set. It is
// called by commands that talk to the provider, before any side effect.
func (c *Config) Validate() error {
	if c.Provider.Token == "" {
		return aerrors.New(aerrors.KindConfig, "missing provider API token", "env", "HETZNER_API_TOKEN")
	}
	if c.Provider.FirewallID == "" {
		return aerrors.New(aerrors.KindConfig, "missing firewall resource ID", "env", "FIREWALL_ID")
	}

	if c.EmailEnabled() {
		switch {
		case c.Notify.From == "":
			return aerrors.New(aerrors.KindConfig, "missing notification sender address", "env", "EMAIL_ADDRESS")
		case c.Notify.Password == "":
			return aerrors.New(aerrors.KindConfig, "missing notification sender password", "env", "EMAIL_PASSWORD")
		case c.Notify.SMTPHost == "":
			return aerrors.New(aerrors.KindConfig, "missing SMTP host", "env", "SMTP_HOST")
		}
	}

	return nil
}

// EmailEnabled reports whether email notifications are configured.
func (c *Config) EmailEnabled() bool {
	return c.Notify.Email != ""
}

// WebhookEnabled reports whether webhook notifications are configured.
func (c *Config) WebhookEnabled() bool {
	return c.Notify.WebhookURL != ""
}
