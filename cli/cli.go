package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	actx "github.com/botsarefuture/hetzner-firewall/app/context"
)

// CLI is the command line interface of hetzfw.
type CLI struct {
	Sync    Sync    `kong:"cmd,help='Synchronize the firewall allow-rule with the current public IP.'"`
	Status  Status  `kong:"cmd,help='Show the tracked IP, the current public IP and whether they are in sync.'"`
	Rules   Rules   `kong:"cmd,help='List the current rules of the remote firewall.'"`
	History History `kong:"cmd,help='List recent synchronization runs.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	//nolint:lll // Long struct tags are unavoidable.
	EnvFile string           `kong:"default='${envFile}',help='Path to a .env file with credentials. If unset, .env is probed and its absence ignored.'"`
	DataDir string           `kong:"default='${dataDir}',help='Path to the directory where hetzfw state is stored.'"`
	Version kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(version, envFile, dataDir string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("hetzfw"),
		kong.UsageOnError(),
		kong.DefaultEnvars("HETZFW"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"envFile": envFile,
			"dataDir": dataDir,
			"version": version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this
// method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}
