package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"github.com/botsarefuture/hetzner-firewall/app/config"
	actx "github.com/botsarefuture/hetzner-firewall/app/context"
	"github.com/botsarefuture/hetzner-firewall/cli"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with
	// the WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application.
func New(name, envFile, dataDir string, opts ...Option) (*App, error) {
	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Version: actx.GetVersion(),
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version)
	var err error
	app.cli, err = cli.New(ver, envFile, dataDir)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	cfg, err := config.Load(app.ctx.FS, app.ctx.Env.Environ(), app.cli.EnvFile)
	if err != nil {
		return err
	}
	app.ctx.Config = cfg
	app.ctx.DataDir = app.cli.DataDir

	return app.cli.Execute(app.ctx)
}
