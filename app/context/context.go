package context

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/botsarefuture/hetzner-firewall/app/config"
)

// Context contains common objects used by the application. It is passed
// around the application to avoid direct dependencies on external systems,
// and make testing easier.
type Context struct {
	Ctx     context.Context // global context
	FS      vfs.FileSystem  // filesystem
	Env     Environment     // process environment
	Logger  *slog.Logger    // global logger
	TimeNow func() time.Time

	// Configuration, loaded once at startup.
	Config *config.Config
	// DataDir is the directory holding the tracked IP state file and the
	// run history database.
	DataDir string

	// Standard streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Metadata
	Version string
}
