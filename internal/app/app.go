package app

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/specialistvlad/stackbuild/internal/backend"
	"github.com/specialistvlad/stackbuild/internal/config"
	"github.com/specialistvlad/stackbuild/internal/status"
)

// App holds the configuration and collaborators of a single run.
type App struct {
	outW    io.Writer
	logW    io.Writer
	logger  *slog.Logger
	cfg     config.Config
	runID   string
	backend backend.Backend

	// tracker is published once the catalog is loaded so the status
	// endpoint can serve it while the run is in progress.
	tracker    atomic.Pointer[status.Tracker]
	httpServer *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithBackend replaces the Docker backend, mostly for tests.
func WithBackend(be backend.Backend) Option {
	return func(a *App) { a.backend = be }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(a *App) { a.runID = id }
}

// NewApp creates an app. Results and listings go to outW, logs and the
// human summary go to logW. cfg must already be validated.
func NewApp(outW, logW io.Writer, cfg *config.Config, opts ...Option) *App {
	a := &App{
		outW:   outW,
		logW:   logW,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, logW),
		cfg:    *cfg,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("run_id", a.runID)
	a.logger.Debug("Logger configured successfully.")
	return a
}
