package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/specialistvlad/stackbuild/internal/backend"
	"github.com/specialistvlad/stackbuild/internal/backend/docker"
	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/pusher"
	"github.com/specialistvlad/stackbuild/internal/render"
	"github.com/specialistvlad/stackbuild/internal/report"
	"github.com/specialistvlad/stackbuild/internal/scheduler"
	"github.com/specialistvlad/stackbuild/internal/selector"
	"github.com/specialistvlad/stackbuild/internal/status"
	"github.com/specialistvlad/stackbuild/internal/tracing"
)

// Run executes one run. Results are nil when the configuration asks only
// for rendering or listing. A non-nil error alongside results means the run
// was interrupted; the results then describe how far it got and have
// already been written out.
func (a *App) Run(ctx context.Context) (*report.Results, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.", "config", a.cfg.String())

	a.startHealthcheckServer(ctx)
	defer a.closeHealthcheckServer(ctx)

	tp, err := tracing.NewProvider(a.cfg.TraceFile, a.runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Error("Failed to flush traces.", "error", err)
		}
	}()

	cleanup, err := a.prepareWorkDir(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	defs, err := render.New(&a.cfg).Render(ctx)
	if err != nil {
		return nil, err
	}
	if a.cfg.TemplateOnly {
		logger.Info("📝 Build contexts rendered, not building.", "work_dir", a.cfg.WorkDir)
		return nil, nil
	}

	cat, err := catalog.Load(ctx, defs)
	if err != nil {
		return nil, err
	}
	sel, err := selector.Select(cat, selector.Filter{
		Patterns:    a.cfg.Regex,
		Profiles:    a.cfg.Profiles,
		ProfileDefs: a.cfg.ProfileDefs,
		SkipParents: a.cfg.SkipParents,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Images selected.", "working_set", len(sel.WorkingSet), "matched", len(sel.Direct), "catalog", cat.Len())

	switch {
	case a.cfg.ListImages:
		return nil, a.listImages(sel)
	case a.cfg.ListDependencies:
		return nil, a.listDependencies(cat, sel)
	}

	tracker := status.New(cat.Names())
	selector.Apply(tracker, sel)
	a.tracker.Store(tracker)

	be, err := a.buildBackend(ctx)
	if err != nil {
		return nil, err
	}

	opts := scheduler.Options{
		Threads:      a.cfg.Threads,
		Retries:      a.cfg.Retries,
		Timeout:      a.cfg.Timeout,
		SkipExisting: a.cfg.SkipExisting,
		Tracer:       tp.Tracer(),
	}
	var push *pusher.Pusher
	if a.cfg.Push {
		push = pusher.New(be, pusher.Options{
			Threads:     a.cfg.PushThreads,
			PushSkipped: a.cfg.PushSkipped,
			Tracer:      tp.Tracer(),
		})
		push.Start(ctx)
		opts.OnSuccess = push.Submit
	}

	runErr := scheduler.New(cat, sel, tracker, be, opts).Run(ctx)
	var pushResults map[string]pusher.Result
	if push != nil {
		pushResults = push.Wait(ctx)
	}

	results := report.Partition(a.runID, tracker.Snapshot(), pushResults)
	if err := a.writeResults(ctx, cat, tracker, results); err != nil {
		return results, err
	}

	logger.Debug("App.Run method finished.", "exit_code", results.ExitCode())
	return results, runErr
}

// prepareWorkDir makes sure the work dir exists. A temporary work dir is
// removed by the returned cleanup unless the contexts were asked for.
func (a *App) prepareWorkDir(ctx context.Context) (func(), error) {
	logger := ctxlog.FromContext(ctx)
	noop := func() {}

	if a.cfg.WorkDir != "" {
		if err := os.MkdirAll(a.cfg.WorkDir, 0o755); err != nil {
			return noop, fmt.Errorf("failed to create work dir: %w", err)
		}
		return noop, nil
	}

	dir, err := os.MkdirTemp("", "stackbuild-")
	if err != nil {
		return noop, fmt.Errorf("failed to create work dir: %w", err)
	}
	a.cfg.WorkDir = dir
	logger.Debug("Using temporary work dir.", "work_dir", dir)

	if a.cfg.Keep || a.cfg.TemplateOnly {
		return noop, nil
	}
	return func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove work dir.", "work_dir", dir, "error", err)
		}
	}, nil
}

func (a *App) buildBackend(ctx context.Context) (backend.Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	if a.cfg.LogsDir != "" {
		if err := os.MkdirAll(a.cfg.LogsDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
	}
	be, err := docker.NewFromEnv(ctx, docker.Options{
		Cache:       a.cfg.Cache,
		Pull:        a.cfg.Pull,
		Keep:        a.cfg.Keep,
		Quiet:       a.cfg.Quiet,
		NetworkMode: a.cfg.NetworkMode,
		BuildArgs:   a.cfg.BuildArgs,
		LogsDir:     a.cfg.LogsDir,
	})
	if err != nil {
		return nil, err
	}
	a.backend = be
	return be, nil
}

// writeResults emits the machine readable results, the summary and the
// dependency diagram.
func (a *App) writeResults(ctx context.Context, cat *catalog.Catalog, tracker *status.Tracker, results *report.Results) error {
	logger := ctxlog.FromContext(ctx)

	if err := results.Write(a.outW, a.cfg.Format); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if a.cfg.Summary {
		if err := results.WriteSummary(a.logW); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if a.cfg.SaveDependency != "" {
		data, err := report.DependencyGraph(cat, tracker.Snapshot())
		if err != nil {
			return fmt.Errorf("failed to render dependency graph: %w", err)
		}
		if err := os.WriteFile(a.cfg.SaveDependency, data, 0o644); err != nil {
			return fmt.Errorf("failed to save dependency graph: %w", err)
		}
		logger.Info("Dependency graph saved.", "path", a.cfg.SaveDependency)
	}
	return nil
}
