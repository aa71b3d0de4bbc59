package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/specialistvlad/stackbuild/internal/backend"
	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/selector"
	"github.com/specialistvlad/stackbuild/internal/status"
	"github.com/specialistvlad/stackbuild/internal/workerpool"
	"github.com/specialistvlad/stackbuild/internal/workqueue"
)

// Options tune the build phase.
type Options struct {
	Threads      int
	Retries      int
	Timeout      time.Duration
	SkipExisting bool
	// OnSuccess is called from a worker once an image is built or skipped.
	// It must not block.
	OnSuccess func(ctx context.Context, img *image.Image, st image.Status)
	Tracer    trace.Tracer
}

// Scheduler runs the build phase of one run. It is single-use.
type Scheduler struct {
	cat     *catalog.Catalog
	sel     selector.Selection
	tracker *status.Tracker
	backend backend.Backend
	opts    Options

	queue   *workqueue.Queue[*image.Image]
	pending sync.WaitGroup
}

// New creates a scheduler. The tracker must already reflect the selection.
func New(cat *catalog.Catalog, sel selector.Selection, tracker *status.Tracker, be backend.Backend, opts Options) *Scheduler {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Scheduler{
		cat:     cat,
		sel:     sel,
		tracker: tracker,
		backend: be,
		opts:    opts,
		queue: workqueue.New(func(a, b *image.Image) bool {
			return a.Name < b.Name
		}),
	}
}

// Run blocks until every working set image is terminal. Image failures are
// recorded in the tracker, not returned. The returned error is non-nil only
// when ctx was canceled before the run drained.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	names := s.sel.Names()
	if len(names) == 0 {
		logger.Warn("No images selected, build phase not required.")
		return nil
	}

	s.pending.Add(len(names))
	roots := 0
	for _, name := range names {
		img, _ := s.cat.Get(name)
		if img.Parent == nil || !s.sel.Contains(img.Parent.Name) {
			s.enqueue(img)
			roots++
		}
	}
	logger.Debug("Seeded ready queue.", "roots", roots, "working_set", len(names))

	go func() {
		s.pending.Wait()
		s.queue.Close()
	}()

	logger.Info("🚀 Starting build phase...", "images", len(names), "threads", s.opts.Threads, "retries", s.opts.Retries)
	workerpool.New("build", s.opts.Threads).Run(ctx, s.worker)
	logger.Info("🏁 Build phase finished.",
		"built", s.tracker.Count(image.Built),
		"skipped", s.tracker.Count(image.Skipped),
		"error", s.tracker.Count(image.Error),
		"parent_error", s.tracker.Count(image.ParentError))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("build phase interrupted: %w", err)
	}
	return nil
}

// enqueue moves a matched image to queued and hands it to the workers.
func (s *Scheduler) enqueue(img *image.Image) {
	if s.tracker.CompareAndSwap(img.Name, image.Matched, image.Queued) {
		s.queue.Push(img)
	}
}

// worker is the processing loop of a single build worker.
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	// Popping ignores cancellation so queued images are still drained and
	// marked, otherwise the pending count would never reach zero.
	popCtx := context.WithoutCancel(ctx)
	for {
		img, ok := s.queue.Pop(popCtx)
		if !ok {
			return
		}
		s.process(ctx, workerID, img)
	}
}

func (s *Scheduler) process(ctx context.Context, workerID int, img *image.Image) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID, "image", img.Name)

	if err := ctx.Err(); err != nil {
		logger.Warn("Context canceled, not building image.")
		s.fail(ctx, img, "canceled: "+err.Error())
		return
	}

	if p := img.Parent; p != nil && !s.sel.Contains(p.Name) {
		present, err := s.backend.Exists(ctx, p.Context.Ref())
		if err != nil || !present {
			detail := fmt.Sprintf("parent image %s not present", p.Context.Ref())
			if err != nil {
				detail = fmt.Sprintf("%s: %v", detail, err)
			}
			logger.Error("Parent image missing, cannot build.", "parent", p.Name)
			s.fail(ctx, img, detail)
			return
		}
	}

	if s.opts.SkipExisting {
		present, err := s.backend.Exists(ctx, img.Context.Ref())
		switch {
		case err != nil:
			logger.Warn("Could not check for existing image, building anyway.", "error", err)
		case present && s.tracker.CompareAndSwap(img.Name, image.Queued, image.Skipped):
			logger.Info("⏭️ Image already present, skipping.", "ref", img.Context.Ref())
			s.tracker.SetDetail(img.Name, "already present")
			s.succeeded(ctx, img, image.Skipped)
			return
		}
	}

	if !s.tracker.CompareAndSwap(img.Name, image.Queued, image.Building) {
		logger.Warn("Image left the queued state before dispatch.", "status", s.tracker.Get(img.Name))
		return
	}
	attempt := s.tracker.IncAttempts(img.Name)
	logger = logger.With("attempt", attempt)
	logger.Info("▶️ Building image.", "ref", img.Context.Ref())

	err := s.build(ctx, img, attempt)
	if err == nil {
		s.tracker.SetDetail(img.Name, "")
		s.tracker.CompareAndSwap(img.Name, image.Building, image.Built)
		logger.Info("✅ Image built.")
		s.succeeded(ctx, img, image.Built)
		return
	}

	s.tracker.SetError(img.Name, err)
	s.tracker.CompareAndSwap(img.Name, image.Building, image.Error)
	if attempt <= s.opts.Retries && ctx.Err() == nil {
		logger.Warn("Build failed, retrying.", "error", err, "remaining", s.opts.Retries-attempt+1)
		if s.tracker.CompareAndSwap(img.Name, image.Error, image.Queued) {
			s.queue.Push(img)
		}
		return
	}

	logger.Error("❌ Build failed, giving up.", "error", err)
	s.pending.Done()
	s.skipDescendants(ctx, img)
}

// build runs one attempt under the per-attempt timeout.
func (s *Scheduler) build(ctx context.Context, img *image.Image, attempt int) error {
	ctx, span := s.opts.Tracer.Start(ctx, "build "+img.Name, trace.WithAttributes(
		attribute.String("image.name", img.Name),
		attribute.String("image.ref", img.Context.Ref()),
		attribute.Int("build.attempt", attempt),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err := s.backend.Build(attemptCtx, img)
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = buildererr.Timeout(img.Name, attempt, s.opts.Timeout)
	} else if err != nil {
		err = buildererr.Build(img.Name, attempt, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// succeeded releases the children of a built or skipped image.
func (s *Scheduler) succeeded(ctx context.Context, img *image.Image, st image.Status) {
	for _, child := range img.Children {
		if s.sel.Contains(child.Name) {
			ctxlog.FromContext(ctx).Debug("Unlocking child image.", "image", img.Name, "child", child.Name)
			s.enqueue(child)
		}
	}
	if s.opts.OnSuccess != nil {
		s.opts.OnSuccess(ctx, img, st)
	}
	s.pending.Done()
}

// fail marks a queued image terminally failed without a build attempt.
func (s *Scheduler) fail(ctx context.Context, img *image.Image, detail string) {
	if !s.tracker.CompareAndSwap(img.Name, image.Queued, image.Error) {
		return
	}
	s.tracker.SetDetail(img.Name, detail)
	s.pending.Done()
	s.skipDescendants(ctx, img)
}

// skipDescendants recursively marks every matched descendant parent_error.
func (s *Scheduler) skipDescendants(ctx context.Context, img *image.Image) {
	logger := ctxlog.FromContext(ctx)
	for _, child := range img.Children {
		if !s.sel.Contains(child.Name) {
			continue
		}
		if s.tracker.CompareAndSwap(child.Name, image.Matched, image.ParentError) {
			logger.Warn("Skipping image due to parent failure.", "image", child.Name, "parent", img.Name)
			s.tracker.SetDetail(child.Name, fmt.Sprintf("parent %s failed", img.Name))
			s.pending.Done()
			s.skipDescendants(ctx, child)
		}
	}
}
