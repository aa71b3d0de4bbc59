// Package pusher uploads built images on a pool of its own, sized
// independently of the build pool. A failed push is recorded and never
// retried; it has no effect on build status or on other images.
package pusher

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/specialistvlad/stackbuild/internal/backend"
	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/workerpool"
	"github.com/specialistvlad/stackbuild/internal/workqueue"
)

// Options tune the push phase.
type Options struct {
	Threads int
	// PushSkipped also pushes images that were skipped as already present.
	PushSkipped bool
	Tracer      trace.Tracer
}

// Result is the outcome of one push.
type Result struct {
	OK     bool   `json:"ok" yaml:"ok"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Code   string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Pusher accepts images while the build phase runs and drains them on
// Wait. It is single-use.
type Pusher struct {
	backend backend.Backend
	opts    Options
	queue   *workqueue.Queue[*image.Image]
	done    chan struct{}

	mu      sync.Mutex
	results map[string]Result
}

// New creates a pusher.
func New(be backend.Backend, opts Options) *Pusher {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Pusher{
		backend: be,
		opts:    opts,
		queue: workqueue.New(func(a, b *image.Image) bool {
			return a.Name < b.Name
		}),
		done:    make(chan struct{}),
		results: make(map[string]Result),
	}
}

// Start launches the push workers.
func (p *Pusher) Start(ctx context.Context) {
	ctxlog.FromContext(ctx).Info("📦 Push workers started.", "threads", p.opts.Threads, "push_skipped", p.opts.PushSkipped)
	go func() {
		defer close(p.done)
		workerpool.New("push", p.opts.Threads).Run(ctx, p.worker)
	}()
}

// Eligible reports whether an image in status st should be pushed.
func (p *Pusher) Eligible(st image.Status) bool {
	return st == image.Built || (st == image.Skipped && p.opts.PushSkipped)
}

// Submit queues img for pushing if its status makes it eligible. It never
// blocks and is safe to use as the build scheduler's success hook.
func (p *Pusher) Submit(ctx context.Context, img *image.Image, st image.Status) {
	if !p.Eligible(st) {
		ctxlog.FromContext(ctx).Debug("Image not eligible for push.", "image", img.Name, "status", st)
		return
	}
	p.queue.Push(img)
}

// Wait closes the intake, waits for every queued push and returns the
// results keyed by image name.
func (p *Pusher) Wait(ctx context.Context) map[string]Result {
	p.queue.Close()
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Result, len(p.results))
	failed := 0
	for k, v := range p.results {
		out[k] = v
		if !v.OK {
			failed++
		}
	}
	ctxlog.FromContext(ctx).Info("🏁 Push phase finished.", "pushed", len(out)-failed, "failed", failed)
	return out
}

func (p *Pusher) worker(ctx context.Context, workerID int) {
	popCtx := context.WithoutCancel(ctx)
	for {
		img, ok := p.queue.Pop(popCtx)
		if !ok {
			return
		}
		p.push(ctx, workerID, img)
	}
}

func (p *Pusher) push(ctx context.Context, workerID int, img *image.Image) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID, "image", img.Name)
	ctx, span := p.opts.Tracer.Start(ctx, "push "+img.Name, trace.WithAttributes(
		attribute.String("image.name", img.Name),
		attribute.String("image.ref", img.Context.Ref()),
	))
	defer span.End()

	logger.Info("⬆️ Pushing image.", "ref", img.Context.Ref())
	err := ctx.Err()
	if err == nil {
		err = p.backend.Push(ctx, img)
	}
	res := Result{OK: err == nil}
	if err != nil {
		err = buildererr.Push(img.Name, err)
		res.Detail, res.Code = err.Error(), buildererr.CodeOf(err)
	}

	if res.OK {
		span.SetStatus(codes.Ok, "")
		logger.Info("✅ Image pushed.")
	} else {
		span.SetStatus(codes.Error, res.Detail)
		logger.Error("Push failed.", "error", res.Detail)
	}

	p.mu.Lock()
	p.results[img.Name] = res
	p.mu.Unlock()
}
