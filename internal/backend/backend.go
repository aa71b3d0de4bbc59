// Package backend defines what the scheduler needs from an image builder.
package backend

import (
	"context"

	"github.com/specialistvlad/stackbuild/internal/image"
)

// Backend builds, pushes and probes images. Implementations must be safe
// for concurrent use and must honor context cancellation: the scheduler
// enforces the per-attempt timeout through ctx.
type Backend interface {
	// Build produces img from its build context.
	Build(ctx context.Context, img *image.Image) error
	// Push uploads a previously built img to its registry.
	Push(ctx context.Context, img *image.Image) error
	// Exists reports whether an image with the given reference is already
	// present locally.
	Exists(ctx context.Context, ref string) (bool, error)
}
