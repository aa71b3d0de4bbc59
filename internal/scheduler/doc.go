// Package scheduler drives the build phase: it moves every image of the
// working set through the state machine until each one is terminal.
//
// # State Machine
//
//	matched ──► queued ──► building ──► built
//	              ▲   │        │
//	              │   │        └──► error ──► (retry) queued
//	              │   └──► skipped                 │
//	              │                                └──► (exhausted) error + descendants parent_error
//
// An image enters the ready queue once its parent is built or skipped, or
// immediately when its parent is outside the working set. The queue is a
// min-heap on image name, so among ready images the lexically smallest is
// dispatched first.
//
// # Failure Handling
//
// A failed attempt is re-queued at once while the attempt count does not
// exceed the retry budget, so an image that always fails is attempted
// retries+1 times. After that the image is terminally error and every
// matched descendant becomes parent_error without ever being queued.
// Failures never cancel independent branches: the run always drains.
//
// # Concurrency
//
// One worker pool of `threads` workers pulls from the queue, which bounds
// the number of simultaneous builds. Children are only enqueued by the
// worker that observed their parent succeed, so a child can never start
// before its parent is done. A WaitGroup counts every working set image;
// when the last one turns terminal the queue is closed and the pool exits.
package scheduler
