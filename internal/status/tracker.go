// Package status provides the concurrency-safe per-run record of every image:
// its lifecycle status, the number of build attempts and the last failure
// detail.
//
// # Concurrency Model
//
// The key space is fixed at construction (every catalog image is known up
// front) while values change constantly as workers move images through the
// state machine. Entries live in a sync.Map and each entry guards its own
// fields, so workers touching different images never contend.
//
// Transitions that race (a worker finishing a build while another marks the
// same image parent_error) go through CompareAndSwap, which makes the
// check-then-set atomic.
package status

import (
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/image"
)

// Entry is an immutable copy of one image's record.
type Entry struct {
	Status   image.Status `json:"status" yaml:"status"`
	Attempts int          `json:"attempts" yaml:"attempts"`
	Detail   string       `json:"detail,omitempty" yaml:"detail,omitempty"`
	Code     string       `json:"code,omitempty" yaml:"code,omitempty"`
}

type entry struct {
	mu       sync.Mutex
	status   image.Status
	attempts int
	detail   string
	code     string
}

// Tracker maps image names to their run state.
type Tracker struct {
	entries sync.Map // Key: image name, Value: *entry
	names   []string
}

// New creates a tracker for the given image names, all Unbuilt.
func New(names []string) *Tracker {
	t := &Tracker{names: append([]string(nil), names...)}
	sort.Strings(t.names)
	for _, n := range t.names {
		t.entries.Store(n, &entry{status: image.Unbuilt})
	}
	return t
}

// lookup panics on unknown names: every caller derives names from the same
// catalog, so a miss is a programming error.
func (t *Tracker) lookup(name string) *entry {
	e, ok := t.entries.Load(name)
	if !ok {
		panic(fmt.Sprintf("status: unknown image %q", name))
	}
	return e.(*entry)
}

// Set unconditionally sets the status of name.
func (t *Tracker) Set(name string, s image.Status) {
	e := t.lookup(name)
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Get returns the current status of name.
func (t *Tracker) Get(name string) image.Status {
	e := t.lookup(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CompareAndSwap sets name to `to` only if it is currently `from`.
func (t *Tracker) CompareAndSwap(name string, from, to image.Status) bool {
	e := t.lookup(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != from {
		return false
	}
	e.status = to
	return true
}

// IncAttempts records a new build attempt and returns the attempt number.
func (t *Tracker) IncAttempts(name string) int {
	e := t.lookup(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	return e.attempts
}

// Attempts returns how many build attempts name has had.
func (t *Tracker) Attempts(name string) int {
	e := t.lookup(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// SetDetail records a human-readable reason for the current status and
// clears any error code.
func (t *Tracker) SetDetail(name, detail string) {
	e := t.lookup(name)
	e.mu.Lock()
	e.detail = detail
	e.code = ""
	e.mu.Unlock()
}

// SetError records err as the detail of name along with its error code.
func (t *Tracker) SetError(name string, err error) {
	e := t.lookup(name)
	e.mu.Lock()
	e.detail = err.Error()
	e.code = buildererr.CodeOf(err)
	e.mu.Unlock()
}

// Detail returns the last recorded detail for name.
func (t *Tracker) Detail(name string) string {
	e := t.lookup(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detail
}

// Names returns every tracked name in sorted order.
func (t *Tracker) Names() []string {
	return append([]string(nil), t.names...)
}

// Snapshot returns a point-in-time copy. Each entry is internally
// consistent; the map as a whole is not a global atomic cut.
func (t *Tracker) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(t.names))
	for _, n := range t.names {
		e := t.lookup(n)
		e.mu.Lock()
		out[n] = Entry{Status: e.status, Attempts: e.attempts, Detail: e.detail, Code: e.code}
		e.mu.Unlock()
	}
	return out
}

// Count returns how many images are currently in status s.
func (t *Tracker) Count(s image.Status) int {
	n := 0
	for _, name := range t.names {
		if t.Get(name) == s {
			n++
		}
	}
	return n
}
