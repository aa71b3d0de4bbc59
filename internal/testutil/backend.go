// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/stackbuild/internal/image"
)

// AlwaysFail makes FakeBackend fail every attempt of an image.
const AlwaysFail = -1

// FakeBackend is a scriptable, recording backend.
type FakeBackend struct {
	// Latency is how long every build and push takes.
	Latency time.Duration
	// Failures maps an image name to how many leading build attempts fail.
	Failures map[string]int
	// Hang lists images whose builds block until their context is done.
	Hang map[string]bool
	// Present lists references Exists reports as present.
	Present map[string]bool
	// PushFailures lists images whose push fails.
	PushFailures map[string]bool

	mu            sync.Mutex
	builds        []ExecutionRecord
	pushes        []ExecutionRecord
	attempts      map[string]int
	building      int
	pushing       int
	peakBuilding  int
	peakPushing   int
	existsQueries []string
}

// NewFakeBackend creates a backend where every build succeeds after latency.
func NewFakeBackend(latency time.Duration) *FakeBackend {
	return &FakeBackend{
		Latency:      latency,
		Failures:     make(map[string]int),
		Hang:         make(map[string]bool),
		Present:      make(map[string]bool),
		PushFailures: make(map[string]bool),
		attempts:     make(map[string]int),
	}
}

// Build implements backend.Backend.
func (f *FakeBackend) Build(ctx context.Context, img *image.Image) error {
	f.mu.Lock()
	f.attempts[img.Name]++
	attempt := f.attempts[img.Name]
	f.building++
	if f.building > f.peakBuilding {
		f.peakBuilding = f.building
	}
	fails := f.Failures[img.Name]
	hang := f.Hang[img.Name]
	f.mu.Unlock()

	rec := ExecutionRecord{Name: img.Name, Attempt: attempt, Start: time.Now()}
	var err error
	if hang {
		<-ctx.Done()
		err = ctx.Err()
	} else {
		err = sleep(ctx, f.Latency)
	}
	if err == nil && (fails == AlwaysFail || attempt <= fails) {
		err = fmt.Errorf("build of %s failed on attempt %d", img.Name, attempt)
	}
	rec.End = time.Now()
	rec.Err = err

	f.mu.Lock()
	f.building--
	f.builds = append(f.builds, rec)
	f.mu.Unlock()
	return err
}

// Push implements backend.Backend.
func (f *FakeBackend) Push(ctx context.Context, img *image.Image) error {
	f.mu.Lock()
	f.pushing++
	if f.pushing > f.peakPushing {
		f.peakPushing = f.pushing
	}
	fail := f.PushFailures[img.Name]
	f.mu.Unlock()

	rec := ExecutionRecord{Name: img.Name, Attempt: 1, Start: time.Now()}
	err := sleep(ctx, f.Latency)
	if err == nil && fail {
		err = errors.New("registry rejected " + img.Name)
	}
	rec.End = time.Now()
	rec.Err = err

	f.mu.Lock()
	f.pushing--
	f.pushes = append(f.pushes, rec)
	f.mu.Unlock()
	return err
}

// Exists implements backend.Backend.
func (f *FakeBackend) Exists(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsQueries = append(f.existsQueries, ref)
	return f.Present[ref], nil
}

// Builds returns every build attempt in completion order.
func (f *FakeBackend) Builds() []ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutionRecord(nil), f.builds...)
}

// Pushes returns every push in completion order.
func (f *FakeBackend) Pushes() []ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutionRecord(nil), f.pushes...)
}

// Attempts returns how many times Build was called for name.
func (f *FakeBackend) Attempts(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[name]
}

// PeakBuilding is the highest number of concurrent builds observed.
func (f *FakeBackend) PeakBuilding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakBuilding
}

// PeakPushing is the highest number of concurrent pushes observed.
func (f *FakeBackend) PeakPushing() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakPushing
}

// ExistsQueries returns the references passed to Exists.
func (f *FakeBackend) ExistsQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.existsQueries...)
}

// BuildRecord returns the last successful build of name.
func (f *FakeBackend) BuildRecord(name string) (ExecutionRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.builds) - 1; i >= 0; i-- {
		if f.builds[i].Name == name && f.builds[i].Err == nil {
			return f.builds[i], true
		}
	}
	return ExecutionRecord{}, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
