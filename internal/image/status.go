package image

import "fmt"

// Status is the per-run lifecycle state of an image.
type Status int32

const (
	// Unbuilt is the state of every image straight after catalog load.
	Unbuilt Status = iota
	// Matched means the image is in the working set and waits on its parent.
	Matched
	// Queued means the image sits in the ready queue.
	Queued
	// Building means a worker is running a build attempt.
	Building
	// Built is terminal success.
	Built
	// Error is a failed attempt; terminal once retries are exhausted.
	Error
	// Skipped is terminal: the image was already present and skip-existing is on.
	Skipped
	// ParentError is terminal: an ancestor failed for good.
	ParentError
	// Unmatched is terminal: the image is outside the working set.
	Unmatched
)

var statusNames = [...]string{
	Unbuilt:     "unbuilt",
	Matched:     "matched",
	Queued:      "queued",
	Building:    "building",
	Built:       "built",
	Error:       "error",
	Skipped:     "skipped",
	ParentError: "parent_error",
	Unmatched:   "unmatched",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	return statusNames[s]
}

// MarshalText renders the status by name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for i, n := range statusNames {
		if n == s {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown image status %q", s)
}

// Terminal reports whether no further transition can happen within a run.
// Error is only terminal once the scheduler stops retrying, so it is not
// listed here.
func (s Status) Terminal() bool {
	switch s {
	case Built, Skipped, ParentError, Unmatched:
		return true
	}
	return false
}
