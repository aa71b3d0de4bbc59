package testutil

import "time"

// ExecutionRecord holds the timing of one backend call.
type ExecutionRecord struct {
	Name    string
	Attempt int
	Start   time.Time
	End     time.Time
	Err     error
}
