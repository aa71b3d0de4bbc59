// Package report turns the final status of a run into result sets, an exit
// code and the various human and machine readable outputs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/pusher"
	"github.com/specialistvlad/stackbuild/internal/status"
)

// Results are the four disjoint result sets plus push outcomes. Every
// catalog image appears in exactly one of Bad, Good, Unmatched and Skipped.
type Results struct {
	RunID     string                   `json:"run_id" yaml:"run_id"`
	Bad       map[string]status.Entry  `json:"bad" yaml:"bad"`
	Good      map[string]status.Entry  `json:"good" yaml:"good"`
	Unmatched map[string]status.Entry  `json:"unmatched" yaml:"unmatched"`
	Skipped   map[string]status.Entry  `json:"skipped" yaml:"skipped"`
	Push      map[string]pusher.Result `json:"push,omitempty" yaml:"push,omitempty"`
}

// Partition sorts a status snapshot into result sets. An image that never
// reached a terminal status (the run was cut short) is counted as bad.
func Partition(runID string, snap map[string]status.Entry, push map[string]pusher.Result) *Results {
	r := &Results{
		RunID:     runID,
		Bad:       make(map[string]status.Entry),
		Good:      make(map[string]status.Entry),
		Unmatched: make(map[string]status.Entry),
		Skipped:   make(map[string]status.Entry),
		Push:      push,
	}
	for name, e := range snap {
		switch e.Status {
		case image.Built:
			r.Good[name] = e
		case image.Unmatched:
			r.Unmatched[name] = e
		case image.Skipped:
			r.Skipped[name] = e
		case image.Error, image.ParentError:
			r.Bad[name] = e
		default:
			if e.Detail == "" {
				e.Detail = "did not finish (" + e.Status.String() + ")"
			}
			r.Bad[name] = e
		}
	}
	return r
}

// ExitCode is 0 when nothing failed to build. Push failures do not count.
func (r *Results) ExitCode() int {
	if len(r.Bad) == 0 {
		return 0
	}
	return 1
}

// PushFailures returns the names of images whose push failed, sorted.
func (r *Results) PushFailures() []string {
	var out []string
	for name, res := range r.Push {
		if !res.OK {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Write encodes r in the given format: json, yaml or none.
func (r *Results) Write(w io.Writer, format string) error {
	switch format {
	case "none", "":
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func sortedNames(m map[string]status.Entry) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
