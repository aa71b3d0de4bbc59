// Package selector decides which catalog images take part in a run.
package selector

import (
	"regexp"
	"sort"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/status"
)

// Filter is the user's image filter.
type Filter struct {
	// Patterns are regular expressions searched anywhere in the name.
	Patterns []string
	// Profiles are profile names resolved through ProfileDefs.
	Profiles []string
	// ProfileDefs maps a profile name to name substrings.
	ProfileDefs map[string][]string
	// SkipParents keeps ancestors of matched images out of the working set.
	SkipParents bool
}

// Selection is the outcome of applying a Filter to a catalog.
type Selection struct {
	// WorkingSet is every image that will be scheduled.
	WorkingSet map[string]bool
	// Direct holds images matched by a pattern or profile.
	Direct map[string]bool
	// Ancestors holds images pulled in only as parents of direct matches.
	Ancestors map[string]bool
}

// Names returns the working set in name order.
func (s Selection) Names() []string {
	out := make([]string, 0, len(s.WorkingSet))
	for n := range s.WorkingSet {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether name is in the working set.
func (s Selection) Contains(name string) bool {
	return s.WorkingSet[name]
}

// Select applies f to c. It is a pure function of its inputs. With neither
// patterns nor profiles every image is selected.
func Select(c *catalog.Catalog, f Filter) (Selection, error) {
	matchers, err := f.compile()
	if err != nil {
		return Selection{}, err
	}

	sel := Selection{
		WorkingSet: make(map[string]bool),
		Direct:     make(map[string]bool),
		Ancestors:  make(map[string]bool),
	}
	for _, img := range c.Images() {
		if len(matchers) > 0 && !matchAny(matchers, img.Name) {
			continue
		}
		sel.Direct[img.Name] = true
		sel.WorkingSet[img.Name] = true
	}

	if !f.SkipParents {
		for name := range sel.Direct {
			for _, a := range c.Ancestors(name) {
				if sel.Direct[a.Name] {
					continue
				}
				sel.Ancestors[a.Name] = true
				sel.WorkingSet[a.Name] = true
			}
		}
	}
	return sel, nil
}

// Apply records the selection in the tracker: working set images become
// matched, all others unmatched.
func Apply(t *status.Tracker, sel Selection) {
	for _, name := range t.Names() {
		if sel.WorkingSet[name] {
			t.Set(name, image.Matched)
		} else {
			t.Set(name, image.Unmatched)
		}
	}
}

func (f Filter) compile() ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range f.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, buildererr.Config("invalid image pattern %q: %v", p, err)
		}
		out = append(out, re)
	}
	for _, name := range f.Profiles {
		subs, ok := f.ProfileDefs[name]
		if !ok {
			return nil, buildererr.Config("unknown profile %q", name)
		}
		for _, s := range subs {
			out = append(out, regexp.MustCompile(regexp.QuoteMeta(s)))
		}
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, name string) bool {
	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
