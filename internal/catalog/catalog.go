// Package catalog builds the immutable image dependency graph of a run.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/render"
)

// Catalog is the set of buildable images and their parent links. It is
// read-only once Load returns and safe for concurrent use.
type Catalog struct {
	images map[string]*image.Image
	names  []string
}

// Load links definitions into a forest. It fails on duplicate names,
// references to unknown parents and cycles.
func Load(ctx context.Context, defs []render.Definition) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building image catalog.", "definitions", len(defs))

	c := &Catalog{images: make(map[string]*image.Image, len(defs))}
	parents := make(map[string]string, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, buildererr.Definition("image definition without a name in %s", d.Source)
		}
		if _, dup := c.images[d.Name]; dup {
			return nil, buildererr.Definition("image %q is defined more than once", d.Name)
		}
		img := image.New(d.Name, d.Context)
		img.ParentRef = d.ParentRef
		c.images[d.Name] = img
		c.names = append(c.names, d.Name)
		if d.Parent != "" {
			parents[d.Name] = d.Parent
		}
	}
	sort.Strings(c.names)

	g := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(c.names))
	for i, n := range c.names {
		ids[n] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, n := range c.names {
		p, ok := parents[n]
		if !ok {
			continue
		}
		if _, known := c.images[p]; !known {
			return nil, buildererr.Definition("image %q references unknown parent %q", n, p)
		}
		if p == n {
			return nil, buildererr.Definition("image %q is its own parent", n)
		}
		g.SetEdge(g.NewEdge(simple.Node(ids[p]), simple.Node(ids[n])))
	}

	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			return nil, buildererr.Definition("dependency cycle between images: %s", c.describeCycles(cycles))
		}
		return nil, buildererr.Definition("cannot order images: %v", err)
	}
	for _, n := range c.names {
		if p, ok := parents[n]; ok {
			c.images[p].AddChild(c.images[n])
		}
	}

	logger.Debug("Image catalog built.", "images", len(c.names), "roots", len(c.Roots()))
	return c, nil
}

func (c *Catalog) describeCycles(cycles topo.Unorderable) string {
	var parts []string
	for _, comp := range cycles {
		var names []string
		for _, n := range comp {
			names = append(names, c.names[n.ID()])
		}
		sort.Strings(names)
		parts = append(parts, "["+strings.Join(names, " -> ")+"]")
	}
	return strings.Join(parts, ", ")
}

// Len returns the number of images.
func (c *Catalog) Len() int { return len(c.names) }

// Get returns the named image.
func (c *Catalog) Get(name string) (*image.Image, bool) {
	img, ok := c.images[name]
	return img, ok
}

// Names returns all image names in name order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Images returns all images in name order.
func (c *Catalog) Images() []*image.Image {
	out := make([]*image.Image, len(c.names))
	for i, n := range c.names {
		out[i] = c.images[n]
	}
	return out
}

// Roots returns the images without a parent in the catalog.
func (c *Catalog) Roots() []*image.Image {
	var out []*image.Image
	for _, n := range c.names {
		if c.images[n].IsRoot() {
			out = append(out, c.images[n])
		}
	}
	return out
}

// Ancestors returns the chain of parents of name, nearest first.
func (c *Catalog) Ancestors(name string) []*image.Image {
	img, ok := c.images[name]
	if !ok {
		return nil
	}
	var out []*image.Image
	for p := img.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}
