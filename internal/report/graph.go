package report

import (
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/status"
)

var dotColors = map[image.Status]string{
	image.Built:       "green",
	image.Skipped:     "blue",
	image.Error:       "red",
	image.ParentError: "orange",
	image.Unmatched:   "gray",
}

type dotNode struct {
	id     int64
	name   string
	status image.Status
}

func (n dotNode) ID() int64     { return n.id }
func (n dotNode) DOTID() string { return n.name }

func (n dotNode) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{{Key: "tooltip", Value: n.status.String()}}
	if c, ok := dotColors[n.status]; ok {
		attrs = append(attrs, encoding.Attribute{Key: "color", Value: c})
	}
	return attrs
}

// DependencyGraph renders the catalog as a DOT digraph, parent to child,
// with every node colored by its final status.
func DependencyGraph(cat *catalog.Catalog, snap map[string]status.Entry) ([]byte, error) {
	g := simple.NewDirectedGraph()
	nodes := make(map[string]dotNode, cat.Len())
	for i, name := range cat.Names() {
		n := dotNode{id: int64(i), name: name, status: snap[name].Status}
		nodes[name] = n
		g.AddNode(n)
	}
	for _, img := range cat.Images() {
		if img.Parent != nil {
			g.SetEdge(g.NewEdge(nodes[img.Parent.Name], nodes[img.Name]))
		}
	}
	return dot.Marshal(g, "images", "", "  ")
}
