// Package image defines the vertices of the build graph: a named image, its
// single parent, its children and the opaque build context handed to the
// backend.
//
// Images are created once by the catalog and never mutated afterwards. All
// mutable per-run state (status, attempts, failure detail) lives in the
// status tracker, keyed by image name.
package image

import "sort"

// BuildContext is everything a backend needs to produce the image. The
// engine never looks inside it.
type BuildContext struct {
	// Dir is the directory sent to the builder as the build context.
	Dir string `json:"dir" yaml:"dir"`
	// Dockerfile is the rendered Dockerfile path, relative to Dir.
	Dockerfile string `json:"dockerfile" yaml:"dockerfile"`
	// Repository is the fully qualified repository, e.g. "quay.io/kolla/nova-api".
	Repository string `json:"repository" yaml:"repository"`
	// Tag is the tag applied to the built image.
	Tag string `json:"tag" yaml:"tag"`
}

// Ref returns the "repository:tag" reference of the image.
func (c BuildContext) Ref() string {
	if c.Tag == "" {
		return c.Repository
	}
	return c.Repository + ":" + c.Tag
}

// Image is a single vertex in the build graph.
type Image struct {
	Name     string
	Parent   *Image
	Children []*Image
	Context  BuildContext

	// ParentRef is the raw FROM reference of the image, kept for images whose
	// parent lives outside the catalog.
	ParentRef string
}

// New creates a detached image. Links are established by the catalog.
func New(name string, ctx BuildContext) *Image {
	return &Image{Name: name, Context: ctx}
}

// IsRoot reports whether the image has no parent in the catalog.
func (i *Image) IsRoot() bool {
	return i.Parent == nil
}

// AddChild links child under i, keeping children sorted by name.
func (i *Image) AddChild(child *Image) {
	child.Parent = i
	i.Children = append(i.Children, child)
	sort.Slice(i.Children, func(a, b int) bool {
		return i.Children[a].Name < i.Children[b].Name
	})
}
