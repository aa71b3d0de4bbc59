package app

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/selector"
)

// listImages prints the working set, one name per line.
func (a *App) listImages(sel selector.Selection) error {
	for _, name := range sel.Names() {
		if _, err := fmt.Fprintln(a.outW, name); err != nil {
			return err
		}
	}
	return nil
}

// listDependencies prints the working set as an indented parent/child
// tree. Images whose parent is outside the working set start a tree.
func (a *App) listDependencies(cat *catalog.Catalog, sel selector.Selection) error {
	var b strings.Builder
	var walk func(img *image.Image, depth int)
	walk = func(img *image.Image, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(img.Name)
		b.WriteByte('\n')
		for _, child := range img.Children {
			if sel.Contains(child.Name) {
				walk(child, depth+1)
			}
		}
	}
	for _, name := range sel.Names() {
		img, _ := cat.Get(name)
		if img.Parent == nil || !sel.Contains(img.Parent.Name) {
			walk(img, 0)
		}
	}
	_, err := fmt.Fprint(a.outW, b.String())
	return err
}
