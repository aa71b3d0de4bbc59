package render

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/config"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/fsutil"
	"github.com/specialistvlad/stackbuild/internal/image"
)

const (
	templateFile = "Dockerfile.tmpl"
	metadataFile = "image.hcl"
	dockerfile   = "Dockerfile"
)

// Definition is one rendered image, ready to be linked into the catalog.
type Definition struct {
	Name string
	// Parent is the catalog name of the parent, or "" for a root image.
	Parent string
	// ParentRef is the raw FROM reference.
	ParentRef string
	// Source is the template directory the definition came from.
	Source  string
	Context image.BuildContext
}

type metadataRoot struct {
	Image  *metadata `hcl:"image,block"`
	Remain hcl.Body  `hcl:",remain"`
}

type metadata struct {
	Bases       []string `hcl:"bases,optional"`
	Arches      []string `hcl:"arches,optional"`
	Unbuildable bool     `hcl:"unbuildable,optional"`
}

// Renderer renders the templates of one run.
type Renderer struct {
	cfg    *config.Config
	parser *hclparse.Parser
	vars   map[string]cty.Value
}

// New creates a renderer for cfg. cfg.WorkDir must be set.
func New(cfg *config.Config) *Renderer {
	return &Renderer{
		cfg:    cfg,
		parser: hclparse.NewParser(),
		vars:   Variables(cfg),
	}
}

// Render discovers, filters and renders every image. Output is sorted by
// name. Any malformed template or metadata file fails the whole call.
func (r *Renderer) Render(ctx context.Context) ([]Definition, error) {
	logger := ctxlog.FromContext(ctx)

	dirs, err := r.discover(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered image templates.", "count", len(dirs))

	names := make([]string, 0, len(dirs))
	for n := range dirs {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	excluded := make(map[string]bool)
	for _, name := range names {
		dir := dirs[name]
		ok, reason, err := r.supported(dir)
		if err != nil {
			return nil, buildererr.WrapDefinition(name, err)
		}
		if !ok {
			logger.Debug("Excluding image.", "image", name, "reason", reason)
			excluded[name] = true
			continue
		}

		def, err := r.renderOne(name, dir)
		if err != nil {
			return nil, buildererr.WrapDefinition(name, err)
		}
		defs = append(defs, def)
	}
	if defs, err = r.dropOrphans(ctx, defs, excluded); err != nil {
		return nil, err
	}
	logger.Info("📝 Rendered image templates.", "images", len(defs), "excluded", len(names)-len(defs), "work_dir", r.cfg.WorkDir)
	return defs, nil
}

// dropOrphans removes every definition descending from an excluded image.
// Such images inherit the base or arch their ancestor does not support.
func (r *Renderer) dropOrphans(ctx context.Context, defs []Definition, excluded map[string]bool) ([]Definition, error) {
	logger := ctxlog.FromContext(ctx)
	for changed := len(excluded) > 0; changed; {
		changed = false
		kept := defs[:0]
		for _, d := range defs {
			if d.Parent == "" || !excluded[d.Parent] {
				kept = append(kept, d)
				continue
			}
			logger.Debug("Excluding image.", "image", d.Name, "reason", "parent "+d.Parent+" excluded")
			excluded[d.Name] = true
			changed = true
			if err := os.RemoveAll(d.Context.Dir); err != nil {
				return nil, buildererr.WrapDefinition(d.Name, err)
			}
		}
		defs = kept
	}
	return defs, nil
}

// discover maps image names to template directories. Later roots win.
func (r *Renderer) discover(ctx context.Context) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	dirs := make(map[string]string)
	for _, root := range r.cfg.TemplateDirs {
		files, err := fsutil.FindFilesNamed(root, templateFile)
		if err != nil {
			return nil, buildererr.Definition("cannot scan template directory %s: %v", root, err)
		}
		seen := make(map[string]string, len(files))
		for _, f := range files {
			dir := filepath.Dir(f)
			name := filepath.Base(dir)
			if prev, dup := seen[name]; dup {
				return nil, buildererr.Definition("image %q defined twice in %s: %s and %s", name, root, prev, dir)
			}
			seen[name] = dir
			if prev, ok := dirs[name]; ok {
				logger.Debug("Template overridden.", "image", name, "from", prev, "to", dir)
			}
			dirs[name] = dir
		}
	}
	return dirs, nil
}

func (r *Renderer) supported(dir string) (bool, string, error) {
	path := filepath.Join(dir, metadataFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return true, "", nil
		}
		return false, "", err
	}

	f, diags := r.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return false, "", fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	var root metadataRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return false, "", fmt.Errorf("failed to decode %s: %w", path, diags)
	}
	if root.Image == nil {
		return true, "", nil
	}

	m := root.Image
	if len(m.Bases) > 0 && !contains(m.Bases, r.cfg.Base) {
		return false, "base " + r.cfg.Base + " not supported", nil
	}
	if len(m.Arches) > 0 && !contains(m.Arches, r.cfg.BaseArch) {
		return false, "arch " + r.cfg.BaseArch + " not supported", nil
	}
	if m.Unbuildable && !r.cfg.EnableUnbuildable {
		return false, "unbuildable", nil
	}
	return true, "", nil
}

func (r *Renderer) renderOne(name, dir string) (Definition, error) {
	src, err := os.ReadFile(filepath.Join(dir, templateFile))
	if err != nil {
		return Definition{}, err
	}
	rendered, err := r.RenderTemplate(name, filepath.Join(dir, templateFile), src)
	if err != nil {
		return Definition{}, err
	}

	parentRef, err := FromReference(rendered)
	if err != nil {
		return Definition{}, err
	}

	ctxDir := filepath.Join(r.cfg.WorkDir, name)
	if err := os.RemoveAll(ctxDir); err != nil {
		return Definition{}, err
	}
	err = fsutil.CopyTree(dir, ctxDir, func(rel string, d fs.DirEntry) bool {
		if rel == templateFile || rel == metadataFile {
			return true
		}
		// Nested image directories are contexts of their own.
		if d.IsDir() {
			_, statErr := os.Stat(filepath.Join(dir, rel, templateFile))
			return statErr == nil
		}
		return false
	})
	if err != nil {
		return Definition{}, fmt.Errorf("assembling build context: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ctxDir, dockerfile), rendered, 0o644); err != nil {
		return Definition{}, err
	}

	return Definition{
		Name:      name,
		Parent:    r.ParentName(parentRef),
		ParentRef: parentRef,
		Source:    dir,
		Context: image.BuildContext{
			Dir:        ctxDir,
			Dockerfile: dockerfile,
			Repository: r.cfg.RepositoryPrefix() + name,
			Tag:        r.cfg.Tag,
		},
	}, nil
}

// RenderTemplate evaluates an HCL template with the run variables plus
// image_name.
func (r *Renderer) RenderTemplate(name, filename string, src []byte) ([]byte, error) {
	expr, diags := hclsyntax.ParseTemplate(src, filename, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse template: %w", diags)
	}

	vars := make(map[string]cty.Value, len(r.vars)+1)
	for k, v := range r.vars {
		vars[k] = v
	}
	vars["image_name"] = cty.StringVal(name)

	val, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: functions()})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to render template: %w", diags)
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return nil, fmt.Errorf("template did not render to a string: %w", err)
	}
	if val.IsNull() || !val.IsKnown() {
		return nil, fmt.Errorf("template rendered to an empty value")
	}
	return []byte(val.AsString()), nil
}

// FromReference returns the image reference of the first FROM instruction.
func FromReference(dockerfileSrc []byte) (string, error) {
	res, err := parser.Parse(bytes.NewReader(dockerfileSrc))
	if err != nil {
		return "", fmt.Errorf("invalid Dockerfile: %w", err)
	}
	for _, n := range res.AST.Children {
		if strings.EqualFold(n.Value, "from") && n.Next != nil {
			return n.Next.Value, nil
		}
	}
	return "", fmt.Errorf("no FROM instruction in Dockerfile")
}

// ParentName maps a FROM reference back to a catalog name. References that
// were not produced by this run (other namespace, prefix or tag) belong to
// external images and yield "".
func (r *Renderer) ParentName(ref string) string {
	prefix := r.cfg.RepositoryPrefix()
	suffix := ":" + r.cfg.Tag
	if !strings.HasPrefix(ref, prefix) || !strings.HasSuffix(ref, suffix) {
		return ""
	}
	name := strings.TrimSuffix(strings.TrimPrefix(ref, prefix), suffix)
	if name == "" || strings.ContainsAny(name, "/:@") {
		return ""
	}
	return name
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
