package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
)

// File is the decoded content of an HCL config file.
type File struct {
	// Settings holds every option set in the `settings` block, keyed by
	// its command-line flag name.
	Settings map[string]any
	Profiles map[string][]string
	Users    map[string]User
	Sources  map[string]Source
}

type fileRoot struct {
	Settings *settingsBlock  `hcl:"settings,block"`
	Profiles []*profileBlock `hcl:"profile,block"`
	Users    []*userBlock    `hcl:"user,block"`
	Sources  []*sourceBlock  `hcl:"source,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

type profileBlock struct {
	Name   string   `hcl:"name,label"`
	Images []string `hcl:"images"`
}

type userBlock struct {
	Name  string `hcl:"name,label"`
	UID   int    `hcl:"uid"`
	GID   int    `hcl:"gid"`
	Group string `hcl:"group,optional"`
}

type sourceBlock struct {
	Name      string `hcl:"name,label"`
	Type      string `hcl:"type"`
	Location  string `hcl:"location"`
	Reference string `hcl:"reference,optional"`
}

type settingsBlock struct {
	TemplateDirs      []string          `hcl:"template_dirs,optional"`
	WorkDir           *string           `hcl:"work_dir,optional"`
	Base              *string           `hcl:"base,optional"`
	BaseArch          *string           `hcl:"base_arch,optional"`
	BaseImage         *string           `hcl:"base_image,optional"`
	BaseTag           *string           `hcl:"base_tag,optional"`
	Namespace         *string           `hcl:"namespace,optional"`
	Registry          *string           `hcl:"registry,optional"`
	ImagePrefix       *string           `hcl:"image_prefix,optional"`
	Tag               *string           `hcl:"tag,optional"`
	InstallType       *string           `hcl:"install_type,optional"`
	OpenStackRelease  *string           `hcl:"openstack_release,optional"`
	Maintainer        *string           `hcl:"maintainer,optional"`
	Profiles          []string          `hcl:"profiles,optional"`
	SkipParents       *bool             `hcl:"skip_parents,optional"`
	SkipExisting      *bool             `hcl:"skip_existing,optional"`
	EnableUnbuildable *bool             `hcl:"enable_unbuildable,optional"`
	Threads           *int              `hcl:"threads,optional"`
	PushThreads       *int              `hcl:"push_threads,optional"`
	Retries           *int              `hcl:"retries,optional"`
	Timeout           *int              `hcl:"timeout,optional"`
	Push              *bool             `hcl:"push,optional"`
	PushSkipped       *bool             `hcl:"push_skipped,optional"`
	Cache             *bool             `hcl:"cache,optional"`
	Pull              *bool             `hcl:"pull,optional"`
	Keep              *bool             `hcl:"keep,optional"`
	NetworkMode       *string           `hcl:"network_mode,optional"`
	BuildArgs         map[string]string `hcl:"build_args,optional"`
	LogsDir           *string           `hcl:"logs_dir,optional"`
	Format            *string           `hcl:"format,optional"`
	Summary           *bool             `hcl:"summary,optional"`
	LogLevel          *string           `hcl:"log_level,optional"`
	LogFormat         *string           `hcl:"log_format,optional"`
}

// LoadFile parses and decodes an HCL config file.
func LoadFile(ctx context.Context, path string) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading config file.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, buildererr.Config("failed to parse config file %s: %s", path, diags.Error())
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, buildererr.Config("failed to decode config file %s: %s", path, diags.Error())
	}

	f := &File{
		Settings: root.Settings.flags(),
		Profiles: make(map[string][]string),
		Users:    make(map[string]User),
		Sources:  make(map[string]Source),
	}
	for _, p := range root.Profiles {
		if _, dup := f.Profiles[p.Name]; dup {
			return nil, buildererr.Config("profile %q declared twice in %s", p.Name, path)
		}
		f.Profiles[p.Name] = p.Images
	}
	for _, u := range root.Users {
		f.Users[u.Name] = User{UID: u.UID, GID: u.GID, Group: u.Group}
	}
	for _, s := range root.Sources {
		f.Sources[s.Name] = Source{Type: s.Type, Location: s.Location, Reference: s.Reference}
	}

	logger.Debug("Config file loaded.",
		"settings", len(f.Settings), "profiles", len(f.Profiles), "users", len(f.Users), "sources", len(f.Sources))
	return f, nil
}

// MergeTables adds the file's profiles, users and sources to c. Entries in
// the file replace built-in entries of the same name.
func (f *File) MergeTables(c *Config) {
	if c.ProfileDefs == nil {
		c.ProfileDefs = make(map[string][]string)
	}
	for k, v := range f.Profiles {
		c.ProfileDefs[k] = v
	}
	if c.Users == nil {
		c.Users = make(map[string]User)
	}
	for k, v := range f.Users {
		c.Users[k] = v
	}
	if c.Sources == nil {
		c.Sources = make(map[string]Source)
	}
	for k, v := range f.Sources {
		c.Sources[k] = v
	}
}

func (s *settingsBlock) flags() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	if len(s.TemplateDirs) > 0 {
		out["docker-dir"] = s.TemplateDirs
	}
	if len(s.Profiles) > 0 {
		out["profile"] = s.Profiles
	}
	if len(s.BuildArgs) > 0 {
		args := make([]string, 0, len(s.BuildArgs))
		for k, v := range s.BuildArgs {
			args = append(args, fmt.Sprintf("%s=%s", k, v))
		}
		out["build-arg"] = args
	}
	setString(out, "work-dir", s.WorkDir)
	setString(out, "base", s.Base)
	setString(out, "base-arch", s.BaseArch)
	setString(out, "base-image", s.BaseImage)
	setString(out, "base-tag", s.BaseTag)
	setString(out, "namespace", s.Namespace)
	setString(out, "registry", s.Registry)
	setString(out, "image-prefix", s.ImagePrefix)
	setString(out, "tag", s.Tag)
	setString(out, "install-type", s.InstallType)
	setString(out, "openstack-release", s.OpenStackRelease)
	setString(out, "maintainer", s.Maintainer)
	setString(out, "network-mode", s.NetworkMode)
	setString(out, "logs-dir", s.LogsDir)
	setString(out, "format", s.Format)
	setString(out, "log-level", s.LogLevel)
	setString(out, "log-format", s.LogFormat)
	setBool(out, "skip-parents", s.SkipParents)
	setBool(out, "skip-existing", s.SkipExisting)
	setBool(out, "enable-unbuildable", s.EnableUnbuildable)
	setBool(out, "push", s.Push)
	setBool(out, "push-skipped", s.PushSkipped)
	setBool(out, "cache", s.Cache)
	setBool(out, "pull", s.Pull)
	setBool(out, "keep", s.Keep)
	setBool(out, "summary", s.Summary)
	setInt(out, "threads", s.Threads)
	setInt(out, "push-threads", s.PushThreads)
	setInt(out, "retries", s.Retries)
	setInt(out, "timeout", s.Timeout)
	return out
}

func setString(m map[string]any, k string, v *string) {
	if v != nil {
		m[k] = *v
	}
}

func setBool(m map[string]any, k string, v *bool) {
	if v != nil {
		m[k] = *v
	}
}

func setInt(m map[string]any, k string, v *int) {
	if v != nil {
		m[k] = *v
	}
}
