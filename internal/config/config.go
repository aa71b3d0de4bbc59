package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
)

var (
	Bases       = []string{"centos", "debian", "rocky", "ubuntu"}
	Arches      = []string{"x86_64", "aarch64"}
	Formats     = []string{"json", "yaml", "none"}
	InstallType = []string{"binary", "source"}
)

// BaseImage is the default upstream image for a distro.
type BaseImage struct {
	Name string
	Tag  string
}

// DefaultBaseImages maps a distro to its upstream base image.
var DefaultBaseImages = map[string]BaseImage{
	"centos": {Name: "quay.io/centos/centos", Tag: "stream9"},
	"debian": {Name: "debian", Tag: "bookworm"},
	"rocky":  {Name: "quay.io/rockylinux/rockylinux", Tag: "9"},
	"ubuntu": {Name: "ubuntu", Tag: "22.04"},
}

// DefaultProfiles are name-substring lists selectable with --profile.
var DefaultProfiles = map[string][]string{
	"infra": {
		"cron", "elasticsearch", "etcd", "fluentd", "haproxy", "hacluster",
		"keepalived", "kibana", "kolla-toolbox", "logstash", "mariadb",
		"memcached", "openvswitch", "proxysql", "qdrouterd", "rabbitmq",
		"redis", "skydive", "storm", "tgtd",
	},
	"main": {
		"ceilometer", "cinder", "glance", "heat", "horizon", "iscsi",
		"keystone", "neutron", "nova-", "placement", "swift",
	},
	"aux": {
		"aodh", "blazar", "cloudkitty", "designate", "freezer", "gnocchi",
		"influxdb", "ironic", "kafka", "kuryr", "magnum", "manila",
		"masakari", "mistral", "monasca", "murano", "octavia", "redis",
		"sahara", "senlin", "solum", "tacker", "telegraf", "trove",
		"vitrage", "zookeeper", "zun",
	},
	"default": {
		"cron", "kolla-toolbox", "fluentd", "glance", "haproxy", "heat",
		"horizon", "keepalived", "keystone", "mariadb", "memcached",
		"neutron", "nova-", "placement", "proxysql", "openvswitch",
		"rabbitmq",
	},
}

// Source describes where the source tarball of an image comes from.
type Source struct {
	Type      string `json:"type" yaml:"type"`
	Location  string `json:"location" yaml:"location"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// Config is the validated configuration of one run. It is built once at
// startup and never mutated afterwards.
type Config struct {
	// Templates
	TemplateDirs []string
	WorkDir      string

	// Image naming
	Base             string
	BaseArch         string
	BaseImage        string
	BaseTag          string
	Namespace        string
	Registry         string
	ImagePrefix      string
	Tag              string
	InstallType      string
	OpenStackRelease string
	Maintainer       string

	// Selection
	Regex             []string
	Profiles          []string
	SkipParents       bool
	SkipExisting      bool
	EnableUnbuildable bool

	// Scheduling
	Threads     int
	PushThreads int
	Retries     int
	Timeout     time.Duration
	Push        bool
	PushSkipped bool

	// Backend
	Cache       bool
	Pull        bool
	Keep        bool
	Quiet       bool
	NetworkMode string
	BuildArgs   map[string]string
	LogsDir     string

	// Output
	Format           string
	Summary          bool
	SaveDependency   string
	ListImages       bool
	ListDependencies bool
	TemplateOnly     bool
	TraceFile        string

	// Process
	LogLevel        string
	LogFormat       string
	HealthcheckPort int

	// Tables
	ProfileDefs map[string][]string
	Users       map[string]User
	Sources     map[string]Source
}

// Default returns the built-in configuration.
func Default() Config {
	profiles := make(map[string][]string, len(DefaultProfiles))
	for k, v := range DefaultProfiles {
		profiles[k] = append([]string(nil), v...)
	}
	users := make(map[string]User, len(DefaultUsers))
	for k, v := range DefaultUsers {
		users[k] = v
	}
	return Config{
		TemplateDirs:     []string{"docker"},
		Base:             "centos",
		BaseArch:         HostArch(),
		Namespace:        "kolla",
		Tag:              "latest",
		InstallType:      "source",
		OpenStackRelease: "master",
		Maintainer:       "stackbuild project",
		Threads:          8,
		PushThreads:      1,
		Retries:          3,
		Timeout:          120 * time.Second,
		Cache:            true,
		Pull:             true,
		NetworkMode:      "host",
		BuildArgs:        map[string]string{},
		Format:           "json",
		Summary:          true,
		LogLevel:         "info",
		LogFormat:        "text",
		ProfileDefs:      profiles,
		Users:            users,
		Sources:          map[string]Source{},
	}
}

// HostArch maps GOARCH to the distro naming of the build host.
func HostArch() string {
	if runtime.GOARCH == "arm64" {
		return "aarch64"
	}
	return "x86_64"
}

// Validate checks every value and fills base image defaults. It returns a
// configuration error describing the first problem found.
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return buildererr.Config("threads must be at least 1, got %d", c.Threads)
	}
	if c.PushThreads < 1 {
		return buildererr.Config("push-threads must be at least 1, got %d", c.PushThreads)
	}
	if c.Retries < 0 {
		return buildererr.Config("retries must not be negative, got %d", c.Retries)
	}
	if c.Timeout < time.Second {
		return buildererr.Config("timeout must be at least 1s, got %s", c.Timeout)
	}
	if err := oneOf("base", c.Base, Bases); err != nil {
		return err
	}
	if err := oneOf("base-arch", c.BaseArch, Arches); err != nil {
		return err
	}
	if err := oneOf("format", c.Format, Formats); err != nil {
		return err
	}
	if err := oneOf("install-type", c.InstallType, InstallType); err != nil {
		return err
	}
	if err := oneOf("log-level", c.LogLevel, []string{"debug", "info", "warn", "error"}); err != nil {
		return err
	}
	if err := oneOf("log-format", c.LogFormat, []string{"text", "json"}); err != nil {
		return err
	}
	if len(c.TemplateDirs) == 0 {
		return buildererr.Config("at least one template directory is required")
	}
	if c.WorkDir != "" {
		// Rendering replaces <work-dir>/<image>, which must never be a template.
		for _, root := range c.TemplateDirs {
			if within(c.WorkDir, root) {
				return buildererr.Config("work-dir %s must not be or contain template directory %s", c.WorkDir, root)
			}
		}
	}
	if c.Namespace == "" {
		return buildererr.Config("namespace must not be empty")
	}
	for _, r := range c.Regex {
		if _, err := regexp.Compile(r); err != nil {
			return buildererr.Config("invalid image pattern %q: %v", r, err)
		}
	}
	for _, p := range c.Profiles {
		if _, ok := c.ProfileDefs[p]; !ok {
			return buildererr.Config("unknown profile %q (known: %s)", p, strings.Join(c.ProfileNames(), ", "))
		}
	}
	for name, src := range c.Sources {
		if err := oneOf("source "+name+" type", src.Type, []string{"url", "git", "local"}); err != nil {
			return err
		}
	}
	if c.BaseImage == "" {
		c.BaseImage = DefaultBaseImages[c.Base].Name
	}
	if c.BaseTag == "" {
		if def, ok := DefaultBaseImages[c.Base]; ok && c.BaseImage == def.Name {
			c.BaseTag = def.Tag
		}
	}
	return nil
}

// ProfileNames returns the known profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.ProfileDefs))
	for n := range c.ProfileDefs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// QualifiedNamespace is the namespace with the registry in front when one
// is set, e.g. "quay.io/kolla".
func (c *Config) QualifiedNamespace() string {
	if c.Registry != "" {
		return c.Registry + "/" + c.Namespace
	}
	return c.Namespace
}

// RepositoryPrefix is prepended to every image name, e.g.
// "quay.io/kolla/centos-source-".
func (c *Config) RepositoryPrefix() string {
	return c.QualifiedNamespace() + "/" + c.ImagePrefix
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if a == value {
			return nil
		}
	}
	return buildererr.Config("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

// String renders the fields that matter when reading a log line.
func (c Config) String() string {
	return fmt.Sprintf("base=%s/%s namespace=%s tag=%s threads=%d push-threads=%d retries=%d timeout=%s",
		c.Base, c.BaseArch, c.Namespace, c.Tag, c.Threads, c.PushThreads, c.Retries, c.Timeout)
}
