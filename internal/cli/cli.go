package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/specialistvlad/stackbuild/internal/config"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
)

// Version is set at link time.
var Version = "dev"

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "STACKBUILD"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) *ExitError {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Parse processes command-line arguments. It returns the validated
// configuration, true when the program should exit cleanly without running
// (help, version), or an ExitError.
func Parse(args []string, output io.Writer) (*config.Config, bool, error) {
	if args == nil {
		args = []string{}
	}

	var cfg *config.Config
	v := viper.New()
	cmd := newCommand(v, func(c *config.Config) { cfg = c })
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, usageError(err)
	}
	if cfg == nil {
		return nil, true, nil
	}
	return cfg, false, nil
}

func newCommand(v *viper.Viper, done func(*config.Config)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackbuild [flags] [IMAGE_REGEX...]",
		Short: "Build a tree of container images in dependency order",
		Long: `stackbuild renders Dockerfile templates into build contexts, works out
the parent/child tree from their FROM lines and builds the selected images
concurrently, parents first. Failed builds are retried; descendants of an
image that cannot be built are skipped. Built images can be pushed on a
separate pool while the build continues.

Every flag can also be set through a STACKBUILD_<FLAG> environment variable
(dashes become underscores) or in the settings block of the --config file.
Flags win over the environment, which wins over the file.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, patterns []string) error {
			cfg, err := load(cmd, v, patterns)
			if err != nil {
				return err
			}
			done(cfg)
			return nil
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func registerFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.String("config", "", "Path to an HCL config file.")

	// Templates and naming
	fs.StringSlice("docker-dir", def.TemplateDirs, "Template directories. Later directories override images of the same name.")
	fs.String("work-dir", "", "Directory for rendered build contexts. A temporary directory when empty.")
	fs.StringP("base", "b", def.Base, "Base distro: "+strings.Join(config.Bases, ", ")+".")
	fs.String("base-arch", def.BaseArch, "Target architecture: "+strings.Join(config.Arches, ", ")+".")
	fs.String("base-image", "", "Upstream base image. Defaults per distro.")
	fs.String("base-tag", "", "Upstream base image tag. Defaults per distro.")
	fs.StringP("namespace", "n", def.Namespace, "Image namespace.")
	fs.String("registry", "", "Registry host prepended to image names.")
	fs.String("image-prefix", "", "Prefix for every image name, e.g. centos-source-.")
	fs.String("tag", def.Tag, "Tag of the built images.")
	fs.StringP("install-type", "t", def.InstallType, "Install type: "+strings.Join(config.InstallType, ", ")+".")
	fs.String("openstack-release", def.OpenStackRelease, "Release exposed to templates.")
	fs.String("maintainer", def.Maintainer, "Maintainer label exposed to templates.")

	// Selection
	fs.StringSliceP("profile", "p", nil, "Build the images of these profiles.")
	fs.Bool("skip-parents", false, "Do not rebuild ancestors of matched images.")
	fs.Bool("skip-existing", false, "Skip images already present in the image store.")
	fs.Bool("enable-unbuildable", false, "Include images marked unbuildable.")

	// Scheduling
	fs.IntP("threads", "T", def.Threads, "Number of concurrent builds.")
	fs.Int("push-threads", def.PushThreads, "Number of concurrent pushes.")
	fs.IntP("retries", "r", def.Retries, "Retries for a failed build.")
	fs.Int("timeout", int(def.Timeout/time.Second), "Per-attempt build timeout in seconds.")
	fs.Bool("push", false, "Push built images.")
	fs.Bool("push-skipped", false, "Also push images skipped as already present.")

	// Backend
	fs.Bool("cache", def.Cache, "Use the layer cache.")
	fs.Bool("pull", def.Pull, "Pull newer versions of the upstream base image.")
	fs.Bool("keep", false, "Keep intermediate containers and the temporary work dir.")
	fs.BoolP("quiet", "q", false, "Discard build output.")
	fs.String("network-mode", def.NetworkMode, "Network mode of build containers.")
	fs.StringArray("build-arg", nil, "Build argument as KEY=VALUE. Repeatable.")
	fs.String("logs-dir", "", "Write each image's build output to <dir>/<image>.log.")

	// Output
	fs.StringP("format", "f", def.Format, "Result format: "+strings.Join(config.Formats, ", ")+".")
	fs.Bool("summary", def.Summary, "Print a summary table on stderr.")
	fs.String("save-dependency", "", "Write the dependency graph to this DOT file.")
	fs.BoolP("list-images", "l", false, "List the selected images and exit.")
	fs.BoolP("list-dependencies", "L", false, "Print the selected images as a tree and exit.")
	fs.Bool("template-only", false, "Render build contexts and exit.")
	fs.String("trace-file", "", "Write OpenTelemetry spans of builds and pushes to this file.")

	// Process
	fs.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error.")
	fs.String("log-format", def.LogFormat, "Log output format: text or json.")
	fs.BoolP("debug", "d", false, "Shorthand for --log-level=debug.")
	fs.Int("healthcheck-port", 0, "Port for the /health and /status server. 0 is disabled.")
}

// load resolves every option through viper and validates the result.
func load(cmd *cobra.Command, v *viper.Viper, patterns []string) (*config.Config, error) {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var file *config.File
	if path := v.GetString("config"); path != "" {
		var err error
		if file, err = config.LoadFile(ctx, path); err != nil {
			return nil, usageError(err)
		}
		if err := v.MergeConfigMap(file.Settings); err != nil {
			return nil, usageError(fmt.Errorf("failed to apply config file %s: %w", path, err))
		}
	}

	cfg := config.Default()
	cfg.TemplateDirs = v.GetStringSlice("docker-dir")
	cfg.WorkDir = v.GetString("work-dir")
	cfg.Base = strings.ToLower(v.GetString("base"))
	cfg.BaseArch = v.GetString("base-arch")
	cfg.BaseImage = v.GetString("base-image")
	cfg.BaseTag = v.GetString("base-tag")
	cfg.Namespace = v.GetString("namespace")
	cfg.Registry = v.GetString("registry")
	cfg.ImagePrefix = v.GetString("image-prefix")
	cfg.Tag = v.GetString("tag")
	cfg.InstallType = v.GetString("install-type")
	cfg.OpenStackRelease = v.GetString("openstack-release")
	cfg.Maintainer = v.GetString("maintainer")

	cfg.Regex = patterns
	cfg.Profiles = v.GetStringSlice("profile")
	cfg.SkipParents = v.GetBool("skip-parents")
	cfg.SkipExisting = v.GetBool("skip-existing")
	cfg.EnableUnbuildable = v.GetBool("enable-unbuildable")

	cfg.Threads = v.GetInt("threads")
	cfg.PushThreads = v.GetInt("push-threads")
	cfg.Retries = v.GetInt("retries")
	cfg.Timeout = time.Duration(v.GetInt("timeout")) * time.Second
	cfg.Push = v.GetBool("push")
	cfg.PushSkipped = v.GetBool("push-skipped")

	cfg.Cache = v.GetBool("cache")
	cfg.Pull = v.GetBool("pull")
	cfg.Keep = v.GetBool("keep")
	cfg.Quiet = v.GetBool("quiet")
	cfg.NetworkMode = v.GetString("network-mode")
	cfg.LogsDir = v.GetString("logs-dir")
	args, err := parseBuildArgs(v.GetStringSlice("build-arg"))
	if err != nil {
		return nil, usageError(err)
	}
	cfg.BuildArgs = args

	cfg.Format = strings.ToLower(v.GetString("format"))
	cfg.Summary = v.GetBool("summary")
	cfg.SaveDependency = v.GetString("save-dependency")
	cfg.ListImages = v.GetBool("list-images")
	cfg.ListDependencies = v.GetBool("list-dependencies")
	cfg.TemplateOnly = v.GetBool("template-only")
	cfg.TraceFile = v.GetString("trace-file")

	cfg.LogLevel = strings.ToLower(v.GetString("log-level"))
	cfg.LogFormat = strings.ToLower(v.GetString("log-format"))
	if v.GetBool("debug") {
		cfg.LogLevel = "debug"
	}
	cfg.HealthcheckPort = v.GetInt("healthcheck-port")

	if file != nil {
		file.MergeTables(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}

	logger.Debug("CLI parser finished successfully.", "config", cfg.String())
	return &cfg, nil
}

func parseBuildArgs(list []string) (map[string]string, error) {
	out := make(map[string]string, len(list))
	for _, kv := range list {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid build-arg %q: must be KEY=VALUE", kv)
		}
		out[k] = val
	}
	return out, nil
}
