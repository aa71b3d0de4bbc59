// Package docker implements the build backend on top of a Docker daemon.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dockerclient "github.com/fsouza/go-dockerclient"
	gocache "github.com/patrickmn/go-cache"

	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
)

// Client is the subset of the go-dockerclient API the backend calls.
type Client interface {
	InspectImage(name string) (*dockerclient.Image, error)
	BuildImage(opts dockerclient.BuildImageOptions) error
	PushImage(opts dockerclient.PushImageOptions, auth dockerclient.AuthConfiguration) error
}

// Options mirror the daemon-facing build settings.
type Options struct {
	Cache       bool
	Pull        bool
	Keep        bool
	Quiet       bool
	NetworkMode string
	BuildArgs   map[string]string
	// LogsDir, when set, receives one <image>.log file per image.
	LogsDir string
	// Auth maps a registry host to its credentials.
	Auth map[string]dockerclient.AuthConfiguration
}

const (
	presentTTL = 10 * time.Minute
	absentTTL  = 30 * time.Second
)

// Backend builds and pushes through a Docker daemon.
type Backend struct {
	client Client
	opts   Options
	// presence caches InspectImage lookups by reference.
	presence *gocache.Cache
}

// New creates a backend around client.
func New(client Client, opts Options) *Backend {
	return &Backend{
		client:   client,
		opts:     opts,
		presence: gocache.New(presentTTL, time.Minute),
	}
}

// NewFromEnv connects to the daemon named by DOCKER_HOST and friends and
// loads registry credentials from the Docker config file when present.
func NewFromEnv(ctx context.Context, opts Options) (*Backend, error) {
	client, err := dockerclient.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	if opts.Auth == nil {
		if auths, err := dockerclient.NewAuthConfigurationsFromDockerCfg(); err == nil {
			opts.Auth = auths.Configs
		} else {
			ctxlog.FromContext(ctx).Debug("No docker registry credentials loaded.", "error", err)
		}
	}
	return New(client, opts), nil
}

// Build implements backend.Backend.
func (b *Backend) Build(ctx context.Context, img *image.Image) error {
	out, closeOut, err := b.output(ctx, img.Name)
	if err != nil {
		return err
	}
	defer closeOut()

	err = b.client.BuildImage(dockerclient.BuildImageOptions{
		Context:             ctx,
		Name:                img.Context.Ref(),
		Dockerfile:          img.Context.Dockerfile,
		ContextDir:          img.Context.Dir,
		NoCache:             !b.opts.Cache,
		Pull:                b.opts.Pull,
		RmTmpContainer:      !b.opts.Keep,
		ForceRmTmpContainer: !b.opts.Keep,
		NetworkMode:         b.opts.NetworkMode,
		BuildArgs:           buildArgs(b.opts.BuildArgs),
		OutputStream:        out,
	})
	if err != nil {
		return err
	}
	b.presence.Set(img.Context.Ref(), true, presentTTL)
	return nil
}

// Push implements backend.Backend.
func (b *Backend) Push(ctx context.Context, img *image.Image) error {
	out, closeOut, err := b.output(ctx, img.Name)
	if err != nil {
		return err
	}
	defer closeOut()

	return b.client.PushImage(dockerclient.PushImageOptions{
		Context:      ctx,
		Name:         img.Context.Repository,
		Tag:          img.Context.Tag,
		OutputStream: out,
	}, b.opts.Auth[registryHost(img.Context.Repository)])
}

// Exists implements backend.Backend. Results are cached; a successful
// Build marks its reference present.
func (b *Backend) Exists(ctx context.Context, ref string) (bool, error) {
	if v, ok := b.presence.Get(ref); ok {
		return v.(bool), nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.client.InspectImage(ref)
	switch {
	case err == nil:
		b.presence.Set(ref, true, presentTTL)
		return true, nil
	case errors.Is(err, dockerclient.ErrNoSuchImage):
		b.presence.Set(ref, false, absentTTL)
		return false, nil
	default:
		return false, fmt.Errorf("inspect %s: %w", ref, err)
	}
}

// output returns where daemon output for one image goes.
func (b *Backend) output(ctx context.Context, name string) (io.Writer, func(), error) {
	if b.opts.LogsDir != "" {
		f, err := os.OpenFile(filepath.Join(b.opts.LogsDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open build log: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	if b.opts.Quiet {
		return io.Discard, func() {}, nil
	}
	w := &lineLogger{logger: ctxlog.FromContext(ctx).With("image", name)}
	return w, w.Flush, nil
}

func buildArgs(m map[string]string) []dockerclient.BuildArg {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]dockerclient.BuildArg, 0, len(keys))
	for _, k := range keys {
		args = append(args, dockerclient.BuildArg{Name: k, Value: m[k]})
	}
	return args
}

// registryHost returns the registry part of a repository, or "" for
// Docker Hub.
func registryHost(repo string) string {
	first, _, found := strings.Cut(repo, "/")
	if !found {
		return ""
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return ""
}
