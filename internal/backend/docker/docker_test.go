package docker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	dockerclient "github.com/fsouza/go-dockerclient"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu         sync.Mutex
	images     map[string]bool
	inspectErr error
	buildErr   error
	inspects   int
	builds     []dockerclient.BuildImageOptions
	pushes     []dockerclient.PushImageOptions
	auths      []dockerclient.AuthConfiguration
	output     string
}

func (f *fakeClient) InspectImage(name string) (*dockerclient.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspects++
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	if f.images[name] {
		return &dockerclient.Image{ID: "sha256:" + name}, nil
	}
	return nil, dockerclient.ErrNoSuchImage
}

func (f *fakeClient) BuildImage(opts dockerclient.BuildImageOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, opts)
	if f.output != "" && opts.OutputStream != nil {
		_, _ = opts.OutputStream.Write([]byte(f.output))
	}
	return f.buildErr
}

func (f *fakeClient) PushImage(opts dockerclient.PushImageOptions, auth dockerclient.AuthConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, opts)
	f.auths = append(f.auths, auth)
	return nil
}

func novaAPI() *image.Image {
	return image.New("nova-api", image.BuildContext{
		Dir:        "/work/nova-api",
		Dockerfile: "Dockerfile",
		Repository: "quay.io/kolla/nova-api",
		Tag:        "2024.1",
	})
}

func TestBuildOptions(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	client := &fakeClient{}
	b := New(client, Options{
		Cache:       false,
		Pull:        true,
		NetworkMode: "host",
		Quiet:       true,
		BuildArgs:   map[string]string{"B": "2", "A": "1"},
	})

	require.NoError(t, b.Build(ctx, novaAPI()))
	require.Len(t, client.builds, 1)
	opts := client.builds[0]
	assert.Equal(t, "quay.io/kolla/nova-api:2024.1", opts.Name)
	assert.Equal(t, "/work/nova-api", opts.ContextDir)
	assert.Equal(t, "Dockerfile", opts.Dockerfile)
	assert.True(t, opts.NoCache)
	assert.True(t, opts.Pull)
	assert.True(t, opts.RmTmpContainer)
	assert.Equal(t, "host", opts.NetworkMode)
	assert.Equal(t, []dockerclient.BuildArg{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}, opts.BuildArgs)
	assert.NotNil(t, opts.Context)

	present, err := b.Exists(ctx, "quay.io/kolla/nova-api:2024.1")
	require.NoError(t, err)
	assert.True(t, present, "a built image is present without asking the daemon")
	assert.Equal(t, 0, client.inspects)
}

func TestBuildError(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	client := &fakeClient{buildErr: errors.New("The command '/bin/sh -c false' returned a non-zero code: 1")}
	b := New(client, Options{Quiet: true})

	err := b.Build(ctx, novaAPI())
	assert.ErrorContains(t, err, "non-zero code")

	present, err := b.Exists(ctx, novaAPI().Context.Ref())
	require.NoError(t, err)
	assert.False(t, present)
}

func TestExistsCaches(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	client := &fakeClient{images: map[string]bool{"kolla/base:master": true}}
	b := New(client, Options{})

	for i := 0; i < 3; i++ {
		present, err := b.Exists(ctx, "kolla/base:master")
		require.NoError(t, err)
		assert.True(t, present)

		present, err = b.Exists(ctx, "kolla/missing:master")
		require.NoError(t, err)
		assert.False(t, present)
	}
	assert.Equal(t, 2, client.inspects)
}

func TestExistsError(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	b := New(&fakeClient{inspectErr: errors.New("daemon unreachable")}, Options{})
	_, err := b.Exists(ctx, "kolla/base:master")
	assert.ErrorContains(t, err, "inspect kolla/base:master: daemon unreachable")
}

func TestPushUsesRegistryAuth(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	client := &fakeClient{}
	b := New(client, Options{
		Quiet: true,
		Auth:  map[string]dockerclient.AuthConfiguration{"quay.io": {Username: "robot"}},
	})

	require.NoError(t, b.Push(ctx, novaAPI()))
	require.Len(t, client.pushes, 1)
	assert.Equal(t, "quay.io/kolla/nova-api", client.pushes[0].Name)
	assert.Equal(t, "2024.1", client.pushes[0].Tag)
	assert.Equal(t, "robot", client.auths[0].Username)
}

func TestLogsDir(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	client := &fakeClient{output: "Step 1/3 : FROM kolla/base\n"}
	b := New(client, Options{LogsDir: dir})

	require.NoError(t, b.Build(ctx, novaAPI()))
	data, err := os.ReadFile(filepath.Join(dir, "nova-api.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Step 1/3")
}

func TestOutputIsLoggedLineByLine(t *testing.T) {
	var buf testutil.SafeBuffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	client := &fakeClient{output: "Step 1/2 : FROM kolla/base\nStep 2/2 : RUN true\npartial"}
	b := New(client, Options{})

	require.NoError(t, b.Build(ctx, novaAPI()))
	out := buf.String()
	assert.Contains(t, out, `msg="Step 1/2 : FROM kolla/base"`)
	assert.Contains(t, out, `msg="Step 2/2 : RUN true"`)
	assert.Contains(t, out, "msg=partial")
	assert.Contains(t, out, "image=nova-api")
}

func TestRegistryHost(t *testing.T) {
	cases := map[string]string{
		"quay.io/kolla/nova-api":    "quay.io",
		"localhost:5000/kolla/base": "localhost:5000",
		"localhost/kolla/base":      "localhost",
		"kolla/nova-api":            "",
		"nova-api":                  "",
		"registry.local/kolla/nova": "registry.local",
	}
	for repo, want := range cases {
		assert.Equal(t, want, registryHost(repo), repo)
	}
}
