package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	_, _, err := Parse(args, out)
	return out, err
}

func TestParse_Defaults(t *testing.T) {
	cfg, shouldExit, err := Parse(nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, shouldExit)

	assert.Equal(t, []string{"docker"}, cfg.TemplateDirs)
	assert.Equal(t, "centos", cfg.Base)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 1, cfg.PushThreads)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.True(t, cfg.Cache)
	assert.Empty(t, cfg.Regex)
	assert.Equal(t, "stream9", cfg.BaseTag)
}

func TestParse_Flags(t *testing.T) {
	cfg, _, err := Parse([]string{
		"--threads", "4", "--push-threads=2", "-r", "0", "--timeout", "30",
		"--push", "--skip-existing", "--base", "Ubuntu", "--tag", "2024.1",
		"--registry", "quay.io", "--profile", "main,infra", "--build-arg", "PIP_INDEX=http://pypi/simple,x",
		"--build-arg", "EMPTY=", "--format", "YAML", "-d", "--cache=false",
		"nova", "^keystone$",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 2, cfg.PushThreads)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.Push)
	assert.True(t, cfg.SkipExisting)
	assert.Equal(t, "ubuntu", cfg.Base)
	assert.Equal(t, "22.04", cfg.BaseTag)
	assert.Equal(t, "quay.io/kolla/", cfg.RepositoryPrefix())
	assert.Equal(t, []string{"main", "infra"}, cfg.Profiles)
	assert.Equal(t, "http://pypi/simple,x", cfg.BuildArgs["PIP_INDEX"])
	assert.Contains(t, cfg.BuildArgs, "EMPTY")
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Cache)
	assert.Equal(t, []string{"nova", "^keystone$"}, cfg.Regex)
}

func TestParse_Environment(t *testing.T) {
	t.Setenv("STACKBUILD_THREADS", "3")
	t.Setenv("STACKBUILD_PUSH_THREADS", "5")
	t.Setenv("STACKBUILD_SKIP_PARENTS", "true")
	t.Setenv("STACKBUILD_NAMESPACE", "openstack")

	cfg, _, err := Parse([]string{"--threads", "6"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Threads, "flags win over the environment")
	assert.Equal(t, 5, cfg.PushThreads)
	assert.True(t, cfg.SkipParents)
	assert.Equal(t, "openstack", cfg.Namespace)
}

func TestParse_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackbuild.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
settings {
  threads      = 12
  push_threads = 4
  namespace    = "lab"
  retries      = 1
  build_args = {
    HTTP_PROXY = "http://proxy:3128"
  }
}

profile "gpu" {
  images = ["nova-compute", "cyborg"]
}

user "cyborg-user" {
  uid   = 42499
  gid   = 42499
  group = "cyborg"
}
`), 0o644))
	t.Setenv("STACKBUILD_RETRIES", "2")

	cfg, _, err := Parse([]string{"--config", path, "--namespace", "prod", "--profile", "gpu"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Threads)
	assert.Equal(t, 4, cfg.PushThreads)
	assert.Equal(t, "prod", cfg.Namespace, "flags win over the file")
	assert.Equal(t, 2, cfg.Retries, "environment wins over the file")
	assert.Equal(t, "http://proxy:3128", cfg.BuildArgs["HTTP_PROXY"])
	assert.Equal(t, []string{"nova-compute", "cyborg"}, cfg.ProfileDefs["gpu"])
	assert.Contains(t, cfg.ProfileDefs, "main", "built-in profiles are kept")
	assert.Equal(t, 42499, cfg.Users["cyborg-user"].UID)
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"--help"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "--push-threads")
}

func TestParse_Version(t *testing.T) {
	out := &bytes.Buffer{}
	_, shouldExit, err := Parse([]string{"--version"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), Version)
}

func TestParse_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.hcl")
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--no-such-flag"}, "unknown flag: --no-such-flag"},
		{"bad int", []string{"--threads", "many"}, "invalid argument"},
		{"zero threads", []string{"--threads", "0"}, "threads must be at least 1"},
		{"bad format", []string{"--format", "xml"}, `invalid format "xml"`},
		{"bad log level", []string{"--log-level", "loud"}, `invalid log-level "loud"`},
		{"bad build arg", []string{"--build-arg", "NOVALUE"}, `invalid build-arg "NOVALUE"`},
		{"bad pattern", []string{"nova-("}, `invalid image pattern "nova-("`},
		{"missing config file", []string{"--config", missing}, "failed to parse config file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.args...)
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
