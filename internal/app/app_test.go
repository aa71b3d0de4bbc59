package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/config"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/status"
	"github.com/specialistvlad/stackbuild/internal/testutil"
)

// templates is a small kolla-like tree:
//
//	base
//	└── openstack-base
//	    ├── keystone
//	    └── nova-base
//	        └── nova-api
var templates = map[string]string{
	"base/Dockerfile.tmpl":           "FROM ${base_image}:${base_tag}\n",
	"openstack-base/Dockerfile.tmpl": "FROM ${repository_prefix}base:${tag}\n",
	"keystone/Dockerfile.tmpl":       "FROM ${repository_prefix}openstack-base:${tag}\n",
	"nova/nova-base/Dockerfile.tmpl": "FROM ${repository_prefix}openstack-base:${tag}\n",
	"nova/nova-api/Dockerfile.tmpl":  "FROM ${repository_prefix}nova-base:${tag}\nCOPY start.sh /\n",
	"nova/nova-api/start.sh":         "#!/bin/sh\n",
	"experimental/Dockerfile.tmpl":   "FROM ${repository_prefix}base:${tag}\n",
	"experimental/image.hcl":         "image {\n  unbuildable = true\n}\n",
}

type jsonResults struct {
	RunID string `json:"run_id"`
	Bad   map[string]struct {
		Status   string `json:"status"`
		Attempts int    `json:"attempts"`
		Detail   string `json:"detail"`
		Code     string `json:"code"`
	} `json:"bad"`
	Good      map[string]struct{ Status string } `json:"good"`
	Unmatched map[string]struct{ Status string } `json:"unmatched"`
	Skipped   map[string]struct{ Status string } `json:"skipped"`
	Push      map[string]struct{ OK bool }       `json:"push"`
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TemplateDirs = []string{testutil.WriteTree(t, templates)}
	cfg.WorkDir = t.TempDir()
	cfg.BaseArch = "x86_64"
	cfg.Summary = false
	cfg.LogLevel = "debug"
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

// setupApp creates an app with a fake backend and captured output.
func setupApp(t *testing.T, cfg *config.Config, be *testutil.FakeBackend) (*App, *bytes.Buffer, *testutil.SafeBuffer) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	a := NewApp(out, logs, cfg, WithBackend(be), WithRunID("test-run"))
	t.Cleanup(func() {
		if os.Getenv("STACKBUILD_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, out, logs
}

func decode(t *testing.T, out *bytes.Buffer) jsonResults {
	t.Helper()
	var res jsonResults
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	return res
}

func TestRun_BuildsWholeTree(t *testing.T) {
	be := testutil.NewFakeBackend(time.Millisecond)
	a, out, logs := setupApp(t, testConfig(t, nil), be)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Equal(t, 0, results.ExitCode())

	res := decode(t, out)
	assert.Equal(t, "test-run", res.RunID)
	assert.Len(t, res.Good, 5)
	assert.Empty(t, res.Bad)
	assert.Empty(t, res.Push)

	records := map[string]testutil.ExecutionRecord{}
	for _, r := range be.Builds() {
		records[r.Name] = r
	}
	require.Len(t, records, 5)
	assert.False(t, records["nova-base"].Start.Before(records["openstack-base"].End), "child started before parent finished")
	assert.False(t, records["nova-api"].Start.Before(records["nova-base"].End), "child started before parent finished")
	assert.Contains(t, logs.String(), "run_id=test-run")
	assert.Len(t, logs.LinesContaining("Building image."), 5)
}

func TestRun_RendersBuildContexts(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) { c.Tag = "2024.1" })
	a, _, _ := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	dockerfile, err := os.ReadFile(filepath.Join(cfg.WorkDir, "nova-api", "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, "FROM kolla/nova-base:2024.1\nCOPY start.sh /\n", string(dockerfile))
	assert.FileExists(t, filepath.Join(cfg.WorkDir, "nova-api", "start.sh"))
}

func TestRun_FailureSkipsDescendants(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	be.Failures["openstack-base"] = testutil.AlwaysFail
	cfg := testConfig(t, func(c *config.Config) { c.Retries = 1 })
	a, out, _ := setupApp(t, cfg, be)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, results.ExitCode())

	res := decode(t, out)
	assert.Len(t, res.Good, 1)
	require.Contains(t, res.Bad, "openstack-base")
	assert.Equal(t, "error", res.Bad["openstack-base"].Status)
	assert.Equal(t, 2, res.Bad["openstack-base"].Attempts)
	assert.Equal(t, buildererr.CodeBuild, res.Bad["openstack-base"].Code)
	for _, name := range []string{"keystone", "nova-base", "nova-api"} {
		require.Contains(t, res.Bad, name)
		assert.Equal(t, "parent_error", res.Bad[name].Status, name)
		assert.Zero(t, be.Attempts(name), name)
	}
}

func TestRun_PushesBuiltImages(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	be.PushFailures["keystone"] = true
	cfg := testConfig(t, func(c *config.Config) {
		c.Push = true
		c.PushThreads = 2
	})
	a, out, _ := setupApp(t, cfg, be)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, results.ExitCode(), "push failures do not fail the run")
	assert.Equal(t, []string{"keystone"}, results.PushFailures())

	res := decode(t, out)
	assert.Len(t, res.Push, 5)
	assert.False(t, res.Push["keystone"].OK)
	assert.True(t, res.Push["nova-api"].OK)
	assert.LessOrEqual(t, be.PeakPushing(), 2)
}

func TestRun_SelectionAndUnmatched(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) { c.Regex = []string{"^keystone$"} })
	a, out, _ := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	res := decode(t, out)
	assert.Len(t, res.Good, 3)
	assert.Contains(t, res.Good, "base")
	assert.Contains(t, res.Good, "openstack-base")
	assert.Contains(t, res.Unmatched, "nova-base")
	assert.Contains(t, res.Unmatched, "nova-api")
	assert.Equal(t, 0, be.Attempts("nova-api"))
}

func TestRun_YAMLFormatAndSummary(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) {
		c.Format = "yaml"
		c.Summary = true
	})
	a, out, logs := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "test-run", res["run_id"])
	assert.Contains(t, logs.String(), "built 5, skipped 0, failed 0, unmatched 0")
}

func TestRun_SavesDependencyGraph(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	path := filepath.Join(t.TempDir(), "deps.dot")
	cfg := testConfig(t, func(c *config.Config) {
		c.SaveDependency = path
		c.Format = "none"
	})
	a, out, _ := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph images")
	assert.Contains(t, string(data), "openstack-base")
}

func TestRun_ListImages(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) {
		c.Regex = []string{"nova-api"}
		c.ListImages = true
	})
	a, out, _ := setupApp(t, cfg, be)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, "base\nnova-api\nnova-base\nopenstack-base\n", out.String())
	assert.Empty(t, be.Builds())
}

func TestRun_ListDependencies(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) { c.ListDependencies = true })
	a, out, _ := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	want := "base\n" +
		"  openstack-base\n" +
		"    keystone\n" +
		"    nova-base\n" +
		"      nova-api\n"
	assert.Equal(t, want, out.String())
}

func TestRun_TemplateOnly(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) {
		c.TemplateOnly = true
		c.EnableUnbuildable = true
	})
	a, out, _ := setupApp(t, cfg, be)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, out.String())
	assert.Empty(t, be.Builds())
	assert.FileExists(t, filepath.Join(cfg.WorkDir, "experimental", "Dockerfile"))
}

func TestRun_TemporaryWorkDirRemoved(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, func(c *config.Config) { c.WorkDir = "" })
	a, _, _ := setupApp(t, cfg, be)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	builds := be.Builds()
	require.NotEmpty(t, builds)
	dir := a.cfg.WorkDir
	require.NotEmpty(t, dir)
	assert.NoDirExists(t, dir)
}

func TestRun_DefinitionError(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	cfg := testConfig(t, nil)
	broken := testutil.WriteTree(t, map[string]string{
		"broken/Dockerfile.tmpl": "FROM ${no_such_variable}\n",
	})
	cfg.TemplateDirs = append(cfg.TemplateDirs, broken)
	a, out, _ := setupApp(t, cfg, be)

	results, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, out.String())
}

func TestRun_Canceled(t *testing.T) {
	be := testutil.NewFakeBackend(0)
	be.Hang["openstack-base"] = true
	a, out, _ := setupApp(t, testConfig(t, nil), be)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		assert.Eventually(t, func() bool { return be.Attempts("openstack-base") > 0 }, 5*time.Second, time.Millisecond)
	}()

	results, err := a.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, results, "results of an interrupted run are still reported")
	assert.Equal(t, 1, results.ExitCode())
	assert.NotEmpty(t, out.String())
	assert.Contains(t, results.Good, "base")
	assert.Contains(t, results.Bad, "nova-api")
}

func TestStatusEndpoint(t *testing.T) {
	a, _, _ := setupApp(t, testConfig(t, nil), testutil.NewFakeBackend(0))
	srv := httptest.NewServer(a.mux())
	defer srv.Close()

	fetch := func() statusResponse {
		resp, err := http.Get(srv.URL + "/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			RunID  string `json:"run_id"`
			Images map[string]struct {
				Status string `json:"status"`
			} `json:"images"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		out := statusResponse{RunID: body.RunID, Images: map[string]status.Entry{}}
		for name, e := range body.Images {
			st, err := image.ParseStatus(e.Status)
			require.NoError(t, err)
			out.Images[name] = status.Entry{Status: st}
		}
		return out
	}

	before := fetch()
	assert.Equal(t, "test-run", before.RunID)
	assert.Empty(t, before.Images)

	tracker := status.New([]string{"base", "keystone"})
	tracker.Set("base", image.Built)
	a.tracker.Store(tracker)

	after := fetch()
	assert.Equal(t, image.Built, after.Images["base"].Status)
	assert.Equal(t, image.Unbuilt, after.Images["keystone"].Status)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("WARN", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger("nonsense", "text", &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
