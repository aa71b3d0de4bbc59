package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/stackbuild/internal/catalog"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/render"
	"github.com/stretchr/testify/require"
)

// T is the subset of testing.TB that rapid.T also satisfies.
type T interface {
	require.TestingT
	Helper()
}

// LoadCatalog builds a catalog from name/parent pairs. Every image gets the
// reference "test/<name>:latest".
func LoadCatalog(t T, pairs ...string) *catalog.Catalog {
	t.Helper()
	require.Zero(t, len(pairs)%2, "pairs must be name/parent")

	var defs []render.Definition
	for i := 0; i < len(pairs); i += 2 {
		defs = append(defs, render.Definition{
			Name:   pairs[i],
			Parent: pairs[i+1],
			Context: image.BuildContext{
				Repository: "test/" + pairs[i],
				Tag:        "latest",
			},
		})
	}
	c, err := catalog.Load(ctxlog.Discard(context.Background()), defs)
	require.NoError(t, err)
	return c
}

// KollaLikeCatalog is a small but realistic tree:
//
//	base ─┬─ openstack-base ─┬─ nova-base ─┬─ nova-api
//	      │                  │             └─ nova-compute
//	      │                  └─ keystone-base ── keystone
//	      ├─ mariadb
//	      └─ rabbitmq
func KollaLikeCatalog(t T) *catalog.Catalog {
	return LoadCatalog(t,
		"base", "",
		"openstack-base", "base",
		"nova-base", "openstack-base",
		"nova-api", "nova-base",
		"nova-compute", "nova-base",
		"keystone-base", "openstack-base",
		"keystone", "keystone-base",
		"mariadb", "base",
		"rabbitmq", "base",
	)
}

// WriteTree writes files (relative path to content) below a fresh temp dir
// and returns the dir.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}
