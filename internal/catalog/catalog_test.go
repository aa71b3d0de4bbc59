package catalog

import (
	"context"
	"testing"

	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/ctxlog"
	"github.com/specialistvlad/stackbuild/internal/image"
	"github.com/specialistvlad/stackbuild/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defs(pairs ...string) []render.Definition {
	var out []render.Definition
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, render.Definition{Name: pairs[i], Parent: pairs[i+1]})
	}
	return out
}

func names(imgs []*image.Image) []string {
	var out []string
	for _, i := range imgs {
		out = append(out, i.Name)
	}
	return out
}

func TestLoad(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	c, err := Load(ctx, defs(
		"nova-api", "nova-base",
		"base", "",
		"nova-base", "openstack-base",
		"openstack-base", "base",
		"nova-compute", "nova-base",
		"keystone", "openstack-base",
		"mariadb", "base",
		"external", "",
	))
	require.NoError(t, err)

	assert.Equal(t, 8, c.Len())
	assert.Equal(t, []string{"base", "external", "keystone", "mariadb", "nova-api", "nova-base", "nova-compute", "openstack-base"}, c.Names())
	assert.Equal(t, []string{"base", "external"}, names(c.Roots()))

	base, ok := c.Get("base")
	require.True(t, ok)
	assert.Equal(t, []string{"mariadb", "openstack-base"}, names(base.Children))

	assert.Equal(t, []string{"nova-base", "openstack-base", "base"}, names(c.Ancestors("nova-api")))
	assert.Empty(t, c.Ancestors("base"))
	assert.Nil(t, c.Ancestors("missing"))

	nova, ok := c.Get("nova-base")
	require.True(t, ok)
	assert.Equal(t, []string{"nova-api", "nova-compute"}, names(nova.Children))
}

func TestLoadErrors(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	cases := []struct {
		name string
		defs []render.Definition
		want string
	}{
		{"unknown parent", defs("nova-api", "nova-base"), `image "nova-api" references unknown parent "nova-base"`},
		{"duplicate", defs("base", "", "base", ""), `image "base" is defined more than once`},
		{"self parent", defs("base", "base"), `image "base" is its own parent`},
		{"cycle", defs("a", "b", "b", "c", "c", "a", "root", ""), "dependency cycle between images"},
		{"unnamed", []render.Definition{{Source: "/tmp/x"}}, "without a name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(ctx, tc.defs)
			require.Error(t, err)
			assert.ErrorIs(t, err, buildererr.ErrDefinition)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(ctxlog.Discard(context.Background()), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Roots())
}
