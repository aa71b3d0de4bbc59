package render

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/specialistvlad/stackbuild/internal/config"
)

// Variables builds the template variables of a run.
func Variables(cfg *config.Config) map[string]cty.Value {
	users := make(map[string]cty.Value, len(cfg.Users))
	for name, u := range cfg.Users {
		users[name] = cty.ObjectVal(map[string]cty.Value{
			"uid":   cty.NumberIntVal(int64(u.UID)),
			"gid":   cty.NumberIntVal(int64(u.GID)),
			"group": cty.StringVal(u.Group),
		})
	}

	sources := make(map[string]cty.Value, len(cfg.Sources))
	for name, s := range cfg.Sources {
		sources[name] = cty.ObjectVal(map[string]cty.Value{
			"type":      cty.StringVal(s.Type),
			"location":  cty.StringVal(s.Location),
			"reference": cty.StringVal(s.Reference),
		})
	}

	args := make(map[string]cty.Value, len(cfg.BuildArgs))
	for k, v := range cfg.BuildArgs {
		args[k] = cty.StringVal(v)
	}

	return map[string]cty.Value{
		"base_distro":       cty.StringVal(cfg.Base),
		"base_arch":         cty.StringVal(cfg.BaseArch),
		"base_image":        cty.StringVal(cfg.BaseImage),
		"base_tag":          cty.StringVal(cfg.BaseTag),
		"namespace":         cty.StringVal(cfg.QualifiedNamespace()),
		"registry":          cty.StringVal(cfg.Registry),
		"image_prefix":      cty.StringVal(cfg.ImagePrefix),
		"tag":               cty.StringVal(cfg.Tag),
		"install_type":      cty.StringVal(cfg.InstallType),
		"openstack_release": cty.StringVal(cfg.OpenStackRelease),
		"maintainer":        cty.StringVal(cfg.Maintainer),
		"repository_prefix": cty.StringVal(cfg.RepositoryPrefix()),
		"users":             cty.ObjectVal(users),
		"sources":           cty.ObjectVal(sources),
		"build_args":        cty.ObjectVal(args),
	}
}

func functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":   stdlib.UpperFunc,
		"lower":   stdlib.LowerFunc,
		"join":    stdlib.JoinFunc,
		"format":  stdlib.FormatFunc,
		"replace": stdlib.ReplaceFunc,
		"trim":    stdlib.TrimSpaceFunc,
	}
}
