// Package render turns a tree of image templates into build contexts.
//
// An image is any directory holding a Dockerfile.tmpl; the directory's base
// name is the image name. Template roots are scanned in order and a later
// root replaces an earlier one's image of the same name, which is how
// override directories take precedence over the default tree.
//
// Templates use HCL template syntax:
//
//	FROM ${namespace}/${image_prefix}base:${tag}
//	%{ if base_distro == "ubuntu" }RUN apt-get update%{ endif }
//	ENV PATH=$${PATH}:/opt/bin
//
// A literal "${" in the Dockerfile is written "$${". The parent of an image
// is read from the first FROM line of the rendered Dockerfile. namespace
// already carries the registry when one is configured, so the line above
// names the same image as ${repository_prefix}base:${tag}.
//
// An optional image.hcl next to the template restricts where the image can
// be built:
//
//	image {
//	  bases       = ["centos", "rocky"]
//	  arches      = ["x86_64"]
//	  unbuildable = false
//	}
package render
