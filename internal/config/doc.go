// Package config holds the immutable run configuration and the HCL config
// file format that feeds it.
//
// Values are layered (highest wins): command-line flags, STACKBUILD_*
// environment variables, the HCL config file, then the built-in defaults in
// this package. The layering itself happens in the cli package; this package
// only defines the shape, the defaults and validation.
package config
