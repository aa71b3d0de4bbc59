// Package cli turns command-line arguments, STACKBUILD_* environment
// variables and an optional HCL config file into a validated run
// configuration, and carries process exit codes back to main.
package cli
