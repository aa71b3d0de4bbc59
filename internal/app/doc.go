// Package app wires one stackbuild run together: it renders the image
// templates, loads the catalog, selects the working set, runs the build and
// push phases against a backend and writes the results. It is decoupled from
// the command line so it can be driven from tests with a fake backend.
package app
