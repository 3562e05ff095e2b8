// Package version carries build-time version information.
package version

// Version is the chiropctl version, overridden at build time via
// -ldflags "-X github.com/grid5000/chiropctl/pkg/version.Version=...".
var Version = "dev"
