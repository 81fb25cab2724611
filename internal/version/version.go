// Package version holds the build version reported over the wire and by
// the CLI.
package version

// Version is overridden at build time via
// -ldflags "-X github.com/hostlink/hostlink/internal/version.Version=...".
var Version = "1.0.0"
