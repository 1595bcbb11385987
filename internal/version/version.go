// Package version carries the release version stamped into logs and the CLI.
package version

// Current is overridden at build time with -ldflags "-X ...version.Current=x.y.z".
var Current = "0.1.0"
