// Package buildinfo carries the version stamped into the b2a binary.
package buildinfo

import "fmt"

// Set with -ldflags "-X github.com/cleared-dev/b2a/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the version line printed by b2a --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
