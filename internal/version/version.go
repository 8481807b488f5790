package version

import "fmt"

// Populated at build time via -ldflags "-X comoview/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// String renders the version with whatever build metadata is known.
func String() string {
	base := Version
	if GitCommit != "" {
		base += fmt.Sprintf(" (%s)", GitCommit)
	}
	if BuildTime != "" {
		base += fmt.Sprintf(" built %s", BuildTime)
	}
	return base
}
