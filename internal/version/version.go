package version

import "fmt"

// Set through -ldflags "-X .../internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent is the default User-Agent sent to the catalog API.
func UserAgent() string {
	return "drivewatch/" + Version
}
