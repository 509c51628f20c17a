package version

import "fmt"

// Build metadata, set with -ldflags "-X" at release time
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent is sent with every backend request
func UserAgent() string {
	return "notera-capture/" + Version
}

// Full is the one-line build description printed by the version command
func Full() string {
	return fmt.Sprintf("notera-capture %s, commit %s, built at %s", Version, Commit, Date)
}
