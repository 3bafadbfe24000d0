// Package version records build-time version metadata. The variables are
// overridden at build time via -ldflags.
package version

var (
	// Version is the semantic version of this build.
	Version = "v0.1.0-dev"
	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)

// Short returns the bare version string for headers and logs.
func Short() string {
	return Version
}

// Map returns all version fields for health endpoints.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"build_date": Date,
	}
}
