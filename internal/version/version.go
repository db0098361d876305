package version

// App is the binary name used in version output.
const App = "ferry"

var (
	// Version is the semantic version (injected at build time).
	Version = "dev"
	// Commit is the git commit SHA (injected at build time).
	Commit = "unknown"
	// BuildDate is the build timestamp (injected at build time).
	BuildDate = "unknown"
)

// Info returns formatted version information.
func Info() string {
	return Version + " (" + Commit + ", built " + BuildDate + ")"
}

// String returns the full version line, e.g. "ferry dev (unknown, built unknown)".
func String() string {
	return App + " " + Info()
}
