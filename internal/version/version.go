package version

var (
	// Version is the coordinator's version, overridden at build time via
	// -ldflags "-X github.com/ManuGH/infinitune/internal/version.Version=...".
	// The fallback is a pre-release placeholder, not a shipped tag.
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
