package config

// Linker-injected build metadata variables. These are set at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X fieldwatch/internal/config.version=1.2.3 \
//	    -X fieldwatch/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X fieldwatch/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Default values are used during local development when ldflags are not set.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo constructs a BuildInfo from the linker-injected variables.
func buildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
