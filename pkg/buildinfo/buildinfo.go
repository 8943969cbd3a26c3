package buildinfo

import "runtime"

// These vars are set at build time via ldflags:
// -X github.com/NBISweden/timereport/pkg/buildinfo.Version=v1.2.0
// -X github.com/NBISweden/timereport/pkg/buildinfo.Commit=b806fe7
// -X github.com/NBISweden/timereport/pkg/buildinfo.BuildTime=2026-08-14T10:30:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for the CLI.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v1.2.0 (b806fe7, 2026-08-14T10:30:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}
