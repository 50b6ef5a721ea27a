// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/javanstorm/stasis/internal/version.Version=...".
// Commit and BuildDate fall back to the VCS stamp of the module when unset.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the resolved build information.
type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

// Get resolves build information from ldflags and, failing that, from the
// build info embedded by the Go toolchain.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("stasis %s (commit: %s, built: %s, %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion)
}
