package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetPrefersLdflags(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origDate }()

	Version, Commit, BuildDate = "1.2.3", "abc123", "2026-01-02T03:04:05Z"
	info := Get()

	if info.Version != "1.2.3" || info.Commit != "abc123" || info.BuildDate != "2026-01-02T03:04:05Z" {
		t.Errorf("ldflags values should win, got %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion should be %q, got %q", runtime.Version(), info.GoVersion)
	}
	if !strings.HasPrefix(info.String(), "stasis 1.2.3 (commit: abc123") {
		t.Errorf("unexpected String(): %q", info.String())
	}
}
