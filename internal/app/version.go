package app

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/tejashwikalptaru/adzantune/internal/app.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
}

// GetVersionInfo returns the ldflags values, falling back to the module
// build info for binaries installed with go install.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

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
			if info.GitCommit == "unknown" && len(s.Value) >= 7 {
				info.GitCommit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// FullString is the one-line banner printed by "adzantune version".
func (v VersionInfo) FullString() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s)", AppName, v.Version, v.GitCommit, v.BuildTime, v.GoVersion)
}

// LogAttr groups the version fields for the start-up log line.
func (v VersionInfo) LogAttr() slog.Attr {
	return slog.Group("build",
		slog.String("version", v.Version),
		slog.String("commit", v.GitCommit),
		slog.String("go", v.GoVersion))
}
