package config

import (
	"log/slog"
	"runtime/debug"
)

// Set with -ldflags "-X weatherforecast/internal/config.version=1.2.3".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected metadata. When commit or
// buildTime were not injected, the VCS stamp the Go toolchain embeds is used.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromVCS(bi.Settings)
	}
	return info
}

func (b *BuildInfo) fillFromVCS(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "none" && s.Value != "" {
				b.Commit = s.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			}
		case "vcs.time":
			if b.BuildTime == "unknown" && s.Value != "" {
				b.BuildTime = s.Value
			}
		}
	}
}

// LogValue implements slog.LogValuer.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("build_time", b.BuildTime),
	)
}
