package app

import (
	"fmt"
	"runtime/debug"
)

// Build information for `hal version`. Release builds set these with
//
//	go build -ldflags "-X github.com/hyperifyio/hal/internal/app.BuildVersion=v1.2.3 \
//	  -X github.com/hyperifyio/hal/internal/app.BuildCommit=$(git rev-parse HEAD)" ./cmd/hal
//
// Values left at their defaults are filled from the module build info.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// VersionString describes the running binary on one line.
func VersionString() string {
	version, commit, date := BuildVersion, BuildCommit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		version, commit, date = fillFromBuildInfo(info, version, commit, date)
	}
	return fmt.Sprintf("hal %s (commit %s, built %s)", version, commit, date)
}

func fillFromBuildInfo(info *debug.BuildInfo, version, commit, date string) (string, string, string) {
	if version == "0.0.0-dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return version, commit, date
}
