// Package version reports build information. Release builds set the
// variables with -ldflags "-X github.com/bdobrica/ilji/common/version.Version=...".
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	Version   = "v0.0.0-dev"
	GitCommit = ""
	BuildTime = ""
)

var fillOnce sync.Once

// fill takes the commit and time from the module's VCS stamp when ldflags
// did not set them.
func fill() {
	fillOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if GitCommit == "" && len(s.Value) >= 12 {
					GitCommit = s.Value[:12]
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = s.Value
				}
			}
		}
	})
}

// Commit returns the short commit hash, or "unknown".
func Commit() string {
	fill()
	if GitCommit == "" {
		return "unknown"
	}
	return GitCommit
}

// Built returns the build time, or "unknown".
func Built() string {
	fill()
	if BuildTime == "" {
		return "unknown"
	}
	return BuildTime
}

// String is the one-line version banner.
func String() string {
	return fmt.Sprintf("ilji %s (%s, built %s)", Version, Commit(), Built())
}
