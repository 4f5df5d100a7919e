// Package version provides build-time version information for feedscroll.
//
// Variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/feedscroll/internal/version.Version=1.0.0 ..."
//
// Builds without ldflags (go install) fall back to the module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables set via ldflags
var (
	// Version is the semantic version (e.g., "1.0.0" or "1.0.0-dev.5+abc123")
	Version = "dev"

	// Commit is the git commit SHA
	Commit = "unknown"

	// Dirty indicates if the working tree had uncommitted changes
	Dirty = "false"

	// BuildDate is the UTC build timestamp in RFC3339 format
	BuildDate = "unknown"
)

// Info contains structured version information
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Dirty     bool   `json:"dirty" yaml:"dirty"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the current version information
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if info.Version == "dev" {
		fillFromBuildInfo(&info)
	}
	return info
}

func fillFromBuildInfo(info *Info) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = strings.TrimPrefix(v, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				info.Dirty = true
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
}

// String returns a single-line version string
func String() string {
	info := Get()
	v := info.Version
	if info.Dirty {
		v += "-dirty"
	}
	return v
}

// UserAgent identifies feedscroll in outgoing requests.
func UserAgent() string {
	return "feedscroll/" + String()
}

// Full returns a multi-line version string with all details
func Full() string {
	info := Get()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("feedscroll %s\n", String()))
	sb.WriteString(fmt.Sprintf("  Commit:     %s\n", info.Commit))
	if info.Dirty {
		sb.WriteString("  Dirty:      yes\n")
	}
	sb.WriteString(fmt.Sprintf("  Built:      %s\n", info.BuildDate))
	sb.WriteString(fmt.Sprintf("  Go version: %s\n", info.GoVersion))
	sb.WriteString(fmt.Sprintf("  OS/Arch:    %s", info.Platform))
	return sb.String()
}
