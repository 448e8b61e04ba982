// Package version reports the build identity of tclib binaries.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// buildVersion is set with -ldflags "-X pkt.systems/tclib/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Version   string `yaml:"version"`
	Module    string `yaml:"module"`
	Revision  string `yaml:"revision,omitempty"`
	GoVersion string `yaml:"go"`
	Modified  bool   `yaml:"modified,omitempty"`
}

// Current returns the version string of the running binary.
func Current() string {
	return Get().Version
}

// Get collects build information from ldflags and the embedded build info.
func Get() Info {
	info := Info{
		Version:   strings.TrimSpace(buildVersion),
		Module:    "pkt.systems/tclib",
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if info.Version == "" {
			info.Version = "v0.0.0-unknown"
		}
		return info
	}
	if p := strings.TrimSpace(bi.Main.Path); p != "" {
		info.Module = p
	}
	var vcsTime string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.Version == "" {
		if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
			info.Version = v
		} else {
			info.Version = pseudoVersion(info.Revision, vcsTime, info.Modified)
		}
	}
	return info
}

// pseudoVersion renders a Go-style pseudo version from VCS stamps.
func pseudoVersion(revision, vcsTime string, modified bool) string {
	stamp, err := time.Parse(time.RFC3339, vcsTime)
	if revision == "" || err != nil {
		return "v0.0.0-unknown"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + stamp.UTC().Format("20060102150405") + "-" + revision
	if modified {
		v += "+dirty"
	}
	return v
}
