// Package version reports what build of burrow is running.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule = "pkt.systems/burrow"
	unknown       = "v0.0.0-unknown"
	dirtySuffix   = "+dirty"
)

// buildVersion is set via -ldflags "-X pkt.systems/burrow/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module    string `json:"module"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Describe returns build details for the version command and the HTTP host.
func Describe() Info {
	info, _ := debug.ReadBuildInfo()
	vcs := readVCS(info)
	return Info{
		Module:    Module(),
		Version:   resolve(info, true),
		GoVersion: runtime.Version(),
		Revision:  vcs.revision,
		Modified:  vcs.modified,
	}
}

// Current returns the version without a dirty marker.
func Current() string {
	info, _ := debug.ReadBuildInfo()
	return resolve(info, false)
}

// CurrentWithDirty returns the version, marked +dirty for builds from a
// modified tree.
func CurrentWithDirty() string {
	info, _ := debug.ReadBuildInfo()
	return resolve(info, true)
}

// UserAgent returns the product token sent by network capabilities.
func UserAgent() string {
	return "burrow/" + strings.TrimPrefix(Current(), "v")
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// resolve picks, in order, the linker-injected version, the module version
// and a pseudo-version built from VCS stamps.
func resolve(info *debug.BuildInfo, dirty bool) string {
	v := strings.TrimSpace(buildVersion)
	if v == "" && info != nil {
		if mv := strings.TrimSpace(info.Main.Version); mv != "(devel)" {
			v = mv
		}
	}
	if v == "" {
		v = pseudoFromBuildInfo(info, dirty)
	}
	if v == "" {
		return unknown
	}
	if !dirty {
		v = strings.TrimSuffix(v, dirtySuffix)
	}
	return v
}

type vcsStamp struct {
	revision string
	at       time.Time
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsStamp {
	var out vcsStamp
	if info == nil {
		return out
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			out.revision = s.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				out.at = t.UTC()
			}
		case "vcs.modified":
			out.modified = s.Value == "true"
		}
	}
	return out
}

func pseudoFromBuildInfo(info *debug.BuildInfo, dirty bool) string {
	vcs := readVCS(info)
	if vcs.revision == "" || vcs.at.IsZero() {
		return ""
	}
	rev := vcs.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "v0.0.0-" + vcs.at.Format("20060102150405") + "-" + rev
	if vcs.modified && dirty {
		v += dirtySuffix
	}
	return v
}
