// Package version reports how the kiln binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

// These variables are set at build time using -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildTime is RFC3339.
	BuildTime = "unknown"
)

// Info contains version and build information
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Modified  bool      `json:"modified,omitempty" yaml:"modified,omitempty"`
	// Deps maps module paths of the transform libraries to their versions.
	Deps map[string]string `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// reported lists the modules whose versions affect build output.
var reported = []string{
	"github.com/evanw/esbuild",
	"github.com/tdewolff/minify/v2",
	"github.com/bmatcuk/doublestar/v4",
}

var buildInfo = sync.OnceValues(debug.ReadBuildInfo)

// Get returns the build information.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Deps:      make(map[string]string),
	}

	bi, ok := buildInfo()
	if !ok {
		return info
	}
	if info.Version == "" || info.Version == "dev" {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		}
	}
	for _, dep := range bi.Deps {
		for _, want := range reported {
			if dep.Path == want {
				info.Deps[dep.Path] = dep.Version
			}
		}
	}
	return info
}

// Short returns "v1.2.3", "v1.2.3 (abcdef0)" or "dev-abcdef0".
func Short() string {
	return Get().Short()
}

// Short formats the version for one-line display.
func (i Info) Short() string {
	if len(i.GitCommit) < 7 || i.GitCommit == "unknown" {
		return i.Version
	}
	commit := i.GitCommit[:7]
	if i.Version == "dev" {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}

// String returns a multi-line description.
func (i Info) String() string {
	parts := []string{"Version: " + i.Version}
	if i.GitCommit != "unknown" {
		commit := i.GitCommit
		if i.Modified {
			commit += " (modified)"
		}
		parts = append(parts, "Commit: "+commit)
	}
	if !i.BuildTime.IsZero() {
		parts = append(parts, "Built: "+i.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts, "Go: "+i.GoVersion, "Platform: "+i.Platform)

	deps := make([]string, 0, len(i.Deps))
	for path, v := range i.Deps {
		deps = append(deps, "  "+path+" "+v)
	}
	sort.Strings(deps)
	if len(deps) > 0 {
		parts = append(parts, "Transforms:")
		parts = append(parts, deps...)
	}
	return strings.Join(parts, "\n")
}

// IsRelease reports whether this is a tagged build rather than a dev or
// pseudo-version build.
func (i Info) IsRelease() bool {
	if i.Version == "dev" || strings.HasPrefix(i.Version, "dev-") {
		return false
	}
	parts := strings.Split(i.Version, "-")
	return len(parts) < 3 || len(parts[len(parts)-1]) != 12
}

func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
