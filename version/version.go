package version

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/kbukum/boundguard/version.Version=v1.2.0".
var (
	Version   = "dev"
	GitCommit = ""
	GitBranch = ""
	BuildTime = ""
)

// tracked lists the module prefixes whose versions are reported in Info.Stack.
var tracked = []string{
	"github.com/gin-gonic/gin",
	"github.com/redis/go-redis/v9",
	"github.com/prometheus/client_golang",
	"go.opentelemetry.io/otel",
	"golang.org/x/time",
}

// Info describes the running binary.
type Info struct {
	Version   string            `json:"version" yaml:"version"`
	GitCommit string            `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	GitBranch string            `json:"git_branch,omitempty" yaml:"git_branch,omitempty"`
	BuildTime string            `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string            `json:"go_version" yaml:"go_version"`
	Module    string            `json:"module,omitempty" yaml:"module,omitempty"`
	Dirty     bool              `json:"dirty" yaml:"dirty"`
	Stack     map[string]string `json:"stack,omitempty" yaml:"stack,omitempty"`
}

// Get returns the version information, filling gaps from the embedded
// build info when the ldflags were not set.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildTime: BuildTime,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	info.Module = bi.Main.Path
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortCommit(s.Value)
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		}
	}
	info.Stack = stack(bi.Deps)
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func stack(deps []*debug.Module) map[string]string {
	out := make(map[string]string)
	for _, d := range deps {
		for _, prefix := range tracked {
			if d.Path == prefix {
				out[d.Path] = d.Version
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Short returns version[-commit][-dirty].
func (i Info) Short() string {
	s := i.Version
	if i.GitCommit != "" {
		s += "-" + i.GitCommit
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}

// IsRelease reports whether the binary was built from a clean tag without a
// pre-release or pseudo-version suffix.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !i.Dirty && !strings.Contains(i.Version, "-")
}

// String renders the multi-line form printed by `boundguard version`.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "boundguard %s\n", i.Short())
	if i.GitBranch != "" {
		fmt.Fprintf(&b, "  branch:  %s\n", i.GitBranch)
	}
	if i.BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, i.BuildTime); err == nil {
			fmt.Fprintf(&b, "  built:   %s\n", t.UTC().Format(time.DateTime))
		} else {
			fmt.Fprintf(&b, "  built:   %s\n", i.BuildTime)
		}
	}
	if i.GoVersion != "" {
		fmt.Fprintf(&b, "  go:      %s\n", i.GoVersion)
	}
	paths := make([]string, 0, len(i.Stack))
	for p := range i.Stack {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "  %s %s\n", p, i.Stack[p])
	}
	return b.String()
}
