package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	Modified  bool      `json:"modified,omitempty"`
	GoVersion string    `json:"goVersion,omitempty"`
	Built     time.Time `json:"built,omitzero"`
}

// Get merges the ldflags values with the VCS stamps from the build info.
// ldflags win where both are present.
func Get() Info {
	info := Info{Version: Version, Commit: Commit}
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		info.Built = t
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			if info.Built.IsZero() {
				info.Built, _ = time.Parse(time.RFC3339, s.Value)
			}
		}
	}
	return info
}

// Short returns version[-commit][-dirty] with the commit cut to seven
// characters.
func (i Info) Short() string {
	out := i.Version
	if i.Commit != "" {
		out += "-" + i.Commit[:min(7, len(i.Commit))]
	}
	if i.Modified {
		out += "-dirty"
	}
	return out
}

// String is the line printed by the version command.
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Short())
	if i.GoVersion != "" {
		fmt.Fprintf(&b, " %s", i.GoVersion)
	}
	if !i.Built.IsZero() {
		fmt.Fprintf(&b, " (built %s)", i.Built.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Short is Get().Short().
func Short() string { return Get().Short() }
