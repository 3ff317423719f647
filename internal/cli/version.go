package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags at release time. Unset values are filled from the build
// info the Go toolchain embeds.
var (
	Version   string
	GitCommit string
	BuildDate string
)

type buildInfo struct {
	version, commit, date, goVersion string
	modified                         bool
}

func currentBuild() buildInfo {
	b := buildInfo{version: Version, commit: GitCommit, date: BuildDate, goVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.merge(info)
	}
	return b
}

// merge fills fields the linker flags left empty.
func (b buildInfo) merge(info *debug.BuildInfo) buildInfo {
	if b.version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}
	if info.GoVersion != "" {
		b.goVersion = info.GoVersion
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.commit == "" {
				b.commit = s.Value
			}
		case "vcs.time":
			if b.date == "" {
				b.date = s.Value
			}
		case "vcs.modified":
			b.modified = s.Value == "true"
		}
	}
	return b
}

func (b buildInfo) write(w io.Writer) {
	commit := orUnknown(b.commit)
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if b.modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "voxsh %s\n", orDefault(b.version, "dev"))
	fmt.Fprintf(w, "  Commit: %s\n", commit)
	fmt.Fprintf(w, "  Built:  %s\n", orUnknown(b.date))
	fmt.Fprintf(w, "  Go:     %s %s/%s\n", b.goVersion, runtime.GOOS, runtime.GOARCH)
}

func orUnknown(s string) string { return orDefault(s, "unknown") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print voxsh version and build details",
	Run: func(cmd *cobra.Command, args []string) {
		currentBuild().write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
