package cli

import (
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information - typically set via ldflags at build time
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of km",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{Version, GitCommit, BuildDate, runtime.Version()}
		return newPrinter(cmd).print(info, func(w io.Writer) {
			printKV(w, "km", info.Version)
			printKV(w, "Git commit", info.GitCommit)
			printKV(w, "Build date", info.BuildDate)
			printKV(w, "Go", info.GoVersion)
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
