package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, versionView{
				BuildInfo: BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate},
				GoVersion: runtime.Version(),
			})
		},
	}
}

type versionView struct {
	BuildInfo
	GoVersion string `json:"go_version"`
}

func (v versionView) String() string {
	return fmt.Sprintf("potencynet %s (commit: %s, built: %s, %s)", v.Version, v.Commit, v.BuildDate, v.GoVersion)
}
