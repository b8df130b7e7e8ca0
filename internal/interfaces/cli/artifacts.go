package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	"github.com/turtacn/potencynet/pkg/errors"
)

// NewArtifactsCmd creates the artifacts command group.
func NewArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect artifacts published to object storage",
	}
	cmd.AddCommand(newArtifactsListCmd())
	return cmd
}

func newArtifactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list RUN_ID",
		Short: "List the objects published for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if !cliCtx.Config.Storage.Enabled {
				return errors.New(errors.ErrCodeValidation, "storage.enabled is false")
			}
			repo, closeRepo, err := openArtifactRepository(cliCtx.Config.Storage, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer closeRepo()

			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			return listArtifacts(ctx, cmd, repo, args[0])
		},
	}
}

func listArtifacts(ctx context.Context, cmd *cobra.Command, repo minio.ArtifactRepository, runID string) error {
	objects, err := repo.List(ctx, runID)
	if err != nil {
		return err
	}
	return PrintResult(cmd, artifactList(objects))
}

type artifactList []minio.PublishedObject

func (l artifactList) String() string {
	if len(l) == 0 {
		return "no objects"
	}
	var sb strings.Builder
	for i, o := range l {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%-40s %10d  %s", o.Key, o.Size, o.ETag)
	}
	return sb.String()
}

func (l artifactList) TableHeaders() []string {
	return []string{"Name", "Key", "Size", "ETag"}
}

func (l artifactList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, o := range l {
		rows[i] = []string{o.Name, o.Key, strconv.FormatInt(o.Size, 10), o.ETag}
	}
	return rows
}
