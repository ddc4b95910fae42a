package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polarsim/harness/internal/batch"
	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
)

var statusCaseDir string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the batch status of a case's submitted jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func registerStatusCommand(root *cobra.Command) {
	root.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusCaseDir, "case-dir", ".", "Case directory")
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := caseapi.Open(statusCaseDir)
	if err != nil {
		return err
	}

	recorded := c.Config[config.KeyJobIDs]
	if recorded == "" {
		fmt.Printf("case %s has no submitted jobs\n", c.ID)
		return nil
	}

	client, err := batch.ForSystem(c.Config[config.KeyBatchSystem])
	if err != nil {
		return err
	}
	for _, pair := range strings.Split(recorded, ",") {
		name, id, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		if strings.HasPrefix(id, "local.") || client == nil {
			fmt.Printf("%-20s %-14s ran locally\n", name, id)
			continue
		}
		status, err := client.Status(ctx, batch.JobID(id))
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %-14s %s\n", name, id, status)
	}
	return nil
}
