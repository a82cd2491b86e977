package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ChaoticEnigma/zfs3backup/internal/app/status"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <filesystem>",
		Short: "Show the backup status of a filesystem's snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filesystem := args[0]

	w, err := buildWiring(ctx, filesystem, "")
	if err != nil {
		return err
	}
	defer w.storage.Close()

	svc := status.NewService(filesystem, w.snapshots, w.manifests, w.log)
	rows, err := svc.List(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backup status for %s@%s* on %s/%s\n",
		filesystem, w.cfg.SnapshotPrefix, w.cfg.Bucket, w.cfg.S3Prefix)

	table := tablewriter.NewTable(cmd.OutOrStdout())
	table.Header("NAME", "PARENT", "TYPE", "HEALTH", "LOCAL STATE", "SIZE")
	for _, row := range rows {
		if err := table.Append([]string{row.Name, row.Parent, row.Type, row.Health, row.LocalState, row.Size}); err != nil {
			return err
		}
	}
	return table.Render()
}
