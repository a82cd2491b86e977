package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChaoticEnigma/zfs3backup/internal/app/backup"
	"github.com/ChaoticEnigma/zfs3backup/pkg/utils"

	"github.com/juju/clock"
)

var backupFlags struct {
	snapshot   string
	full       bool
	compressor string
	dryRun     bool
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <filesystem>",
		Short: "Back up local ZFS snapshots to an S3 bucket",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackup,
	}

	cmd.Flags().StringVar(&backupFlags.snapshot, "snapshot", "", "snapshot to back up, defaults to latest")
	cmd.Flags().BoolVar(&backupFlags.full, "full", false, "perform a full backup instead of incremental")
	cmd.Flags().StringVar(&backupFlags.compressor, "compressor", "", "compressor for the send stream, \"none\" to disable")
	cmd.Flags().BoolVarP(&backupFlags.dryRun, "dry-run", "n", false, "plan only, upload nothing")
	return cmd
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filesystem := args[0]

	w, err := buildWiring(ctx, filesystem, backupFlags.compressor)
	if err != nil {
		return err
	}
	defer w.storage.Close()

	svc := backup.NewService(w.cfg, w.storage, w.manifests, w.snapshots, clock.WallClock, w.log)

	snapName := backupFlags.snapshot
	if snapName != "" {
		snapName = fmt.Sprintf("%s@%s", filesystem, snapName)
	}

	var results []*backup.RunResult
	if backupFlags.full {
		result, err := svc.BackupFull(ctx, snapName, backupFlags.dryRun)
		if err != nil {
			return err
		}
		results = append(results, result)
	} else {
		results, err = svc.BackupIncremental(ctx, snapName, backupFlags.dryRun)
		if err != nil {
			return err
		}
	}

	for _, result := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully backed up %s: %s\n",
			result.Snapshot, utils.HumanSize(result.StreamBytes))
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zfs3backup v%s\n", version)
		},
	}
}
