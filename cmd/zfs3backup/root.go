package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/internal/infrastructure/storage"
	"github.com/ChaoticEnigma/zfs3backup/internal/infrastructure/zfs"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

const version = "1.1.0"

var rootFlags struct {
	configPath     string
	profile        string
	endpoint       string
	s3Prefix       string
	snapshotPrefix string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "zfs3backup",
		Short:         "Back up ZFS snapshots to an S3-compatible object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "override configuration file path")
	cmd.PersistentFlags().StringVar(&rootFlags.profile, "profile", "", "choose a non-default AWS config profile")
	cmd.PersistentFlags().StringVar(&rootFlags.endpoint, "endpoint", "", "choose a non-AWS S3 endpoint (e.g. Wasabi)")
	cmd.PersistentFlags().StringVar(&rootFlags.s3Prefix, "s3-prefix", "", "S3 key prefix, defaults to zfs3backup")
	cmd.PersistentFlags().StringVar(&rootFlags.snapshotPrefix, "snapshot-prefix", "", "only operate on snapshots starting with this prefix")

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig builds the immutable run configuration from file,
// environment and flags, for the given filesystem.
func loadConfig(filesystem string) (*config.Config, error) {
	path := rootFlags.configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}

	fileCfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, err
	}
	if rootFlags.profile != "" {
		fileCfg.Profile = rootFlags.profile
	}
	if rootFlags.endpoint != "" {
		fileCfg.Endpoint = rootFlags.endpoint
	}
	if rootFlags.s3Prefix != "" {
		fileCfg.S3Prefix = rootFlags.s3Prefix
	}
	if rootFlags.snapshotPrefix != "" {
		fileCfg.SnapshotPrefix = rootFlags.snapshotPrefix
	}

	cfg, err := fileCfg.Resolve(filesystem)
	if err != nil {
		return nil, err
	}
	if _, err := zfs.CompressCommand(cfg.Compressor); err != nil {
		return nil, err
	}
	return cfg, nil
}

// wiring bundles the collaborators every command needs.
type wiring struct {
	cfg       *config.Config
	log       logger.Logger
	storage   repository.StorageRepository
	manifests repository.ManifestRepository
	snapshots repository.SnapshotRepository
}

func buildWiring(ctx context.Context, filesystem, compressorOverride string) (*wiring, error) {
	cfg, err := loadConfig(filesystem)
	if err != nil {
		return nil, err
	}
	if compressorOverride != "" {
		if _, err := zfs.CompressCommand(compressorOverride); err != nil {
			return nil, err
		}
		cfg.Compressor = compressorOverride
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	store, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &wiring{
		cfg:       cfg,
		log:       log,
		storage:   store,
		manifests: storage.NewManifestRepo(store, cfg.S3Prefix),
		snapshots: zfs.NewManager(cfg, log),
	}, nil
}
