package backup

import (
	"context"

	"github.com/juju/clock"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
	"github.com/ChaoticEnigma/zfs3backup/pkg/utils"
)

// Service is the backup use case: full backup of one snapshot, or an
// incremental chain walking parents until a healthy remote backup is
// found.
type Service struct {
	cfg       *config.Config
	snapshots repository.SnapshotRepository
	manifests repository.ManifestRepository
	orch      *Orchestrator
	log       logger.Logger
}

func NewService(
	cfg *config.Config,
	storage repository.StorageRepository,
	manifests repository.ManifestRepository,
	snapshots repository.SnapshotRepository,
	clk clock.Clock,
	log logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		snapshots: snapshots,
		manifests: manifests,
		orch:      NewOrchestrator(cfg, storage, manifests, snapshots, clk, log),
		log:       log,
	}
}

// findSnapshot resolves the named snapshot, or the latest one when
// fullName is empty.
func (s *Service) findSnapshot(ctx context.Context, fullName string) (*domain.SnapshotRef, error) {
	if fullName == "" {
		return s.snapshots.Latest(ctx)
	}
	return s.snapshots.Get(ctx, fullName)
}

// BackupFull backs up one snapshot as a self-contained full stream.
func (s *Service) BackupFull(ctx context.Context, fullName string, dryRun bool) (*RunResult, error) {
	ref, err := s.findSnapshot(ctx, fullName)
	if err != nil {
		return nil, err
	}

	estimated, err := s.snapshots.EstimateSize(ctx, ref, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info("Full backup",
		"snapshot", ref.FullName(), "estimated", utils.HumanSize(estimated))

	if dryRun {
		s.log.Info("Dry run, skipping upload", "snapshot", ref.FullName())
		return &RunResult{Snapshot: ref.FullName(), StreamBytes: estimated}, nil
	}
	return s.orch.Run(ctx, ref, nil)
}

// BackupIncremental backs up the named (or latest) snapshot together
// with any ancestors missing remotely, oldest first, each as a delta
// from its parent. The walk must reach a healthy remote backup; if
// the chain bottoms out first, a full backup is required.
func (s *Service) BackupIncremental(ctx context.Context, fullName string, dryRun bool) ([]*RunResult, error) {
	ref, err := s.findSnapshot(ctx, fullName)
	if err != nil {
		return nil, err
	}

	remote, err := s.manifests.List(ctx, s.cfg.Filesystem)
	if err != nil {
		return nil, err
	}
	set := domain.NewBackupSet(remote)

	var toUpload []*domain.SnapshotRef
	current := ref
	for {
		if m := set.Get(current.Name); m != nil {
			healthy, reason := set.Health(current.Name)
			if !healthy {
				return nil, errors.Newf(errors.ErrCodeIntegrity,
					"broken snapshot detected: %s, reason: %q", current.FullName(), reason)
			}
			break
		}
		toUpload = append(toUpload, current)
		if current.Parent == nil {
			return nil, errors.New(errors.ErrCodeIntegrity,
				"could not find a healthy snapshot for incremental backup, run a full backup first")
		}
		current = current.Parent
	}

	if len(toUpload) == 0 {
		s.log.Info("Snapshot already backed up", "snapshot", ref.FullName())
		return []*RunResult{{Snapshot: ref.FullName(), Sealed: true, AlreadyBackedUp: true}}, nil
	}

	s.log.Info("Incremental backup", "snapshots", len(toUpload))

	results := make([]*RunResult, 0, len(toUpload))
	for i := len(toUpload) - 1; i >= 0; i-- {
		snap := toUpload[i]

		estimated, err := s.snapshots.EstimateSize(ctx, snap, snap.Parent)
		if err != nil {
			return results, err
		}
		s.log.Info("Incremental backup",
			"snapshot", snap.FullName(),
			"parent", snap.Parent.FullName(),
			"estimated", utils.HumanSize(estimated))

		if dryRun {
			results = append(results, &RunResult{Snapshot: snap.FullName(), StreamBytes: estimated})
			continue
		}

		result, err := s.orch.Run(ctx, snap, snap.Parent)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
