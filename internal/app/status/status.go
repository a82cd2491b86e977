package status

import (
	"context"
	"sort"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
	"github.com/ChaoticEnigma/zfs3backup/pkg/utils"
)

// Row is one line of the status listing: a local snapshot, a remote
// backup, or both paired by snapshot name.
type Row struct {
	Name       string
	Parent     string
	Type       string // full, incremental, missing
	Health     string
	LocalState string
	Size       string
}

// Service pairs local snapshots with remote backups.
type Service struct {
	filesystem string
	snapshots  repository.SnapshotRepository
	manifests  repository.ManifestRepository
	log        logger.Logger
}

func NewService(filesystem string, snapshots repository.SnapshotRepository, manifests repository.ManifestRepository, log logger.Logger) *Service {
	return &Service{
		filesystem: filesystem,
		snapshots:  snapshots,
		manifests:  manifests,
		log:        log,
	}
}

// List builds the status rows, sorted by snapshot name. Snapshots
// present remotely but not locally are listed too.
func (s *Service) List(ctx context.Context) ([]Row, error) {
	locals, err := s.snapshots.List(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.manifests.List(ctx, s.filesystem)
	if err != nil {
		return nil, err
	}
	set := domain.NewBackupSet(remote)

	seen := make(map[string]bool, len(locals))
	rows := make([]Row, 0, len(locals)+set.Len())

	for _, snap := range locals {
		seen[snap.Name] = true
		rows = append(rows, s.row(set, snap.Name, true))
	}
	for _, m := range remote {
		if !seen[m.Snapshot] {
			rows = append(rows, s.row(set, m.Snapshot, false))
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (s *Service) row(set *domain.BackupSet, snapshot string, local bool) Row {
	row := Row{
		Name:       snapshot,
		Parent:     "-",
		Health:     "-",
		LocalState: "ok",
	}
	if !local {
		row.LocalState = "missing"
	}

	m := set.Get(snapshot)
	if m == nil {
		row.Type = "missing"
		return row
	}

	if m.Full() {
		row.Type = "full"
	} else {
		row.Type = "incremental"
		row.Parent = m.Parent
	}
	if healthy, reason := set.Health(snapshot); healthy {
		row.Health = "ok"
	} else {
		row.Health = reason
	}
	row.Size = utils.HumanSize(m.StreamBytes)
	return row
}
