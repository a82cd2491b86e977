package backup

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
	"github.com/ChaoticEnigma/zfs3backup/pkg/metrics"
)

// Orchestrator drives one backup run for one snapshot: chunker →
// coordinator → manifest seal. A crash or failure anywhere before the
// seal leaves no manifest, only orphaned chunk objects that the next
// run reuses.
type Orchestrator struct {
	cfg       *config.Config
	storage   repository.StorageRepository
	manifests repository.ManifestRepository
	snapshots repository.SnapshotRepository
	retrier   *RetryController
	clock     clock.Clock
	log       logger.Logger
}

func NewOrchestrator(
	cfg *config.Config,
	storage repository.StorageRepository,
	manifests repository.ManifestRepository,
	snapshots repository.SnapshotRepository,
	clk clock.Clock,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		storage:   storage,
		manifests: manifests,
		snapshots: snapshots,
		retrier:   NewRetryController(cfg.MaxRetries, clk, log),
		clock:     clk,
		log:       log,
	}
}

// RunResult summarizes one backup run.
type RunResult struct {
	Snapshot        string
	ChunkCount      int
	StreamBytes     int64
	SkippedChunks   int
	Sealed          bool
	AlreadyBackedUp bool
}

// Run backs up one snapshot. parent selects an incremental stream and
// is recorded in the manifest; nil means a full backup. Running
// against an already sealed snapshot is a no-op.
func (o *Orchestrator) Run(ctx context.Context, ref, parent *domain.SnapshotRef) (*RunResult, error) {
	start := o.clock.Now()

	existing, err := o.loadSealed(ctx, ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		o.log.Info("Snapshot already backed up", "snapshot", ref.FullName())
		return &RunResult{
			Snapshot:        ref.FullName(),
			ChunkCount:      existing.ChunkCount,
			StreamBytes:     existing.StreamBytes,
			Sealed:          true,
			AlreadyBackedUp: true,
		}, nil
	}

	resume, err := o.discoverExisting(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(resume) > 0 {
		o.log.Info("Resuming interrupted backup",
			"snapshot", ref.FullName(), "existingChunks", len(resume))
	}

	stream, err := o.snapshots.OpenStream(ctx, ref, parent)
	if err != nil {
		return nil, err
	}
	streamClosed := false
	defer func() {
		if !streamClosed {
			stream.Close()
		}
	}()

	chunker := NewChunker(stream, o.cfg.ChunkSize)
	coordinator := NewCoordinator(o.storage, o.retrier, o.cfg.Concurrency, o.log)
	target := uploadTarget{
		s3Prefix:   o.cfg.S3Prefix,
		filesystem: ref.Filesystem,
		snapshot:   ref.Name,
	}

	result, err := coordinator.Run(ctx, chunker, target, resume)
	if err != nil {
		o.observeRun(start, "failure")
		o.log.Error("Backup run failed, uploaded chunks kept for resume",
			"snapshot", ref.FullName(), "error", err)
		return nil, err
	}

	// A pipeline process dying mid-stream hands the chunker a clean
	// EOF; the abnormal exit only surfaces through Close. Nothing may
	// be sealed until the stream has been confirmed complete.
	streamClosed = true
	if err := stream.Close(); err != nil {
		o.observeRun(start, "failure")
		o.log.Error("Snapshot stream ended abnormally, uploaded chunks kept for resume",
			"snapshot", ref.FullName(), "error", err)
		return nil, errors.Wrapf(err, errors.ErrCodeStreamRead,
			"snapshot stream for %s ended abnormally", ref)
	}

	manifest := &domain.Manifest{
		Filesystem:  ref.Filesystem,
		Snapshot:    ref.Name,
		Compressor:  o.cfg.Compressor,
		ChunkCount:  len(result.Descriptors),
		StreamBytes: result.StreamBytes,
		Chunks:      result.Descriptors,
		Complete:    true,
		CreatedAt:   o.clock.Now(),
	}
	if parent != nil {
		manifest.Parent = parent.Name
	}

	if err := o.manifests.Seal(ctx, manifest); err != nil {
		o.observeRun(start, "failure")
		return nil, errors.Wrapf(err, errors.ErrCodeFatalTransfer,
			"failed to seal manifest for %s", ref)
	}

	o.observeRun(start, "success")
	o.log.Info("Backup sealed",
		"snapshot", ref.FullName(),
		"chunks", manifest.ChunkCount,
		"skipped", result.Skipped,
		"bytes", manifest.StreamBytes)

	return &RunResult{
		Snapshot:      ref.FullName(),
		ChunkCount:    manifest.ChunkCount,
		StreamBytes:   manifest.StreamBytes,
		SkippedChunks: result.Skipped,
		Sealed:        true,
	}, nil
}

// loadSealed returns the sealed manifest for ref, or nil when none
// exists yet.
func (o *Orchestrator) loadSealed(ctx context.Context, ref *domain.SnapshotRef) (*domain.Manifest, error) {
	manifest, err := o.manifests.Load(ctx, ref.Filesystem, ref.Name)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return manifest, nil
}

// discoverExisting indexes chunk objects left behind by a prior
// incomplete attempt. Objects without checksum metadata are ignored
// and will be overwritten in place.
func (o *Orchestrator) discoverExisting(ctx context.Context, ref *domain.SnapshotRef) (map[int]*domain.ChunkDescriptor, error) {
	prefix := domain.ChunkKeyPrefix(o.cfg.S3Prefix, ref.Filesystem, ref.Name)
	objects, err := o.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}

	existing := make(map[int]*domain.ChunkDescriptor)
	for _, obj := range objects {
		seq, ok := domain.ParseChunkSequence(obj.Key)
		if !ok {
			continue
		}
		metadata, err := o.storage.GetMetadata(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		checksum := metadata.CustomMetadata[domain.MetaChecksum]
		if checksum == "" {
			o.log.Warn("Ignoring chunk object without checksum metadata", "key", obj.Key)
			continue
		}
		existing[seq] = &domain.ChunkDescriptor{
			Sequence: seq,
			Checksum: checksum,
			Key:      obj.Key,
			Length:   metadata.Size,
		}
	}
	return existing, nil
}

func (o *Orchestrator) observeRun(start time.Time, outcome string) {
	metrics.BackupDuration.WithLabelValues(o.cfg.Filesystem, outcome).
		Observe(o.clock.Now().Sub(start).Seconds())
}
