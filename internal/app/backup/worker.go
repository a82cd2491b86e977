package backup

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
	"github.com/ChaoticEnigma/zfs3backup/pkg/metrics"
)

// Worker drains chunks from the coordinator's queue and drives each
// through the retry-wrapped upload. Workers share the storage client
// and the result collector; each chunk's upload job is owned by
// exactly one worker.
type Worker struct {
	id      int
	target  uploadTarget
	storage repository.StorageRepository
	retrier *RetryController
	resume  map[int]*domain.ChunkDescriptor
	result  *resultCollector
	log     logger.Logger
}

// uploadTarget carries the snapshot identity a run uploads into.
type uploadTarget struct {
	s3Prefix   string
	filesystem string
	snapshot   string
}

func (t uploadTarget) chunkKey(sequence int) string {
	return domain.ChunkKey(t.s3Prefix, t.filesystem, t.snapshot, sequence)
}

func newWorker(
	id int,
	target uploadTarget,
	storage repository.StorageRepository,
	retrier *RetryController,
	resume map[int]*domain.ChunkDescriptor,
	result *resultCollector,
	log logger.Logger,
) *Worker {
	return &Worker{
		id:      id,
		target:  target,
		storage: storage,
		retrier: retrier,
		resume:  resume,
		result:  result,
		log:     log.WithFields(map[string]interface{}{"workerID": id}),
	}
}

// loop processes chunks until the queue closes or the run fails.
func (w *Worker) loop(ctx context.Context, chunks <-chan *domain.Chunk) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if err := w.process(ctx, chunk); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, chunk *domain.Chunk) error {
	if existing, ok := w.resume[chunk.Sequence]; ok {
		if existing.Checksum != chunk.Checksum {
			return errors.Newf(errors.ErrCodeResumeConflict,
				"chunk %d exists at %s with checksum %s, expected %s",
				chunk.Sequence, existing.Key, existing.Checksum, chunk.Checksum)
		}
		w.log.Debug("Skipping confirmed chunk", "sequence", chunk.Sequence, "key", existing.Key)
		metrics.ChunksSkipped.WithLabelValues(w.target.filesystem, w.target.snapshot).Inc()
		w.result.recordSkipped(*existing)
		return nil
	}

	job := domain.NewUploadJob(chunk)
	key := w.target.chunkKey(chunk.Sequence)

	if err := w.retrier.Attempt(ctx, job, func(ctx context.Context) error {
		return w.upload(ctx, key, chunk)
	}); err != nil {
		return err
	}

	w.log.Debug("Chunk uploaded",
		"sequence", chunk.Sequence, "key", key, "size", chunk.Length(), "attempts", job.Attempts)
	metrics.ChunksUploaded.WithLabelValues(w.target.filesystem, w.target.snapshot).Inc()
	metrics.BytesUploaded.WithLabelValues(w.target.filesystem, w.target.snapshot).Add(float64(chunk.Length()))
	if job.Attempts > 1 {
		metrics.UploadRetries.WithLabelValues(w.target.filesystem, w.target.snapshot).Add(float64(job.Attempts - 1))
	}

	w.result.record(domain.ChunkDescriptor{
		Sequence: chunk.Sequence,
		Checksum: chunk.Checksum,
		Key:      key,
		Length:   chunk.Length(),
	})
	return nil
}

// upload performs one put attempt and confirms it landed with the
// expected checksum before the chunk may be reported Done.
func (w *Worker) upload(ctx context.Context, key string, chunk *domain.Chunk) error {
	metadata := &repository.ObjectMetadata{
		Key:         key,
		Size:        chunk.Length(),
		ContentType: "application/octet-stream",
		CustomMetadata: map[string]string{
			domain.MetaSequence: strconv.Itoa(chunk.Sequence),
			domain.MetaChecksum: chunk.Checksum,
		},
	}
	if err := w.storage.Put(ctx, key, bytes.NewReader(chunk.Data), metadata); err != nil {
		return err
	}

	stored, err := w.storage.GetMetadata(ctx, key)
	if err != nil {
		return err
	}
	if got := stored.CustomMetadata[domain.MetaChecksum]; got != chunk.Checksum {
		return errors.Newf(errors.ErrCodeFatalTransfer,
			"checksum mismatch after upload of chunk %d: stored %s, expected %s",
			chunk.Sequence, got, chunk.Checksum)
	}
	if stored.Size != chunk.Length() {
		return errors.Newf(errors.ErrCodeFatalTransfer,
			"size mismatch after upload of chunk %d: stored %d, expected %d",
			chunk.Sequence, stored.Size, chunk.Length())
	}
	return nil
}

// resultCollector aggregates confirmed chunk descriptors across
// workers. The single mutex is the only synchronization point shared
// by the pool.
type resultCollector struct {
	mu          sync.Mutex
	descriptors []domain.ChunkDescriptor
	skipped     int
}

func newResultCollector() *resultCollector {
	return &resultCollector{}
}

func (c *resultCollector) record(d domain.ChunkDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = append(c.descriptors, d)
}

func (c *resultCollector) recordSkipped(d domain.ChunkDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = append(c.descriptors, d)
	c.skipped++
}
