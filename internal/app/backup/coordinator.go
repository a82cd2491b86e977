package backup

import (
	"context"
	"io"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

// chunkQueueDepth bounds the handoff queue between the chunker and
// the worker pool. A small bound keeps memory at roughly
// (concurrency + chunkQueueDepth + 1) chunk buffers while still
// letting the producer run ahead of a slow worker.
const chunkQueueDepth = 2

// Coordinator owns the upload worker pool for one run. It maintains
// exactly `concurrency` workers pulling from a bounded queue fed by
// the chunker, fails fast on the first aborted chunk, and assembles
// the confirmed descriptor list in sequence order.
type Coordinator struct {
	storage     repository.StorageRepository
	retrier     *RetryController
	concurrency int
	log         logger.Logger
}

func NewCoordinator(storage repository.StorageRepository, retrier *RetryController, concurrency int, log logger.Logger) *Coordinator {
	return &Coordinator{
		storage:     storage,
		retrier:     retrier,
		concurrency: concurrency,
		log:         log,
	}
}

// Result is the aggregate outcome of a fully successful dispatch.
type Result struct {
	Descriptors []domain.ChunkDescriptor
	StreamBytes int64
	Skipped     int
}

// Run drains the chunker through the pool. On success the result
// lists every chunk in sequence order, each independently confirmed
// present in the store. On failure the first fatal error is returned
// and no result is produced; chunks uploaded before the failure stay
// in the store for a future resume.
func (c *Coordinator) Run(
	ctx context.Context,
	chunker *Chunker,
	target uploadTarget,
	resume map[int]*domain.ChunkDescriptor,
) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan *domain.Chunk, chunkQueueDepth)
	collector := newResultCollector()

	// Producer: the chunker applies backpressure via the bounded
	// queue, so a fast stream never outruns the network unboundedly.
	g.Go(func() error {
		defer close(chunks)
		for {
			chunk, err := chunker.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case chunks <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for i := 0; i < c.concurrency; i++ {
		worker := newWorker(i, target, c.storage, c.retrier, resume, collector, c.log)
		g.Go(func() error {
			return worker.loop(gctx, chunks)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Descriptors: collector.descriptors,
		Skipped:     collector.skipped,
	}
	sort.Slice(result.Descriptors, func(i, j int) bool {
		return result.Descriptors[i].Sequence < result.Descriptors[j].Sequence
	})
	for i, d := range result.Descriptors {
		if d.Sequence != i {
			return nil, errors.Newf(errors.ErrCodeIntegrity,
				"chunk sequence %d missing from dispatch result", i)
		}
		result.StreamBytes += d.Length
	}
	return result, nil
}
