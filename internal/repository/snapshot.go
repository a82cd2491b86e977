package repository

import (
	"context"
	"io"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
)

// SnapshotRepository is the boundary to the local snapshot source.
// Implementations enumerate eligible snapshots and open their
// serialized streams; everything past the returned reader is opaque to
// the upload pipeline.
type SnapshotRepository interface {
	// List returns eligible snapshots in creation order, oldest first,
	// with parent pointers chained within the result.
	List(ctx context.Context) ([]*domain.SnapshotRef, error)

	// Latest returns the newest eligible snapshot, or ErrNotFound.
	Latest(ctx context.Context) (*domain.SnapshotRef, error)

	// Get returns the named snapshot ("fs@snap" notation), or ErrNotFound.
	Get(ctx context.Context, fullName string) (*domain.SnapshotRef, error)

	// EstimateSize returns the estimated serialized stream size in
	// bytes. With a non-nil parent the estimate covers the incremental
	// delta only.
	EstimateSize(ctx context.Context, ref, parent *domain.SnapshotRef) (int64, error)

	// OpenStream opens the serialized (and, if configured, compressed)
	// snapshot stream. With a non-nil parent the stream is the
	// incremental delta from parent to ref.
	OpenStream(ctx context.Context, ref, parent *domain.SnapshotRef) (io.ReadCloser, error)
}
