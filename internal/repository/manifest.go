package repository

import (
	"context"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
)

// ManifestRepository persists sealed backup manifests in the object
// store. Seal is the single point at which a backup becomes visible as
// complete.
type ManifestRepository interface {
	// Seal writes the manifest object. Callers must only invoke it
	// after every listed chunk has been confirmed present.
	Seal(ctx context.Context, manifest *domain.Manifest) error

	// Load reads and validates a manifest, or ErrNotFound.
	Load(ctx context.Context, filesystem, snapshot string) (*domain.Manifest, error)

	// Exists checks whether a sealed manifest is present.
	Exists(ctx context.Context, filesystem, snapshot string) (bool, error)

	// List loads every manifest belonging to a filesystem.
	List(ctx context.Context, filesystem string) ([]*domain.Manifest, error)
}
