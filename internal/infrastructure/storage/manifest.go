package storage

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	apperrors "github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// ManifestRepo persists manifests as YAML objects in the store under
// the deterministic manifest key for each snapshot.
type ManifestRepo struct {
	storage  repository.StorageRepository
	s3Prefix string
}

func NewManifestRepo(storage repository.StorageRepository, s3Prefix string) *ManifestRepo {
	return &ManifestRepo{storage: storage, s3Prefix: s3Prefix}
}

// Seal writes the manifest object. The write is a single put, so a
// reader either sees the complete manifest or none at all.
func (r *ManifestRepo) Seal(ctx context.Context, manifest *domain.Manifest) error {
	if !manifest.Complete {
		return apperrors.New(apperrors.ErrCodeIntegrity, "refusing to seal an incomplete manifest")
	}
	if err := manifest.Validate(); err != nil {
		return err
	}

	encoded, err := yaml.Marshal(manifest)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode manifest")
	}

	key := domain.ManifestKey(r.s3Prefix, manifest.Filesystem, manifest.Snapshot)
	metadata := &repository.ObjectMetadata{
		Key:         key,
		Size:        int64(len(encoded)),
		ContentType: "application/yaml",
		CustomMetadata: map[string]string{
			domain.MetaFilesystem: manifest.Filesystem,
			domain.MetaSnapshot:   manifest.Snapshot,
			domain.MetaChunkCount: strconv.Itoa(manifest.ChunkCount),
		},
	}
	return r.storage.Put(ctx, key, bytes.NewReader(encoded), metadata)
}

func (r *ManifestRepo) Load(ctx context.Context, filesystem, snapshot string) (*domain.Manifest, error) {
	key := domain.ManifestKey(r.s3Prefix, filesystem, snapshot)

	body, _, err := r.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	encoded, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeStreamRead, "failed to read manifest %s", key)
	}

	var manifest domain.Manifest
	if err := yaml.Unmarshal(encoded, &manifest); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeIntegrity, "failed to decode manifest %s", key)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *ManifestRepo) Exists(ctx context.Context, filesystem, snapshot string) (bool, error) {
	return r.storage.Exists(ctx, domain.ManifestKey(r.s3Prefix, filesystem, snapshot))
}

// List loads every sealed manifest of a filesystem by scanning its
// key prefix for manifest objects.
func (r *ManifestRepo) List(ctx context.Context, filesystem string) ([]*domain.Manifest, error) {
	prefix := domain.SnapshotKeyPrefix(r.s3Prefix, filesystem)
	objects, err := r.storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var manifests []*domain.Manifest
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, "/manifest") {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/manifest")
		manifest, err := r.Load(ctx, filesystem, rest)
		if err != nil {
			return nil, err
		}
		// Datasets nest, so the prefix scan for "tank" also walks
		// "tank/data". A child dataset's manifests are not ours.
		if manifest.Filesystem != filesystem {
			continue
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}
