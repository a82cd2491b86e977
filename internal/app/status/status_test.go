package status

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/infrastructure/storage"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

type fakeSnapshots struct {
	refs []*domain.SnapshotRef
}

func (f *fakeSnapshots) List(ctx context.Context) ([]*domain.SnapshotRef, error) {
	return f.refs, nil
}

func (f *fakeSnapshots) Latest(ctx context.Context) (*domain.SnapshotRef, error) {
	return nil, nil
}

func (f *fakeSnapshots) Get(ctx context.Context, fullName string) (*domain.SnapshotRef, error) {
	return nil, nil
}

func (f *fakeSnapshots) EstimateSize(ctx context.Context, ref, parent *domain.SnapshotRef) (int64, error) {
	return 0, nil
}

func (f *fakeSnapshots) OpenStream(ctx context.Context, ref, parent *domain.SnapshotRef) (io.ReadCloser, error) {
	return nil, nil
}

func sealManifest(t *testing.T, repo *storage.ManifestRepo, snapshot, parent string, streamBytes int64) {
	t.Helper()
	manifest := &domain.Manifest{
		Filesystem:  "tank/data",
		Snapshot:    snapshot,
		Parent:      parent,
		ChunkCount:  1,
		StreamBytes: streamBytes,
		Chunks: []domain.ChunkDescriptor{
			{Sequence: 0, Checksum: "aa", Key: domain.ChunkKey("zfs3backup", "tank/data", snapshot, 0), Length: streamBytes},
		},
		Complete:  true,
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Seal(context.Background(), manifest))
}

func TestStatusList(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	manifests := storage.NewManifestRepo(store, "zfs3backup")

	// remote: full a, incremental b, orphan d (only remote)
	sealManifest(t, manifests, "auto-a", "", 1000)
	sealManifest(t, manifests, "auto-b", "auto-a", 200)
	sealManifest(t, manifests, "auto-d", "auto-c", 50)

	// local: a, b and c, where c has no remote backup
	snapshots := &fakeSnapshots{refs: []*domain.SnapshotRef{
		{Filesystem: "tank/data", Name: "auto-a"},
		{Filesystem: "tank/data", Name: "auto-b"},
		{Filesystem: "tank/data", Name: "auto-c"},
	}}

	service := NewService("tank/data", snapshots, manifests, logger.NewNop())
	rows, err := service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byName := make(map[string]Row, len(rows))
	for i, row := range rows {
		byName[row.Name] = row
		if i > 0 {
			assert.LessOrEqual(t, rows[i-1].Name, row.Name, "rows are sorted by name")
		}
	}

	a := byName["auto-a"]
	assert.Equal(t, "full", a.Type)
	assert.Equal(t, "-", a.Parent, "full backups show the placeholder like every other empty cell")
	assert.Equal(t, "ok", a.Health)
	assert.Equal(t, "ok", a.LocalState)

	b := byName["auto-b"]
	assert.Equal(t, "incremental", b.Type)
	assert.Equal(t, "auto-a", b.Parent)
	assert.Equal(t, "ok", b.Health)

	c := byName["auto-c"]
	assert.Equal(t, "missing", c.Type)
	assert.Equal(t, "ok", c.LocalState)
	assert.Equal(t, "-", c.Health)

	d := byName["auto-d"]
	assert.Equal(t, "incremental", d.Type)
	assert.Equal(t, domain.ReasonMissingParent, d.Health)
	assert.Equal(t, "missing", d.LocalState)
}

func TestStatusListEmpty(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	manifests := storage.NewManifestRepo(store, "zfs3backup")
	snapshots := &fakeSnapshots{}

	service := NewService("tank/data", snapshots, manifests, logger.NewNop())
	rows, err := service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
