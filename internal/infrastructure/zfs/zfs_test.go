package zfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

// fakeRunner answers zfs invocations from a canned table keyed by the
// joined argument list.
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (r *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, key)
	if err := r.errs[key]; err != nil {
		return nil, err
	}
	return []byte(r.outputs[key]), nil
}

const listCmd = "zfs list -Ht snap -o name,used,refer,mountpoint,written"

var listOutput = strings.Join([]string{
	"tank/data@auto-20240601\t0B\t10.5G\t-\t0B",
	"tank/data@auto-20240602\t120M\t10.6G\t-\t120M",
	"tank/data@manual-snap\t0B\t10.6G\t-\t0B",
	"tank/data@auto-20240603\t64M\t10.7G\t-\t64M",
	"tank/other@auto-20240601\t0B\t1G\t-\t0B",
	"",
}, "\n")

func testManager(runner Runner) *Manager {
	cfg := &config.Config{
		Filesystem:     "tank/data",
		SnapshotPrefix: "auto",
		Compressor:     "pigz1",
	}
	return NewManagerWithRunner(cfg, runner, logger.NewNop())
}

func TestListFiltersAndChains(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{listCmd: listOutput}}
	m := testManager(runner)

	refs, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 3, "other filesystems and unprefixed snapshots are excluded")

	assert.Equal(t, "auto-20240601", refs[0].Name)
	assert.Equal(t, "auto-20240602", refs[1].Name)
	assert.Equal(t, "auto-20240603", refs[2].Name)

	assert.Nil(t, refs[0].Parent)
	assert.Same(t, refs[0], refs[1].Parent)
	assert.Same(t, refs[1], refs[2].Parent, "parents chain in list order across exclusions")

	for i, ref := range refs {
		assert.Equal(t, "tank/data", ref.Filesystem)
		assert.Equal(t, i, ref.Order)
	}
}

func TestListCommandFailure(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{listCmd: assert.AnError}}
	m := testManager(runner)

	_, err := m.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnavailable))
}

func TestLatest(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{listCmd: listOutput}}
	m := testManager(runner)

	ref, err := m.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tank/data@auto-20240603", ref.FullName())
}

func TestLatestNoSnapshots(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{listCmd: ""}}
	m := testManager(runner)

	_, err := m.Latest(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "SNAPSHOT_PREFIX")
}

func TestGet(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{listCmd: listOutput}}
	m := testManager(runner)

	ref, err := m.Get(context.Background(), "tank/data@auto-20240602")
	require.NoError(t, err)
	assert.Equal(t, "auto-20240602", ref.Name)

	_, err = m.Get(context.Background(), "tank/data@auto-19990101")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestEstimateSizeFull(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		listCmd: listOutput,
		"zfs send -R -nvP tank/data@auto-20240603": "full\ttank/data@auto-20240603\t11416182784\nsize\t11416182784",
	}}
	m := testManager(runner)

	ref, err := m.Get(context.Background(), "tank/data@auto-20240603")
	require.NoError(t, err)

	size, err := m.EstimateSize(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11416182784), size)
}

func TestEstimateSizeIncremental(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		listCmd: listOutput,
		"zfs send -R -nvP -i tank/data@auto-20240602 tank/data@auto-20240603": "incremental\tauto-20240602\ttank/data@auto-20240603\t67108864\nsize\t67108864",
	}}
	m := testManager(runner)

	ref, err := m.Get(context.Background(), "tank/data@auto-20240603")
	require.NoError(t, err)

	size, err := m.EstimateSize(context.Background(), ref, ref.Parent)
	require.NoError(t, err)
	assert.Equal(t, int64(67108864), size)
}

func TestParseEstimatedSize(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    int64
		wantErr bool
	}{
		{"plain", "size\t123", 123, false},
		{"multi line", "full\tx\t9\nsize\t456\n", 456, false},
		{"spaces", "size 789", 789, false},
		{"garbage", "no numbers here at all", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := parseEstimatedSize([]byte(tt.out))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, size)
		})
	}
}

func TestCompressCommand(t *testing.T) {
	argv, err := CompressCommand("pigz1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pigz", "-1", "--blocksize", "4096"}, argv)

	argv, err = CompressCommand("zstd3")
	require.NoError(t, err)
	assert.Equal(t, "zstd", argv[0])

	for _, disabled := range []string{"", "none", "None", "NONE"} {
		argv, err = CompressCommand(disabled)
		require.NoError(t, err)
		assert.Nil(t, argv)
	}

	_, err = CompressCommand("lz4-turbo")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfig))
}

func TestCompressorNames(t *testing.T) {
	assert.Equal(t, []string{"pbzip2", "pigz1", "pigz4", "zstd3"}, CompressorNames())
}
