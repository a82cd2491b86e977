package domain

import (
	"fmt"
	"time"

	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// Manifest is the durable record for one snapshot backup. It is
// written to the store once, after every listed chunk has been
// confirmed present; a reader that can load a manifest with Complete
// set may assume all of its chunks exist.
type Manifest struct {
	Filesystem  string            `yaml:"filesystem"`
	Snapshot    string            `yaml:"snapshot"`
	Parent      string            `yaml:"parent,omitempty"` // empty for a full backup
	Compressor  string            `yaml:"compressor,omitempty"`
	ChunkCount  int               `yaml:"chunk_count"`
	StreamBytes int64             `yaml:"stream_bytes"`
	Chunks      []ChunkDescriptor `yaml:"chunks"`
	Complete    bool              `yaml:"complete"`
	CreatedAt   time.Time         `yaml:"created_at"`
}

// Full reports whether this backup is a full stream rather than an
// incremental delta.
func (m *Manifest) Full() bool {
	return m.Parent == ""
}

// FullName returns the zfs notation "filesystem@snapshot".
func (m *Manifest) FullName() string {
	return fmt.Sprintf("%s@%s", m.Filesystem, m.Snapshot)
}

// Validate checks the manifest invariants: descriptors sorted by
// sequence, sequences contiguous from 0, counts consistent.
func (m *Manifest) Validate() error {
	if m.Filesystem == "" || m.Snapshot == "" {
		return errors.New(errors.ErrCodeIntegrity, "manifest missing snapshot identity")
	}
	if m.ChunkCount != len(m.Chunks) {
		return errors.Newf(errors.ErrCodeIntegrity,
			"manifest chunk count %d does not match %d descriptors", m.ChunkCount, len(m.Chunks))
	}
	var total int64
	for i, d := range m.Chunks {
		if d.Sequence != i {
			return errors.Newf(errors.ErrCodeIntegrity,
				"manifest chunk sequence %d at position %d", d.Sequence, i)
		}
		if d.Checksum == "" || d.Key == "" {
			return errors.Newf(errors.ErrCodeIntegrity, "manifest chunk %d missing checksum or key", i)
		}
		total += d.Length
	}
	if m.StreamBytes != total {
		return errors.Newf(errors.ErrCodeIntegrity,
			"manifest stream bytes %d does not match chunk total %d", m.StreamBytes, total)
	}
	return nil
}
