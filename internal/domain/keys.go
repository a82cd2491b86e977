package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Remote key layout. The convention is load-bearing: resume discovery
// and external restore tooling both derive keys from snapshot identity
// alone, so it must stay stable across releases.
//
//	{prefix}/{filesystem}/{snapshot}/chunks/{sequence:%06d}
//	{prefix}/{filesystem}/{snapshot}/manifest

// ChunkKey returns the remote key for one chunk object.
func ChunkKey(prefix, filesystem, snapshot string, sequence int) string {
	return path.Join(prefix, filesystem, snapshot, "chunks", fmt.Sprintf("%06d", sequence))
}

// ChunkKeyPrefix returns the key prefix under which all of a
// snapshot's chunk objects live.
func ChunkKeyPrefix(prefix, filesystem, snapshot string) string {
	return path.Join(prefix, filesystem, snapshot, "chunks") + "/"
}

// ManifestKey returns the remote key of the sealed manifest object.
func ManifestKey(prefix, filesystem, snapshot string) string {
	return path.Join(prefix, filesystem, snapshot, "manifest")
}

// SnapshotKeyPrefix returns the key prefix for everything belonging to
// one filesystem.
func SnapshotKeyPrefix(prefix, filesystem string) string {
	return path.Join(prefix, filesystem) + "/"
}

// ParseChunkSequence extracts the sequence number from a chunk key.
func ParseChunkSequence(key string) (int, bool) {
	base := path.Base(key)
	if strings.Contains(base, "/") || base == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(base)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// Chunk object metadata keys
const (
	MetaSequence = "sequence"
	MetaChecksum = "checksum"
)

// Manifest object metadata keys
const (
	MetaFilesystem = "filesystem"
	MetaSnapshot   = "snapshot"
	MetaChunkCount = "chunk-count"
)
