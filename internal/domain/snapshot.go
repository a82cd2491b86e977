package domain

import "fmt"

// SnapshotRef identifies one local ZFS snapshot. Snapshots of a
// filesystem form a chain ordered by creation time; Parent points at
// the snapshot immediately preceding this one, nil for the oldest.
type SnapshotRef struct {
	Filesystem string
	Name       string // snapshot part, without the filesystem
	Parent     *SnapshotRef
	Order      int
}

// FullName returns the zfs notation "filesystem@snapshot".
func (r *SnapshotRef) FullName() string {
	return fmt.Sprintf("%s@%s", r.Filesystem, r.Name)
}

func (r *SnapshotRef) String() string {
	return r.FullName()
}

// BackupSet indexes the sealed manifests of one filesystem by snapshot
// name and answers health questions about them. A backup is healthy
// when it is full, or when its parent chain reaches a healthy full
// backup without running into a missing parent or a cycle.
type BackupSet struct {
	manifests map[string]*Manifest
}

// Health failure reasons
const (
	ReasonMissingParent = "missing parent"
	ReasonParentBroken  = "parent broken"
	ReasonCycle         = "cycle detected"
	ReasonIncomplete    = "incomplete"
)

func NewBackupSet(manifests []*Manifest) *BackupSet {
	set := &BackupSet{manifests: make(map[string]*Manifest, len(manifests))}
	for _, m := range manifests {
		set.manifests[m.Snapshot] = m
	}
	return set
}

// Get returns the manifest for a snapshot name, or nil.
func (s *BackupSet) Get(snapshot string) *Manifest {
	return s.manifests[snapshot]
}

// Len returns the number of manifests in the set.
func (s *BackupSet) Len() int {
	return len(s.manifests)
}

// Health reports whether the named backup is restorable and, if not,
// why. Unknown snapshots are reported as missing parents of nothing;
// callers should check Get first.
func (s *BackupSet) Health(snapshot string) (bool, string) {
	return s.health(snapshot, make(map[string]bool))
}

func (s *BackupSet) health(snapshot string, visited map[string]bool) (bool, string) {
	m := s.manifests[snapshot]
	if m == nil {
		return false, ReasonMissingParent
	}
	if !m.Complete {
		return false, ReasonIncomplete
	}
	if m.Full() {
		return true, ""
	}
	if visited[snapshot] {
		return false, ReasonCycle
	}
	visited[snapshot] = true
	healthy, reason := s.health(m.Parent, visited)
	if healthy {
		return true, ""
	}
	if reason == ReasonCycle {
		return false, ReasonCycle
	}
	if s.manifests[m.Parent] == nil {
		return false, ReasonMissingParent
	}
	return false, ReasonParentBroken
}
