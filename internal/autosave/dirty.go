package autosave

import (
	"sort"
	"sync"

	"launchpad/internal/model"
)

type dirtyEntry struct {
	draft   model.ProjectDraft
	version uint64
}

// DirtyMap holds at most one pending draft per question field. A later
// write to the same field replaces the earlier one.
type DirtyMap struct {
	mu      sync.Mutex
	entries map[string]dirtyEntry
	seq     uint64
}

// Snapshot is the set of drafts taken for one flush
type Snapshot struct {
	Drafts   []model.ProjectDraft
	versions map[string]uint64
	seq      uint64
}

func (s Snapshot) Len() int { return len(s.Drafts) }

func NewDirtyMap() *DirtyMap {
	return &DirtyMap{entries: make(map[string]dirtyEntry)}
}

func (m *DirtyMap) Put(d model.ProjectDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries[d.Key()] = dirtyEntry{draft: d, version: m.seq}
}

func (m *DirtyMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Snapshot copies the pending drafts in write order without removing them
func (m *DirtyMap) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *DirtyMap) snapshotLocked() Snapshot {
	entries := make([]dirtyEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].version < entries[j].version })

	snap := Snapshot{
		Drafts:   make([]model.ProjectDraft, len(entries)),
		versions: make(map[string]uint64, len(entries)),
		seq:      m.seq,
	}
	for i, e := range entries {
		snap.Drafts[i] = e.draft
		snap.versions[e.draft.Key()] = e.version
	}
	return snap
}

// Commit removes the snapshotted entries that were not rewritten since the
// snapshot was taken. It returns the number removed.
func (m *DirtyMap) Commit(s Snapshot) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, version := range s.versions {
		if e, ok := m.entries[key]; ok && e.version == version {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// ChangedSince reports whether any write happened after s was taken
func (m *DirtyMap) ChangedSince(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq > s.seq
}

// Pending returns the drafts still waiting to be saved, in write order
func (m *DirtyMap) Pending() []model.ProjectDraft {
	return m.Snapshot().Drafts
}
