package legacy

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

// MemoryStore is an in-memory legacy store. It backs tests and small
// fixture datasets; semantics match the sqlite adapter.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string]map[string]map[AttributeKind][]Snapshot
	paths   map[string]map[string]vfs.Path
	blobs   map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(map[string]map[string]map[AttributeKind][]Snapshot),
		paths:   make(map[string]map[string]vfs.Path),
		blobs:   make(map[string][]byte),
	}
}

// Touch records a path for the client without attaching any history.
func (m *MemoryStore) Touch(clientID string, path vfs.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked(clientID, path)
}

// SetStat appends a status snapshot to the path's stat timeline.
func (m *MemoryStore) SetStat(clientID string, path vfs.Path, ts time.Time, stat *vfs.StatEntry) {
	m.appendSnapshot(clientID, path, KindStat, Snapshot{Timestamp: ts, Stat: stat})
}

// SetHash appends a digest snapshot to the path's hash timeline.
func (m *MemoryStore) SetHash(clientID string, path vfs.Path, ts time.Time, hash *vfs.HashEntry) {
	m.appendSnapshot(clientID, path, KindHash, Snapshot{Timestamp: ts, Hash: hash})
}

// StoreBlob adds content to the blob store and returns its identity.
func (m *MemoryStore) StoreBlob(content []byte) blobs.ID {
	id := blobs.Sum(content)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id.String()] = content
	return id
}

func (m *MemoryStore) appendSnapshot(clientID string, path vfs.Path, kind AttributeKind, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touchLocked(clientID, path)
	byPath, ok := m.history[clientID]
	if !ok {
		byPath = make(map[string]map[AttributeKind][]Snapshot)
		m.history[clientID] = byPath
	}
	byKind, ok := byPath[path.Key()]
	if !ok {
		byKind = make(map[AttributeKind][]Snapshot)
		byPath[path.Key()] = byKind
	}
	timeline := append(byKind[kind], snap)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
	byKind[kind] = timeline
}

func (m *MemoryStore) touchLocked(clientID string, path vfs.Path) {
	byKey, ok := m.paths[clientID]
	if !ok {
		byKey = make(map[string]vfs.Path)
		m.paths[clientID] = byKey
	}
	byKey[path.Key()] = path
}

func (m *MemoryStore) ListClients(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]string, 0, len(m.paths))
	for clientID := range m.paths {
		clients = append(clients, clientID)
	}
	sort.Strings(clients)
	return clients, nil
}

func (m *MemoryStore) EnumerateLeafPaths(ctx context.Context, clientID string, pathType vfs.PathType) ([]vfs.Path, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []vfs.Path
	for _, path := range m.paths[clientID] {
		if path.Type == pathType {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
	return paths, nil
}

func (m *MemoryStore) ReadAttributeHistory(ctx context.Context, clientID string, path vfs.Path, kind AttributeKind) iter.Seq2[Snapshot, error] {
	m.mu.RLock()
	timeline := m.history[clientID][path.Key()][kind]
	snaps := make([]Snapshot, len(timeline))
	copy(snaps, timeline)
	m.mu.RUnlock()

	return func(yield func(Snapshot, error) bool) {
		for _, snap := range snaps {
			if !yield(snap, nil) {
				return
			}
		}
	}
}

func (m *MemoryStore) EnumerateBlobs(ctx context.Context, cursor string, limit int) ([]blobs.ID, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for key := range m.blobs {
		if key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	if len(keys) == 0 {
		return nil, cursor, nil
	}

	ids := make([]blobs.ID, 0, len(keys))
	for _, key := range keys {
		id, err := blobs.ParseID(key)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, keys[len(keys)-1], nil
}

func (m *MemoryStore) ReadBlob(ctx context.Context, id blobs.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.blobs[id.String()]
	if !ok {
		return nil, blobs.ErrNotFound
	}
	return content, nil
}

var _ Store = (*MemoryStore)(nil)
