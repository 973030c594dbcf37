package legacy

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

// AttributeKind selects which timeline of a node to read. Each kind is an
// independent history; a node may have history for one kind and none for
// the other.
type AttributeKind uint8

const (
	// KindStat is the status metadata timeline (mode, size, times)
	KindStat AttributeKind = iota + 1
	// KindHash is the content digest timeline
	KindHash
)

func (k AttributeKind) String() string {
	switch k {
	case KindStat:
		return "stat"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// ErrCorrupt marks a single history entry that cannot be decoded.
// Consumers skip such entries; they do not abort the remaining history of
// the node.
var ErrCorrupt = errors.New("corrupt history entry")

// Snapshot is one point on a node's timeline: a full-replacement value for
// a single attribute kind as of Timestamp. Exactly one of Stat and Hash is
// set, matching the kind it was read for.
type Snapshot struct {
	Timestamp time.Time
	Stat      *vfs.StatEntry
	Hash      *vfs.HashEntry
}

// Store is the read-only surface of the legacy hierarchical store that the
// migration consumes. Implementations never mutate legacy data.
type Store interface {
	// ListClients enumerates every client that has data in the store.
	ListClients(ctx context.Context) ([]string, error)

	// EnumerateLeafPaths lists every path recorded for the client under
	// the given path type's root.
	EnumerateLeafPaths(ctx context.Context, clientID string, pathType vfs.PathType) ([]vfs.Path, error)

	// ReadAttributeHistory yields the node's history for one attribute
	// kind ordered by increasing timestamp. The sequence is finite and
	// restartable; each call starts a fresh read. A node with no history
	// for the kind yields nothing. A malformed entry is yielded as a
	// non-nil error with a zero snapshot; iteration continues past it.
	ReadAttributeHistory(ctx context.Context, clientID string, path vfs.Path, kind AttributeKind) iter.Seq2[Snapshot, error]

	// EnumerateBlobs returns up to limit blob identities after the given
	// cursor, plus the cursor for the next page. A page may be empty with
	// an advanced cursor when every row on it was unusable; the
	// enumeration is exhausted only when the cursor comes back unchanged.
	EnumerateBlobs(ctx context.Context, cursor string, limit int) ([]blobs.ID, string, error)

	// ReadBlob returns the full content of a blob, or blobs.ErrNotFound.
	ReadBlob(ctx context.Context, id blobs.ID) ([]byte, error)
}
