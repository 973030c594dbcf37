package relstore

import (
	"time"

	"github.com/openforensics/vfsmigrate/internal/vfs"
)

// PathRecord is one destination row: the state of a path at a single
// timestamp. Either snapshot field may be nil; a record with both nil is
// an existence-only record (Timestamp zero), written solely to keep the
// ancestor closure complete.
type PathRecord struct {
	Path      vfs.Path
	Timestamp time.Time
	Stat      *vfs.StatEntry
	Hash      *vfs.HashEntry
}

// IsExistenceOnly reports whether the record carries no attribute data.
func (r *PathRecord) IsExistenceOnly() bool {
	return r.Stat == nil && r.Hash == nil
}

// PathInfo is the result of a point-in-time read: the most recent snapshot
// at or before the queried timestamp, resolved independently per attribute
// kind. A nil field means no snapshot of that kind existed yet.
type PathInfo struct {
	Path          vfs.Path
	Stat          *vfs.StatEntry
	StatTimestamp time.Time
	Hash          *vfs.HashEntry
	HashTimestamp time.Time
}
