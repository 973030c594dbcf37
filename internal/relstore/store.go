package relstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/openforensics/vfsmigrate/internal/vfs"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS client_paths (
	client_id TEXT NOT NULL,
	path_type INTEGER NOT NULL,
	path TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	stat TEXT,
	hash TEXT,
	PRIMARY KEY (client_id, path_type, path, timestamp)
);
`

const upsertSQL = `
INSERT INTO client_paths (client_id, path_type, path, timestamp, stat, hash)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (client_id, path_type, path, timestamp) DO UPDATE SET
	stat = COALESCE(excluded.stat, client_paths.stat),
	hash = COALESCE(excluded.hash, client_paths.hash)
`

var (
	// ErrPathNotFound is returned when no record exists for the path.
	ErrPathNotFound = errors.New("path not found")
)

// Store is the destination relational path store, keyed by
// (client, path type, path, timestamp). Upserts merge non-nil fields, so
// re-running a migration never duplicates or clobbers records, and a later
// pass may fill attribute fields on a previously existence-only record.
type Store struct {
	db *sqlx.DB
}

// NewStore initializes the destination schema on the given database.
func NewStore(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("init path store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertPathRecord writes one record. Writes to distinct keys are safe to
// issue concurrently; the upsert is atomic per key.
func (s *Store) UpsertPathRecord(ctx context.Context, clientID string, rec *PathRecord) error {
	statJSON, err := encodeSnapshot(rec.Stat)
	if err != nil {
		return fmt.Errorf("encode stat for %s: %w", rec.Path, err)
	}
	hashJSON, err := encodeSnapshot(rec.Hash)
	if err != nil {
		return fmt.Errorf("encode hash for %s: %w", rec.Path, err)
	}

	_, err = s.db.ExecContext(ctx, upsertSQL,
		clientID,
		rec.Path.Type,
		strings.Join(rec.Path.Components, "/"),
		timestampMicros(rec.Timestamp),
		statJSON,
		hashJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert %s @ %d: %w", rec.Path, timestampMicros(rec.Timestamp), err)
	}
	return nil
}

// ReadPathInfo resolves the path's state at the given timestamp: the most
// recent snapshot at or before it, independently per attribute kind. A nil
// timestamp means "latest". Returns ErrPathNotFound if no record of any
// kind exists for the path.
func (s *Store) ReadPathInfo(ctx context.Context, clientID string, pathType vfs.PathType, components []string, at *time.Time) (*PathInfo, error) {
	pathKey := strings.Join(components, "/")

	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM client_paths WHERE client_id = ? AND path_type = ? AND path = ?)`,
		clientID, pathType, pathKey)
	if err != nil {
		return nil, fmt.Errorf("check path %s: %w", pathKey, err)
	}
	if !exists {
		return nil, ErrPathNotFound
	}

	cutoff := int64(math.MaxInt64)
	if at != nil {
		cutoff = timestampMicros(*at)
	}

	info := &PathInfo{Path: vfs.Path{Type: pathType, Components: components}}

	var row struct {
		Timestamp int64  `db:"timestamp"`
		Value     []byte `db:"value"`
	}

	err = s.db.GetContext(ctx, &row,
		`SELECT timestamp, stat AS value FROM client_paths
		 WHERE client_id = ? AND path_type = ? AND path = ? AND stat IS NOT NULL AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		clientID, pathType, pathKey, cutoff)
	if err == nil {
		var stat vfs.StatEntry
		if err := json.Unmarshal(row.Value, &stat); err != nil {
			return nil, fmt.Errorf("decode stat of %s: %w", pathKey, err)
		}
		info.Stat = &stat
		info.StatTimestamp = time.UnixMicro(row.Timestamp).UTC()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read stat of %s: %w", pathKey, err)
	}

	err = s.db.GetContext(ctx, &row,
		`SELECT timestamp, hash AS value FROM client_paths
		 WHERE client_id = ? AND path_type = ? AND path = ? AND hash IS NOT NULL AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		clientID, pathType, pathKey, cutoff)
	if err == nil {
		var hash vfs.HashEntry
		if err := json.Unmarshal(row.Value, &hash); err != nil {
			return nil, fmt.Errorf("decode hash of %s: %w", pathKey, err)
		}
		info.Hash = &hash
		info.HashTimestamp = time.UnixMicro(row.Timestamp).UTC()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read hash of %s: %w", pathKey, err)
	}

	return info, nil
}

// ReadPathInfos resolves the latest state of multiple paths at once. Paths
// with no record are omitted from the result, which is keyed by the joined
// component string.
func (s *Store) ReadPathInfos(ctx context.Context, clientID string, pathType vfs.PathType, componentsList [][]string) (map[string]*PathInfo, error) {
	infos := make(map[string]*PathInfo, len(componentsList))
	for _, components := range componentsList {
		info, err := s.ReadPathInfo(ctx, clientID, pathType, components, nil)
		if errors.Is(err, ErrPathNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos[strings.Join(components, "/")] = info
	}
	return infos, nil
}

func encodeSnapshot(v any) (any, error) {
	// a nil *StatEntry / *HashEntry must become SQL NULL, not "null"; an
	// untyped nil is required — the ncruces driver binds a nil []byte as a
	// zero-length BLOB rather than NULL
	switch snap := v.(type) {
	case *vfs.StatEntry:
		if snap == nil {
			return nil, nil
		}
	case *vfs.HashEntry:
		if snap == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func timestampMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
