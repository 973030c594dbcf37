package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

// subjectScheme prefixes every hierarchical key in the legacy dump.
const subjectScheme = "aff4:/"

// legacy attribute names as written by the original store
const (
	attrStat = "aff4:stat"
	attrHash = "aff4:hash"
)

// DumpSchema is the shape of a legacy store dump. Dump tooling and test
// fixtures create it; the adapter itself never writes.
const DumpSchema = `
CREATE TABLE IF NOT EXISTS attributes (
	subject TEXT NOT NULL,
	attribute TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	value BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attributes_subject ON attributes(subject, attribute, timestamp);

CREATE TABLE IF NOT EXISTS blobs (
	blob_id TEXT PRIMARY KEY,
	content BLOB NOT NULL
);
`

// SQLiteStore reads a legacy store dump. The dump flattens the whole
// hierarchical store into two tables:
//
//	attributes(subject, attribute, timestamp, value)
//	blobs(blob_id, content)
//
// where subject is the opaque tree key "aff4:/<client>/<root>/<path>",
// timestamp is unix microseconds and value is the JSON encoding of the
// attribute snapshot.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListClients(ctx context.Context) ([]string, error) {
	var subjects []string
	err := s.db.SelectContext(ctx, &subjects,
		`SELECT DISTINCT subject FROM attributes`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	set := make(map[string]struct{})
	for _, subject := range subjects {
		clientID, _, ok := splitSubject(subject)
		if !ok {
			slog.Warn("skipping malformed subject", "subject", subject)
			continue
		}
		set[clientID] = struct{}{}
	}

	clients := make([]string, 0, len(set))
	for clientID := range set {
		clients = append(clients, clientID)
	}
	sort.Strings(clients)
	return clients, nil
}

func (s *SQLiteStore) EnumerateLeafPaths(ctx context.Context, clientID string, pathType vfs.PathType) ([]vfs.Path, error) {
	prefix := subjectScheme + clientID + "/" + pathType.LegacyRoot() + "/"

	var subjects []string
	err := s.db.SelectContext(ctx, &subjects,
		`SELECT DISTINCT subject FROM attributes WHERE subject LIKE ? ORDER BY subject`,
		prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("enumerate %s paths for %s: %w", pathType, clientID, err)
	}

	paths := make([]vfs.Path, 0, len(subjects))
	for _, subject := range subjects {
		path := vfs.ParsePath(pathType, strings.TrimPrefix(subject, prefix))
		if path.IsRoot() {
			slog.Warn("skipping malformed subject", "subject", subject)
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *SQLiteStore) ReadAttributeHistory(ctx context.Context, clientID string, path vfs.Path, kind AttributeKind) iter.Seq2[Snapshot, error] {
	subject := subjectScheme + clientID + "/" + path.Type.LegacyRoot() + "/" + strings.Join(path.Components, "/")

	return func(yield func(Snapshot, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT timestamp, value FROM attributes WHERE subject = ? AND attribute = ? ORDER BY timestamp ASC`,
			subject, attributeName(kind))
		if err != nil {
			yield(Snapshot{}, fmt.Errorf("read %s history of %s: %w", kind, path, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var tsMicros int64
			var value []byte
			if err := rows.Scan(&tsMicros, &value); err != nil {
				if !yield(Snapshot{}, fmt.Errorf("scan %s history of %s: %w", kind, path, err)) {
					return
				}
				continue
			}
			snap, err := decodeSnapshot(kind, tsMicros, value)
			if err != nil {
				err = fmt.Errorf("decode %s history of %s: %w: %v", kind, path, ErrCorrupt, err)
			}
			if !yield(snap, err) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Snapshot{}, fmt.Errorf("read %s history of %s: %w", kind, path, err))
		}
	}
}

func (s *SQLiteStore) EnumerateBlobs(ctx context.Context, cursor string, limit int) ([]blobs.ID, string, error) {
	var rawIDs []string
	err := s.db.SelectContext(ctx, &rawIDs,
		`SELECT blob_id FROM blobs WHERE blob_id > ? ORDER BY blob_id LIMIT ?`,
		cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("enumerate blobs after %q: %w", cursor, err)
	}
	if len(rawIDs) == 0 {
		return nil, cursor, nil
	}

	ids := make([]blobs.ID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := blobs.ParseID(raw)
		if err != nil {
			slog.Warn("skipping malformed blob id", "blob_id", raw, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rawIDs[len(rawIDs)-1], nil
}

func (s *SQLiteStore) ReadBlob(ctx context.Context, id blobs.ID) ([]byte, error) {
	var content []byte
	err := s.db.GetContext(ctx, &content,
		`SELECT content FROM blobs WHERE blob_id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return content, nil
}

func attributeName(kind AttributeKind) string {
	switch kind {
	case KindStat:
		return attrStat
	case KindHash:
		return attrHash
	default:
		return ""
	}
}

func decodeSnapshot(kind AttributeKind, tsMicros int64, value []byte) (Snapshot, error) {
	snap := Snapshot{Timestamp: time.UnixMicro(tsMicros).UTC()}
	switch kind {
	case KindStat:
		var stat vfs.StatEntry
		if err := json.Unmarshal(value, &stat); err != nil {
			return Snapshot{}, err
		}
		snap.Stat = &stat
	case KindHash:
		var hash vfs.HashEntry
		if err := json.Unmarshal(value, &hash); err != nil {
			return Snapshot{}, err
		}
		snap.Hash = &hash
	default:
		return Snapshot{}, fmt.Errorf("unknown attribute kind %d", kind)
	}
	return snap, nil
}

// splitSubject decomposes "aff4:/<client>/<rest>" into its client id and
// remainder.
func splitSubject(subject string) (clientID, rest string, ok bool) {
	trimmed, found := strings.CutPrefix(subject, subjectScheme)
	if !found {
		return "", "", false
	}
	clientID, rest, found = strings.Cut(trimmed, "/")
	if !found || clientID == "" {
		return "", "", false
	}
	return clientID, rest, true
}

var _ Store = (*SQLiteStore)(nil)
