package relstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openforensics/vfsmigrate/internal/blobs"
)

const blobSchemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
	blob_id TEXT PRIMARY KEY,
	content BLOB NOT NULL
);
`

// BlobStore is the destination blob store backed by the relational
// database. Content is keyed by its identity, so INSERT OR IGNORE gives
// the write-if-absent semantics for free.
type BlobStore struct {
	db *sqlx.DB
}

func NewBlobStore(db *sqlx.DB) (*BlobStore, error) {
	if _, err := db.Exec(blobSchemaSQL); err != nil {
		return nil, fmt.Errorf("init blob store schema: %w", err)
	}
	return &BlobStore{db: db}, nil
}

func (b *BlobStore) WriteIfAbsent(ctx context.Context, id blobs.ID, content []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blobs (blob_id, content) VALUES (?, ?)`,
		id.String(), content)
	if err != nil {
		return fmt.Errorf("write blob %s: %w", id, err)
	}
	return nil
}

func (b *BlobStore) Read(ctx context.Context, id blobs.ID) ([]byte, error) {
	var content []byte
	err := b.db.GetContext(ctx, &content,
		`SELECT content FROM blobs WHERE blob_id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return content, nil
}

var _ blobs.Store = (*BlobStore)(nil)
