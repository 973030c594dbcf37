package blobs

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no blob with the given identity exists.
	ErrNotFound = errors.New("blob not found")
)

// Store is a destination content-addressed blob store.
type Store interface {
	// WriteIfAbsent stores the content under its identity. Writing an
	// identity that is already present is a no-op success.
	WriteIfAbsent(ctx context.Context, id ID, content []byte) error

	// Read returns the full content of the blob, or ErrNotFound.
	Read(ctx context.Context, id ID) ([]byte, error)
}
