package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/legacy"
)

const (
	// DefaultBlobBatchSize bounds how many blob identities one
	// enumeration page pulls from the legacy store.
	DefaultBlobBatchSize = 50

	// DefaultBlobFanOut bounds concurrent copies within one batch.
	DefaultBlobFanOut = 8
)

// ErrBlobMismatch flags content whose digest does not match its recorded
// identity. Unreachable for a well-formed legacy store, but guarded.
var ErrBlobMismatch = errors.New("blob content does not match its identity")

// BlobsMigrator copies every content-addressed object from the legacy
// store into the destination store in bounded batches. Blob writes are
// keyed by content identity and skip already-present objects, so any run
// can be safely resumed or repeated, with any batch size.
type BlobsMigrator struct {
	src    legacy.Store
	dst    blobs.Store
	fanOut int
	dryRun bool
}

// BlobResult counts one migration run over the blob store.
type BlobResult struct {
	Migrated    int
	Failed      int
	BytesCopied int64
}

func NewBlobsMigrator(src legacy.Store, dst blobs.Store, fanOut int, dryRun bool) *BlobsMigrator {
	if fanOut <= 0 {
		fanOut = DefaultBlobFanOut
	}
	return &BlobsMigrator{src: src, dst: dst, fanOut: fanOut, dryRun: dryRun}
}

// Execute runs the migration to completion. A single blob's failure is
// recorded and the batch continues; the run returns an error if any blob
// failed, with all the partial progress kept. Cancellation is honored
// between batches, never mid-copy.
func (m *BlobsMigrator) Execute(ctx context.Context, batchSize int) (*BlobResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBlobBatchSize
	}

	res := &BlobResult{}
	var mu sync.Mutex
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ids, next, err := m.src.EnumerateBlobs(ctx, cursor, batchSize)
		if err != nil {
			return res, fmt.Errorf("enumerate blobs after %q: %w", cursor, err)
		}
		if len(ids) == 0 {
			// a page can come back empty with a moved cursor when every
			// row on it was skipped as malformed; only a stuck cursor
			// means the enumeration is exhausted
			if next == cursor {
				break
			}
			cursor = next
			continue
		}

		var g errgroup.Group
		g.SetLimit(m.fanOut)
		for _, id := range ids {
			g.Go(func() error {
				size, err := m.copyBlob(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					slog.Error("blob migration failed", "blob_id", id, "error", err)
					res.Failed++
					return nil
				}
				res.Migrated++
				res.BytesCopied += size
				return nil
			})
		}
		g.Wait()

		// the cursor advances only once the whole batch has settled
		cursor = next
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("%d of %d blobs failed; partial progress kept, safe to re-run", res.Failed, res.Failed+res.Migrated)
	}
	return res, nil
}

func (m *BlobsMigrator) copyBlob(ctx context.Context, id blobs.ID) (int64, error) {
	var content []byte
	err := withRetry(ctx, func() error {
		var err error
		content, err = m.src.ReadBlob(ctx, id)
		if errors.Is(err, blobs.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	if blobs.Sum(content) != id {
		return 0, fmt.Errorf("%w: %s", ErrBlobMismatch, id)
	}

	if m.dryRun {
		return int64(len(content)), nil
	}

	err = withRetry(ctx, func() error {
		return m.dst.WriteIfAbsent(ctx, id, content)
	})
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	return int64(len(content)), nil
}
