package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/legacy"
	"github.com/openforensics/vfsmigrate/internal/relstore"
)

const DefaultConcurrency = 4

// ErrPartialRun reports that the run completed but some clients or blobs
// failed. Everything that succeeded is kept; re-running resumes safely.
var ErrPartialRun = errors.New("migration finished with failures")

// Config controls one migration run.
type Config struct {
	// Clients to migrate; empty means every client in the legacy store.
	Clients []string

	// Concurrency bounds how many clients migrate in parallel.
	Concurrency int

	// BlobBatchSize bounds one blob enumeration page.
	BlobBatchSize int

	// BlobFanOut bounds concurrent blob copies within a batch.
	BlobFanOut int

	// DryRun reads and validates everything but writes nothing.
	DryRun bool
}

// Summary is the final report of a run.
type Summary struct {
	RunID           string
	ClientsMigrated int
	ClientsFailed   int
	PathsMigrated   int
	PathsSkipped    int
	CorruptEntries  int
	RecordsWritten  int
	BlobsMigrated   int
	BlobsFailed     int
	BlobBytes       int64
	Duration        time.Duration
}

// Runner drives a whole migration: every target client's VFS data, then
// the blob store. Clients are independent units of work and run on a
// bounded worker pool; one client's failure never aborts the run.
type Runner struct {
	cfg     Config
	src     legacy.Store
	dst     *relstore.Store
	blobDst blobs.Store
}

func NewRunner(cfg Config, src legacy.Store, dst *relstore.Store, blobDst blobs.Store) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BlobBatchSize <= 0 {
		cfg.BlobBatchSize = DefaultBlobBatchSize
	}
	return &Runner{cfg: cfg, src: src, dst: dst, blobDst: blobDst}
}

func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}

	clients := r.cfg.Clients
	if len(clients) == 0 {
		var err error
		clients, err = r.src.ListClients(ctx)
		if err != nil {
			return summary, fmt.Errorf("list clients: %w", err)
		}
	}
	slog.Info("migration run starting", "run_id", summary.RunID, "clients", len(clients), "concurrency", r.cfg.Concurrency, "dry_run", r.cfg.DryRun)

	vfsMigrator := NewVfsMigrator(r.src, r.dst, r.cfg.DryRun)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for _, clientID := range clients {
		// cancellation is honored between clients; a client already
		// in flight runs to completion
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := vfsMigrator.MigrateClient(ctx, clientID)

			mu.Lock()
			defer mu.Unlock()
			summary.PathsMigrated += res.PathsMigrated
			summary.PathsSkipped += res.PathsSkipped
			summary.CorruptEntries += res.CorruptEntries
			summary.RecordsWritten += res.RecordsWritten
			if err != nil {
				slog.Error("client migration failed", "client", clientID, "error", err)
				summary.ClientsFailed++
			} else {
				summary.ClientsMigrated++
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(start)
		return summary, err
	}

	blobMigrator := NewBlobsMigrator(r.src, r.blobDst, r.cfg.BlobFanOut, r.cfg.DryRun)
	blobRes, blobErr := blobMigrator.Execute(ctx, r.cfg.BlobBatchSize)
	summary.BlobsMigrated = blobRes.Migrated
	summary.BlobsFailed = blobRes.Failed
	summary.BlobBytes = blobRes.BytesCopied
	summary.Duration = time.Since(start)

	if errors.Is(blobErr, context.Canceled) || errors.Is(blobErr, context.DeadlineExceeded) {
		return summary, blobErr
	}
	if summary.ClientsFailed > 0 || blobErr != nil {
		return summary, fmt.Errorf("%w: %d clients failed, %d blobs failed", ErrPartialRun, summary.ClientsFailed, summary.BlobsFailed)
	}
	return summary, nil
}
