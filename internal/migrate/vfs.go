package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openforensics/vfsmigrate/internal/legacy"
	"github.com/openforensics/vfsmigrate/internal/relstore"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

// VfsMigrator moves one client's hierarchical path data into the
// destination relational store: it expands the ancestor closure, reads the
// stat and hash timelines of every path independently, and upserts one
// destination record per distinct timestamp.
type VfsMigrator struct {
	src    legacy.Store
	dst    *relstore.Store
	dryRun bool
}

// ClientResult counts what happened during one client's migration pass.
type ClientResult struct {
	ClientID       string
	PathsMigrated  int
	PathsSkipped   int
	CorruptEntries int
	RecordsWritten int
}

func NewVfsMigrator(src legacy.Store, dst *relstore.Store, dryRun bool) *VfsMigrator {
	return &VfsMigrator{src: src, dst: dst, dryRun: dryRun}
}

// MigrateClient runs the full pass for one client. A history read failure
// skips that single path; a destination write failure aborts the client.
// Re-running is always safe: writes are idempotent upserts.
func (m *VfsMigrator) MigrateClient(ctx context.Context, clientID string) (*ClientResult, error) {
	res := &ClientResult{ClientID: clientID}

	var leaves []vfs.Path
	for _, pathType := range vfs.PathTypes {
		paths, err := m.src.EnumerateLeafPaths(ctx, clientID, pathType)
		if err != nil {
			return res, fmt.Errorf("enumerate %s paths of %s: %w", pathType, clientID, err)
		}
		leaves = append(leaves, paths...)
	}

	// ancestors sort first, so they get their records before descendants
	closure := vfs.Closure(leaves)
	slog.Info("migrating client vfs", "client", clientID, "leaves", len(leaves), "closure", len(closure), "dry_run", m.dryRun)

	for _, path := range closure {
		// a node in flight runs to completion; stop between nodes
		if err := ctx.Err(); err != nil {
			return res, err
		}

		records, corrupt, err := m.collectRecords(ctx, clientID, path)
		res.CorruptEntries += corrupt
		if err != nil {
			slog.Warn("skipping path", "client", clientID, "path", path, "error", err)
			res.PathsSkipped++
			continue
		}

		if !m.dryRun {
			for _, rec := range records {
				if err := m.dst.UpsertPathRecord(ctx, clientID, rec); err != nil {
					return res, fmt.Errorf("write records of %s: %w", path, err)
				}
				res.RecordsWritten++
			}
		}
		res.PathsMigrated++
	}

	return res, nil
}

// collectRecords reads both timelines of a path and merges them into
// destination records, one per distinct timestamp. A path with no history
// in either kind yields a single existence-only record.
func (m *VfsMigrator) collectRecords(ctx context.Context, clientID string, path vfs.Path) ([]*relstore.PathRecord, int, error) {
	var corrupt int

	statHist, n, err := m.readHistory(ctx, clientID, path, legacy.KindStat)
	corrupt += n
	if err != nil {
		return nil, corrupt, err
	}

	hashHist, n, err := m.readHistory(ctx, clientID, path, legacy.KindHash)
	corrupt += n
	if err != nil {
		return nil, corrupt, err
	}

	return mergeHistories(path, statHist, hashHist), corrupt, nil
}

// readHistory drains one timeline into memory, skipping corrupt entries.
// Transient store failures are retried before the path is given up on.
func (m *VfsMigrator) readHistory(ctx context.Context, clientID string, path vfs.Path, kind legacy.AttributeKind) ([]legacy.Snapshot, int, error) {
	var snaps []legacy.Snapshot
	var corrupt int

	err := withRetry(ctx, func() error {
		snaps = snaps[:0]
		corrupt = 0
		for snap, err := range m.src.ReadAttributeHistory(ctx, clientID, path, kind) {
			if err != nil {
				if errors.Is(err, legacy.ErrCorrupt) {
					slog.Warn("skipping corrupt history entry", "client", clientID, "path", path, "kind", kind, "error", err)
					corrupt++
					continue
				}
				return fmt.Errorf("read %s history: %w", kind, err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, corrupt, err
	}
	return snaps, corrupt, nil
}

// mergeHistories interleaves the two independent timelines. Every distinct
// timestamp produces one record carrying only the snapshot(s) whose own
// timeline has that exact timestamp; attribute kinds are never
// interpolated across each other.
func mergeHistories(path vfs.Path, statHist, hashHist []legacy.Snapshot) []*relstore.PathRecord {
	byTimestamp := make(map[int64]*relstore.PathRecord)

	recordAt := func(ts time.Time) *relstore.PathRecord {
		micros := ts.UnixMicro()
		rec, ok := byTimestamp[micros]
		if !ok {
			rec = &relstore.PathRecord{Path: path, Timestamp: ts}
			byTimestamp[micros] = rec
		}
		return rec
	}

	for _, snap := range statHist {
		recordAt(snap.Timestamp).Stat = snap.Stat
	}
	for _, snap := range hashHist {
		// a snapshot carrying no digest at all says nothing about content
		if snap.Hash == nil || snap.Hash.Empty() {
			continue
		}
		recordAt(snap.Timestamp).Hash = snap.Hash
	}

	if len(byTimestamp) == 0 {
		// pure intermediate ancestor: existence only, no timeline position
		return []*relstore.PathRecord{{Path: path}}
	}

	records := make([]*relstore.PathRecord, 0, len(byTimestamp))
	for _, rec := range byTimestamp {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}
