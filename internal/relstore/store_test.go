package relstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/db"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.NewSqliteDB(
		db.WithPath(filepath.Join(t.TempDir(), "dest.db")),
		db.WithMaxOpenConns(1),
	)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := NewStore(database)
	require.NoError(t, err)
	return store
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts.UTC()
}

func TestPointInTimeResolution(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	path := vfs.NewPath(vfs.TypeOS, "foo")

	for _, snap := range []struct {
		ts   string
		size int64
	}{
		{"2000-01-01", 10},
		{"2000-02-02", 20},
		{"2000-03-03", 30},
	} {
		err := store.UpsertPathRecord(ctx, "C.1", &PathRecord{
			Path:      path,
			Timestamp: date(t, snap.ts),
			Stat:      &vfs.StatEntry{Size: snap.size},
		})
		require.NoError(t, err)
	}

	for _, tc := range []struct {
		at   string
		size int64
	}{
		{"2000-01-10", 10},
		{"2000-02-20", 20},
		{"2000-03-30", 30},
	} {
		at := date(t, tc.at)
		info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"foo"}, &at)
		require.NoError(t, err)
		require.NotNil(t, info.Stat, "at %s", tc.at)
		assert.Equal(t, tc.size, info.Stat.Size, "at %s", tc.at)
	}

	// before the first snapshot the stat is absent
	before := date(t, "1999-12-31")
	info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"foo"}, &before)
	require.NoError(t, err)
	assert.Nil(t, info.Stat)

	// no timestamp means latest
	info, err = store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"foo"}, nil)
	require.NoError(t, err)
	require.NotNil(t, info.Stat)
	assert.Equal(t, int64(30), info.Stat.Size)
}

func TestIndependentKindResolution(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	path := vfs.NewPath(vfs.TypeOS, "bar")

	// hash history only, no stat history
	err := store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path:      path,
		Timestamp: date(t, "2010-01-01"),
		Hash:      &vfs.HashEntry{MD5: []byte("quux")},
	})
	require.NoError(t, err)

	info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"bar"}, nil)
	require.NoError(t, err)
	assert.Nil(t, info.Stat)
	require.NotNil(t, info.Hash)
	assert.Equal(t, []byte("quux"), info.Hash.MD5)
}

func TestKindsResolveAtTheirOwnTimestamps(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	path := vfs.NewPath(vfs.TypeOS, "baz")

	// a stat-only record and a later hash-only record are separate point
	// events; a read resolves each field independently
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path:      path,
		Timestamp: date(t, "2020-01-01"),
		Stat:      &vfs.StatEntry{Mode: 1337},
	}))
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path:      path,
		Timestamp: date(t, "2020-06-01"),
		Hash:      &vfs.HashEntry{SHA256: []byte("s")},
	}))

	at := date(t, "2020-12-31")
	info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"baz"}, &at)
	require.NoError(t, err)
	require.NotNil(t, info.Stat)
	require.NotNil(t, info.Hash)
	assert.Equal(t, uint64(1337), info.Stat.Mode)
	assert.True(t, info.StatTimestamp.Equal(date(t, "2020-01-01")))
	assert.True(t, info.HashTimestamp.Equal(date(t, "2020-06-01")))

	// between the two events only the stat is visible
	mid := date(t, "2020-03-01")
	info, err = store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"baz"}, &mid)
	require.NoError(t, err)
	assert.NotNil(t, info.Stat)
	assert.Nil(t, info.Hash)
}

func TestUpsertIsIdempotentAndMergesFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	path := vfs.NewPath(vfs.TypeOS, "merge")
	ts := date(t, "2021-01-01")

	rec := &PathRecord{Path: path, Timestamp: ts, Stat: &vfs.StatEntry{Size: 42}}
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", rec))
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", rec))

	// a later pass adds the hash to the same key without clobbering stat
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path:      path,
		Timestamp: ts,
		Hash:      &vfs.HashEntry{SHA1: []byte("h")},
	}))

	info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"merge"}, nil)
	require.NoError(t, err)
	require.NotNil(t, info.Stat)
	require.NotNil(t, info.Hash)
	assert.Equal(t, int64(42), info.Stat.Size)

	var count int
	require.NoError(t, store.db.Get(&count, `SELECT COUNT(*) FROM client_paths`))
	assert.Equal(t, 1, count)
}

func TestExistenceOnlyRecord(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path: vfs.NewPath(vfs.TypeOS, "dir"),
	}))

	info, err := store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"dir"}, nil)
	require.NoError(t, err)
	assert.Nil(t, info.Stat)
	assert.Nil(t, info.Hash)

	_, err = store.ReadPathInfo(ctx, "C.1", vfs.TypeOS, []string{"absent"}, nil)
	assert.True(t, errors.Is(err, ErrPathNotFound))
}

func TestReadPathInfos(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path: vfs.NewPath(vfs.TypeOS, "foo"),
	}))
	require.NoError(t, store.UpsertPathRecord(ctx, "C.1", &PathRecord{
		Path:      vfs.NewPath(vfs.TypeOS, "foo", "bar"),
		Timestamp: date(t, "2022-01-01"),
		Stat:      &vfs.StatEntry{MTimeMicros: 101},
	}))

	infos, err := store.ReadPathInfos(ctx, "C.1", vfs.TypeOS, [][]string{
		{"foo"}, {"foo", "bar"}, {"nope"},
	})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Nil(t, infos["foo"].Stat)
	require.NotNil(t, infos["foo/bar"].Stat)
	assert.Equal(t, int64(101), infos["foo/bar"].Stat.MTimeMicros)
}

func TestBlobStoreWriteIfAbsent(t *testing.T) {
	database, err := db.NewSqliteDB(
		db.WithPath(filepath.Join(t.TempDir(), "dest.db")),
		db.WithMaxOpenConns(1),
	)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := NewBlobStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("hello")
	id := blobs.Sum(content)

	require.NoError(t, store.WriteIfAbsent(ctx, id, content))
	// re-writing an existing identity is a no-op success
	require.NoError(t, store.WriteIfAbsent(ctx, id, content))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = store.Read(ctx, blobs.Sum([]byte("other")))
	assert.True(t, errors.Is(err, blobs.ErrNotFound))
}
