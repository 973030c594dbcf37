package legacy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/db"
	"github.com/openforensics/vfsmigrate/internal/vfs"
)

func newDumpDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dump, err := db.NewSqliteDB(
		db.WithPath(filepath.Join(t.TempDir(), "legacy.db")),
		db.WithMaxOpenConns(1),
	)
	require.NoError(t, err)
	t.Cleanup(func() { dump.Close() })

	_, err = dump.Exec(DumpSchema)
	require.NoError(t, err)
	return dump
}

func insertAttr(t *testing.T, dump *sqlx.DB, subject, attribute string, ts time.Time, value string) {
	t.Helper()
	_, err := dump.Exec(
		`INSERT INTO attributes (subject, attribute, timestamp, value) VALUES (?, ?, ?, ?)`,
		subject, attribute, ts.UnixMicro(), []byte(value))
	require.NoError(t, err)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts.UTC()
}

func TestSQLiteStoreListClients(t *testing.T) {
	dump := newDumpDB(t)
	insertAttr(t, dump, "aff4:/C.1000000000000000/fs/os/foo", attrStat, time.Now(), `{}`)
	insertAttr(t, dump, "aff4:/C.2000000000000000/fs/os/bar", attrStat, time.Now(), `{}`)
	insertAttr(t, dump, "aff4:/C.2000000000000000/registry/baz", attrStat, time.Now(), `{}`)
	insertAttr(t, dump, "not-a-subject", attrStat, time.Now(), `{}`)

	store := NewSQLiteStore(dump)
	clients, err := store.ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"C.1000000000000000", "C.2000000000000000"}, clients)
}

func TestSQLiteStoreEnumerateLeafPaths(t *testing.T) {
	dump := newDumpDB(t)
	client := "C.1000000000000000"
	insertAttr(t, dump, "aff4:/"+client+"/fs/os/foo/bar", attrStat, time.Now(), `{}`)
	insertAttr(t, dump, "aff4:/"+client+"/fs/os/foo/bar", attrHash, time.Now(), `{}`)
	insertAttr(t, dump, "aff4:/"+client+"/fs/tsk/quux", attrStat, time.Now(), `{}`)
	insertAttr(t, dump, "aff4:/C.9999999999999999/fs/os/other", attrStat, time.Now(), `{}`)

	store := NewSQLiteStore(dump)

	osPaths, err := store.EnumerateLeafPaths(context.Background(), client, vfs.TypeOS)
	require.NoError(t, err)
	require.Len(t, osPaths, 1)
	assert.True(t, osPaths[0].Equal(vfs.NewPath(vfs.TypeOS, "foo", "bar")))

	tskPaths, err := store.EnumerateLeafPaths(context.Background(), client, vfs.TypeTSK)
	require.NoError(t, err)
	require.Len(t, tskPaths, 1)
	assert.True(t, tskPaths[0].Equal(vfs.NewPath(vfs.TypeTSK, "quux")))

	regPaths, err := store.EnumerateLeafPaths(context.Background(), client, vfs.TypeRegistry)
	require.NoError(t, err)
	assert.Empty(t, regPaths)
}

func TestSQLiteStoreReadAttributeHistory(t *testing.T) {
	dump := newDumpDB(t)
	client := "C.1000000000000000"
	subject := "aff4:/" + client + "/fs/os/foo"

	// inserted out of order; reads must come back ordered by timestamp
	insertAttr(t, dump, subject, attrStat, date(t, "2000-02-02"), `{"st_size":20}`)
	insertAttr(t, dump, subject, attrStat, date(t, "2000-01-01"), `{"st_size":10}`)
	insertAttr(t, dump, subject, attrStat, date(t, "2000-03-03"), `{"st_size":30}`)

	store := NewSQLiteStore(dump)
	path := vfs.NewPath(vfs.TypeOS, "foo")

	var sizes []int64
	for snap, err := range store.ReadAttributeHistory(context.Background(), client, path, KindStat) {
		require.NoError(t, err)
		require.NotNil(t, snap.Stat)
		sizes = append(sizes, snap.Stat.Size)
	}
	assert.Equal(t, []int64{10, 20, 30}, sizes)

	// restartable: a second pass sees the same sequence
	var again []int64
	for snap, err := range store.ReadAttributeHistory(context.Background(), client, path, KindStat) {
		require.NoError(t, err)
		again = append(again, snap.Stat.Size)
	}
	assert.Equal(t, sizes, again)

	// no hash history: empty sequence, not an error
	for range store.ReadAttributeHistory(context.Background(), client, path, KindHash) {
		t.Fatal("expected no hash history")
	}
}

func TestSQLiteStoreCorruptEntryIsSkippable(t *testing.T) {
	dump := newDumpDB(t)
	client := "C.1000000000000000"
	subject := "aff4:/" + client + "/fs/os/foo"

	insertAttr(t, dump, subject, attrStat, date(t, "2000-01-01"), `{"st_size":10}`)
	insertAttr(t, dump, subject, attrStat, date(t, "2000-02-02"), `{{{not json`)
	insertAttr(t, dump, subject, attrStat, date(t, "2000-03-03"), `{"st_size":30}`)

	store := NewSQLiteStore(dump)

	var sizes []int64
	var corrupt int
	for snap, err := range store.ReadAttributeHistory(context.Background(), client, vfs.NewPath(vfs.TypeOS, "foo"), KindStat) {
		if err != nil {
			assert.ErrorIs(t, err, ErrCorrupt)
			corrupt++
			continue
		}
		sizes = append(sizes, snap.Stat.Size)
	}

	assert.Equal(t, 1, corrupt)
	assert.Equal(t, []int64{10, 30}, sizes)
}

func TestSQLiteStoreBlobEnumeration(t *testing.T) {
	dump := newDumpDB(t)
	store := NewSQLiteStore(dump)
	ctx := context.Background()

	var want []string
	for _, content := range [][]byte{[]byte("aaa"), []byte("bbb"), []byte("ccc")} {
		id := blobs.Sum(content)
		_, err := dump.Exec(`INSERT INTO blobs (blob_id, content) VALUES (?, ?)`, id.String(), content)
		require.NoError(t, err)
		want = append(want, id.String())
	}

	var got []string
	cursor := ""
	for {
		ids, next, err := store.EnumerateBlobs(ctx, cursor, 2)
		require.NoError(t, err)
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			got = append(got, id.String())
		}
		cursor = next
	}
	assert.ElementsMatch(t, want, got)

	content, err := store.ReadBlob(ctx, blobs.Sum([]byte("bbb")))
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), content)

	_, err = store.ReadBlob(ctx, blobs.Sum([]byte("missing")))
	assert.True(t, errors.Is(err, blobs.ErrNotFound))
}
