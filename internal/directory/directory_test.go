package directory_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/directory"
)

func backends(t *testing.T) map[string]directory.Directory {
	t.Helper()
	return map[string]directory.Directory{
		"fs":     mustFS(t),
		"memory": directory.NewMemory(),
	}
}

func mustFS(t *testing.T) directory.Directory {
	t.Helper()
	d, err := directory.NewFS(filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, err)
	return d
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f, err := dir.Create("segment_1.fid")
			require.NoError(t, err)

			_, err = f.WriteAt([]byte("hello world"), 0)
			require.NoError(t, err)
			require.NoError(t, f.Sync())
			require.NoError(t, f.Close())

			f2, err := dir.Open("segment_1.fid")
			require.NoError(t, err)
			defer f2.Close()

			buf := make([]byte, 5)
			n, err := f2.ReadAt(buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			require.Equal(t, "world", string(buf))
		})
	}
}

func TestListAndDelete(t *testing.T) {
	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"a", "b", "c"} {
				f, err := dir.Create(n)
				require.NoError(t, err)
				require.NoError(t, f.Close())
			}

			names, err := dir.List()
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"a", "b", "c"}, names)

			require.NoError(t, dir.Delete("b"))
			exists, err := dir.Exists("b")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestRenamePromotesNewRevision(t *testing.T) {
	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f, err := dir.Create("info_1.tmp")
			require.NoError(t, err)
			_, err = f.WriteAt([]byte("revision-1"), 0)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			require.NoError(t, dir.Rename("info_1.tmp", "info_1"))

			exists, err := dir.Exists("info_1.tmp")
			require.NoError(t, err)
			require.False(t, exists)

			exists, err = dir.Exists("info_1")
			require.NoError(t, err)
			require.True(t, exists)
		})
	}
}

func TestOpenDatabaseIsUsable(t *testing.T) {
	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db, err := dir.OpenDatabase("control.db")
			require.NoError(t, err)

			_, err = db.Exec(`CREATE TABLE IF NOT EXISTS oplog (
				op_id INTEGER PRIMARY KEY AUTOINCREMENT,
				op_time INTEGER,
				op_data BLOB
			)`)
			require.NoError(t, err)

			_, err = db.Exec(`INSERT INTO oplog (op_time, op_data) VALUES (?, ?)`, 1, []byte("payload"))
			require.NoError(t, err)

			var count int
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM oplog`).Scan(&count))
			require.Equal(t, 1, count)

			require.NoError(t, dir.Close())
		})
	}
}
