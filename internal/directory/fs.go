package directory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/filesys"
)

// FSDirectory is the production Directory backend: every name resolves to
// a real file under root.
type FSDirectory struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewFS creates (if necessary) root and returns a Directory rooted there.
func NewFS(root string) (*FSDirectory, error) {
	if err := filesys.CreateDir(root, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, root)
	}
	return &FSDirectory{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (d *FSDirectory) path(name string) string {
	return filepath.Join(d.root, name)
}

func (d *FSDirectory) Open(name string) (File, error) {
	f, err := os.OpenFile(d.path(name), os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, d.path(name), name)
	}
	return &osFile{f: f, path: d.path(name)}, nil
}

func (d *FSDirectory) Create(name string) (File, error) {
	f, err := os.OpenFile(d.path(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, d.path(name), name)
	}
	return &osFile{f: f, path: d.path(name)}, nil
}

func (d *FSDirectory) Delete(name string) error {
	if err := os.Remove(d.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "deleting file").
			WithPath(d.path(name))
	}
	return nil
}

func (d *FSDirectory) Exists(name string) (bool, error) {
	return filesys.Exists(d.path(name))
}

func (d *FSDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "listing directory").
			WithPath(d.root)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d *FSDirectory) Rename(oldName, newName string) error {
	if err := os.Rename(d.path(oldName), d.path(newName)); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "renaming file").
			WithPath(d.path(oldName)).
			WithDetail("newName", newName)
	}
	return nil
}

// OpenDatabase opens a pure-Go SQLite handle over name, reusing the
// connection across calls with the same name. WAL mode and a busy timeout
// are set so the single-writer oplog tolerates concurrent readers.
func (d *FSDirectory) OpenDatabase(name string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[name]; ok {
		return db, nil
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		d.path(name),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "opening oplog database").
			WithDetail("path", d.path(name))
	}
	db.SetMaxOpenConns(1)

	d.dbs[name] = db
	return db, nil
}

func (d *FSDirectory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, db := range d.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database %s: %w", name, err)
		}
	}
	d.dbs = make(map[string]*sql.DB)
	return firstErr
}

// osFile adapts *os.File to the File interface.
type osFile struct {
	f    *os.File
	path string
}

func (o *osFile) ReadAt(p []byte, off int64) (int, error)  { return o.f.ReadAt(p, off) }
func (o *osFile) WriteAt(p []byte, off int64) (int, error) { return o.f.WriteAt(p, off) }
func (o *osFile) Close() error                             { return o.f.Close() }
func (o *osFile) Truncate(size int64) error                { return o.f.Truncate(size) }

// Sync flushes the file to stable storage, classifying the common
// disk-full/read-only-filesystem failures a sealed segment or oplog write
// can hit partway through a commit.
func (o *osFile) Sync() error {
	if err := o.f.Sync(); err != nil {
		return errors.ClassifySyncError(err, filepath.Base(o.path), o.path, 0)
	}
	return nil
}

func (o *osFile) Size() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
