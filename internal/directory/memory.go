package directory

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// MemDirectory is an in-memory Directory backend for tests: files are
// byte buffers guarded by a mutex, and the embedded database is a
// SQLite connection scoped to this process (shared-cache, unique per
// instance) so it behaves like a real oplog without touching disk.
type MemDirectory struct {
	mu    sync.Mutex
	files map[string]*memBuf

	dbMu sync.Mutex
	dbs  map[string]*sql.DB
}

// NewMemory returns an empty in-memory Directory.
func NewMemory() *MemDirectory {
	return &MemDirectory{
		files: make(map[string]*memBuf),
		dbs:   make(map[string]*sql.DB),
	}
}

func (d *MemDirectory) Open(name string) (File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.files[name]
	if !ok {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeIO, "file does not exist").
			WithPath(name)
	}
	return &memFile{buf: b}, nil
}

func (d *MemDirectory) Create(name string) (File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := &memBuf{}
	d.files[name] = b
	return &memFile{buf: b}, nil
}

func (d *MemDirectory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, name)
	return nil
}

func (d *MemDirectory) Exists(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[name]
	return ok, nil
}

func (d *MemDirectory) List() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	return names, nil
}

func (d *MemDirectory) Rename(oldName, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.files[oldName]
	if !ok {
		return errors.NewStorageError(nil, errors.ErrorCodeIO, "rename source does not exist").
			WithPath(oldName)
	}
	d.files[newName] = b
	delete(d.files, oldName)
	return nil
}

// memDBSeq numbers in-memory databases across every MemDirectory in the
// process, so no two instances resolve to the same shared-cache name.
var memDBSeq atomic.Uint64

// OpenDatabase opens a private in-memory SQLite database unique to this
// call's name, scoped to the MemDirectory instance so concurrent tests
// never share state.
func (d *MemDirectory) OpenDatabase(name string) (*sql.DB, error) {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()

	if db, ok := d.dbs[name]; ok {
		return db, nil
	}

	dsn := fmt.Sprintf("file:memdb_%d_%s?mode=memory&cache=shared", memDBSeq.Add(1), name)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "opening in-memory oplog database")
	}
	db.SetMaxOpenConns(1)

	d.dbs[name] = db
	return db, nil
}

func (d *MemDirectory) Close() error {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()

	var firstErr error
	for name, db := range d.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database %s: %w", name, err)
		}
	}
	d.dbs = make(map[string]*sql.DB)
	return firstErr
}

// memBuf is a growable byte buffer supporting positioned reads and writes,
// standing in for a real file.
type memBuf struct {
	mu   sync.RWMutex
	data []byte
}

func (b *memBuf) readAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off >= int64(len(b.data)) {
		return 0, fmt.Errorf("memdir: read past end of file")
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("memdir: short read")
	}
	return n, nil
}

func (b *memBuf) writeAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	return copy(b.data[off:], p), nil
}

func (b *memBuf) truncate(size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size <= int64(len(b.data)) {
		b.data = b.data[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
}

func (b *memBuf) size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// memFile adapts memBuf to the File interface.
type memFile struct {
	buf *memBuf
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error)  { return f.buf.readAt(p, off) }
func (f *memFile) WriteAt(p []byte, off int64) (int, error) { return f.buf.writeAt(p, off) }
func (f *memFile) Close() error                             { return nil }
func (f *memFile) Sync() error                              { return nil }
func (f *memFile) Truncate(size int64) error {
	f.buf.truncate(size)
	return nil
}
func (f *memFile) Size() (int64, error) { return f.buf.size(), nil }
