// Package directory provides the thin file/database abstraction the index
// core consumes instead of talking to os.* directly: a real filesystem
// backend for production use and an in-memory backend for tests. Every
// other package that touches storage (internal/segment, internal/builder,
// internal/oplog) is written against the Directory interface, never
// against *os.File.
package directory

import (
	"database/sql"
	"io"
)

// File is the minimal random-access file handle the segment and builder
// code needs: positioned reads for block lookups, positioned writes for
// serialization, and explicit durability control.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Sync flushes any OS-buffered writes to stable storage.
	Sync() error

	// Truncate resizes the file; the builder and the merger call it after
	// serialization to cut a segment file to the bytes actually written.
	Truncate(size int64) error

	// Size returns the file's current length in bytes.
	Size() (int64, error)
}

// Directory is a named collection of files and one embedded relational
// database, scoped to a single index's on-disk state.
type Directory interface {
	// Open opens an existing file by name for reading and writing.
	Open(name string) (File, error)

	// Create creates a new file by name, truncating it if it already
	// exists.
	Create(name string) (File, error)

	// Delete removes a file by name. Deleting a name that doesn't exist
	// is not an error.
	Delete(name string) error

	// Exists reports whether a file by name is present.
	Exists(name string) (bool, error)

	// List returns the names of every file currently present, in no
	// particular order.
	List() ([]string, error)

	// Rename atomically renames oldName to newName, replacing newName if
	// it already exists. The index manager does not use it: each IndexInfo
	// revision is written directly under its own new info_N name.
	Rename(oldName, newName string) error

	// OpenDatabase opens (creating if necessary) the embedded relational
	// store used by the operation log.
	OpenDatabase(name string) (*sql.DB, error)

	// Close releases any resources held by the directory (open database
	// handles). Files opened via Open/Create are independently closed by
	// their callers.
	Close() error
}
