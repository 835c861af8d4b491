package segment

import (
	"encoding/binary"
	"sort"

	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// docEntrySize is the on-disk size of one (docId, version, tombstone)
// record in a .fdx file.
const docEntrySize = 4 + 8 + 1

// DocEntry is one doc table record.
type DocEntry struct {
	DocID     uint32
	Version   uint64
	Tombstone bool
}

// DocTable is a segment's per-docId (version, tombstone) registry, loaded
// fully into memory and kept sorted by docId for binary search.
type DocTable struct {
	entries []DocEntry
}

// NewDocTable builds a DocTable from entries already sorted by DocID.
// Builders are responsible for the sort; merges produce sorted output by
// construction.
func NewDocTable(entries []DocEntry) *DocTable {
	return &DocTable{entries: entries}
}

// Get returns the entry for docID and true if present.
func (t *DocTable) Get(docID uint32) (DocEntry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].DocID >= docID })
	if i < len(t.entries) && t.entries[i].DocID == docID {
		return t.entries[i], true
	}
	return DocEntry{}, false
}

// GetVersion returns the version recorded for docID, or 0 if absent.
func (t *DocTable) GetVersion(docID uint32) uint64 {
	if e, ok := t.Get(docID); ok {
		return e.Version
	}
	return 0
}

// Contains reports whether docID is present and not tombstoned.
func (t *DocTable) Contains(docID uint32) bool {
	e, ok := t.Get(docID)
	return ok && !e.Tombstone
}

// Len returns the number of entries in the table.
func (t *DocTable) Len() int {
	return len(t.entries)
}

// Entries returns the table's entries in ascending docId order. Callers
// must not mutate the returned slice.
func (t *DocTable) Entries() []DocEntry {
	return t.entries
}

// EncodeDocTable serializes entries (must already be sorted by DocID) as a
// .fdx file: one fixed-size record per entry, terminated by a docId=0
// sentinel record.
func EncodeDocTable(entries []DocEntry) []byte {
	buf := make([]byte, 0, (len(entries)+1)*docEntrySize)
	for _, e := range entries {
		buf = appendDocEntry(buf, e)
	}
	buf = appendDocEntry(buf, DocEntry{})
	return buf
}

func appendDocEntry(buf []byte, e DocEntry) []byte {
	var rec [docEntrySize]byte
	binary.BigEndian.PutUint32(rec[0:4], e.DocID)
	binary.BigEndian.PutUint64(rec[4:12], e.Version)
	if e.Tombstone {
		rec[12] = 1
	}
	return append(buf, rec[:]...)
}

// DecodeDocTable parses a .fdx file's full contents. Parsing stops at the
// first docId=0 sentinel or at the end of buf, whichever comes first.
// segmentID is used only for error context.
func DecodeDocTable(buf []byte, segmentID uint32) (*DocTable, error) {
	var entries []DocEntry
	var lastDocID uint32

	for off := 0; off+docEntrySize <= len(buf); off += docEntrySize {
		docID := binary.BigEndian.Uint32(buf[off : off+4])
		if docID == 0 {
			return NewDocTable(entries), nil
		}
		if len(entries) > 0 && docID <= lastDocID {
			return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "doc table entries not strictly increasing").
				WithSegmentId(segmentID)
		}

		entries = append(entries, DocEntry{
			DocID:     docID,
			Version:   binary.BigEndian.Uint64(buf[off+4 : off+12]),
			Tombstone: buf[off+12] != 0,
		})
		lastDocID = docID
	}

	return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "doc table missing terminating sentinel").
		WithSegmentId(segmentID)
}
