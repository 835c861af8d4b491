// Package builder implements the mutable in-memory staging segment (§4.C):
// an ordered hash -> docId multimap that accepts updates, answers
// searches against the buffered postings, and serializes to a sealed
// segment's three files once frozen.
package builder

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/block"
	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/segment"
	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// docState is the builder's mutable doc table entry.
type docState struct {
	version   uint64
	tombstone bool
}

// Builder is the mutable staging segment. Multiple concurrent readers
// (Search) are safe under the read lock; mutation (Add/Delete) takes the
// write lock. Freeze takes no lock; it only sets an atomic flag.
type Builder struct {
	SegmentID uint32

	blockSize int
	log       *zap.SugaredLogger

	mu       sync.RWMutex
	postings *immutable.SortedMap[uint32, []uint32] // hash -> sorted, deduped docIDs
	docHash  map[uint32][]uint32                    // docID -> hashes currently posted, for purge-on-overwrite
	docTable map[uint32]*docState

	size    int
	minOpID uint64
	maxOpID uint64

	frozen atomic.Bool
}

// New creates an empty Builder for segmentID, which will serialize blocks
// of blockSize bytes once frozen.
func New(segmentID uint32, blockSize int, log *zap.SugaredLogger) *Builder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Builder{
		SegmentID: segmentID,
		blockSize: blockSize,
		log:       log,
		postings:  &immutable.SortedMap[uint32, []uint32]{},
		docHash:   make(map[uint32][]uint32),
		docTable:  make(map[uint32]*docState),
	}
}

// Size returns the number of postings currently buffered.
func (b *Builder) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// OpIDRange returns the [minOpID, maxOpID] of operations applied to this
// builder so far, or (0, 0) if none have been applied yet.
func (b *Builder) OpIDRange() (uint64, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.minOpID, b.maxOpID
}

// Add applies an InsertOrUpdate: any prior postings for docID in this
// builder are purged first (the doc table version would mask them anyway;
// purging keeps the in-memory structure from growing unboundedly across
// repeated overwrites of the same doc within one builder's lifetime), then
// hashes are inserted at opID.
func (b *Builder) Add(docID uint32, hashes []uint32, opID uint64) error {
	if b.frozen.Load() {
		return errors.NewIndexError(nil, errors.ErrorCodeIndexFrozen, "cannot add to a frozen builder segment").
			WithOperation("add")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeLocked(docID)

	unique := dedupSorted(hashes)
	for _, h := range unique {
		b.insertPostingLocked(h, docID)
	}
	b.docHash[docID] = unique
	b.docTable[docID] = &docState{version: opID, tombstone: false}

	b.bumpOpIDRangeLocked(opID)
	return nil
}

// Delete applies a Delete: marks the doc table tombstone at opID. Existing
// postings are left in place; the doc table's tombstone masks them during
// search, and a later merge physically drops them (§4.G, §9 design notes).
func (b *Builder) Delete(docID uint32, opID uint64) error {
	if b.frozen.Load() {
		return errors.NewIndexError(nil, errors.ErrorCodeIndexFrozen, "cannot delete in a frozen builder segment").
			WithOperation("delete")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.docTable[docID] = &docState{version: opID, tombstone: true}
	b.bumpOpIDRangeLocked(opID)
	return nil
}

func (b *Builder) bumpOpIDRangeLocked(opID uint64) {
	if b.minOpID == 0 || opID < b.minOpID {
		b.minOpID = opID
	}
	if opID > b.maxOpID {
		b.maxOpID = opID
	}
}

// purgeLocked removes every posting currently attributed to docID from the
// multimap. Caller must hold b.mu for writing.
func (b *Builder) purgeLocked(docID uint32) {
	prev, ok := b.docHash[docID]
	if !ok {
		return
	}
	for _, h := range prev {
		b.removePostingLocked(h, docID)
	}
	delete(b.docHash, docID)
}

func (b *Builder) insertPostingLocked(hash, docID uint32) {
	existing, _ := b.postings.Get(hash)
	i := sort.Search(len(existing), func(i int) bool { return existing[i] >= docID })
	if i < len(existing) && existing[i] == docID {
		return // already present; Add()'s purge should prevent this in practice.
	}
	grown := make([]uint32, len(existing)+1)
	copy(grown, existing[:i])
	grown[i] = docID
	copy(grown[i+1:], existing[i:])
	b.postings = b.postings.Set(hash, grown)
	b.size++
}

func (b *Builder) removePostingLocked(hash, docID uint32) {
	existing, ok := b.postings.Get(hash)
	if !ok {
		return
	}
	i := sort.Search(len(existing), func(i int) bool { return existing[i] >= docID })
	if i >= len(existing) || existing[i] != docID {
		return
	}
	if len(existing) == 1 {
		b.postings = b.postings.Delete(hash)
	} else {
		shrunk := make([]uint32, len(existing)-1)
		copy(shrunk, existing[:i])
		copy(shrunk[i:], existing[i+1:])
		b.postings = b.postings.Set(hash, shrunk)
	}
	b.size--
}

// Version returns the version and tombstone state recorded for docID in
// this builder's doc table, if present.
func (b *Builder) Version(docID uint32) (version uint64, tombstone bool, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.docTable[docID]
	if !ok {
		return 0, false, false
	}
	return st.version, st.tombstone, true
}

// Freeze forbids further mutation. Idempotent.
func (b *Builder) Freeze() {
	b.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (b *Builder) Frozen() bool {
	return b.frozen.Load()
}

// Search scans the builder's multimap for every hash in sortedQuery
// (sorted ascending, deduplicated) and returns per-docId overlap counts.
func (b *Builder) Search(sortedQuery []uint32) []segment.Hit {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[uint32]int)
	for _, h := range sortedQuery {
		docIDs, ok := b.postings.Get(h)
		if !ok {
			continue
		}
		for _, d := range docIDs {
			counts[d]++
		}
	}

	hits := make([]segment.Hit, 0, len(counts))
	for d, n := range counts {
		hits = append(hits, segment.Hit{DocID: d, Matches: n})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits
}

// DocTable snapshots the builder's doc table as sorted segment.DocEntry
// records, suitable for serialization or for cross-segment version lookups
// during search.
func (b *Builder) DocTable() []segment.DocEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]segment.DocEntry, 0, len(b.docTable))
	for docID, st := range b.docTable {
		entries = append(entries, segment.DocEntry{DocID: docID, Version: st.version, Tombstone: st.tombstone})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocID < entries[j].DocID })
	return entries
}

// SerializeResult summarizes a frozen builder's serialized form, matching
// the fields an IndexInfo segment descriptor needs.
type SerializeResult struct {
	SegmentID  uint32
	BlockCount int
	LastHash   uint32
	Checksum   uint64
	MinOpID    uint64
	MaxOpID    uint64
}

// Serialize writes the frozen builder's postings and doc table to dir as a
// new sealed segment's three files, using §4.A's block codec. The builder
// must already be frozen.
func (b *Builder) Serialize(dir directory.Directory) (SerializeResult, error) {
	if !b.Frozen() {
		return SerializeResult{}, errors.NewIndexError(nil, errors.ErrorCodeIndexFrozen, "cannot serialize an unfrozen builder").
			WithOperation("serialize")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	fiiName, fidName, fdxName := segment.FileNames(b.SegmentID)

	fid, err := dir.Create(fidName)
	if err != nil {
		return SerializeResult{}, err
	}
	defer fid.Close()

	header := segment.EncodeHeader(b.blockSize)
	if _, err := fid.WriteAt(header, 0); err != nil {
		return SerializeResult{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing segment header").WithFileName(fidName)
	}

	var ranges []segment.BlockRange
	var lastHash uint32
	off := int64(len(header))

	w := block.NewWriter(b.blockSize, b.SegmentID)
	var blockFirstHash uint32
	haveFirst := false

	flush := func() error {
		if w.Len() == 0 {
			return nil
		}
		buf := w.Seal()
		if _, err := fid.WriteAt(buf, off); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "writing posting block").WithFileName(fidName)
		}
		off += int64(len(buf))
		ranges = append(ranges, segment.BlockRange{FirstHash: blockFirstHash, LastHash: lastHash})
		return nil
	}

	it := b.postings.Iterator()
	for !it.Done() {
		hash, docIDs, _ := it.Next()
		for _, docID := range docIDs {
			if !haveFirst {
				blockFirstHash = hash
				haveFirst = true
			}
			if err := w.Add(hash, docID); err != nil {
				if cErr := flush(); cErr != nil {
					return SerializeResult{}, cErr
				}
				w = block.NewWriter(b.blockSize, b.SegmentID)
				haveFirst = true
				blockFirstHash = hash
				if err := w.Add(hash, docID); err != nil {
					return SerializeResult{}, err
				}
			}
			lastHash = hash
		}
	}
	if err := flush(); err != nil {
		return SerializeResult{}, err
	}

	if err := fid.Truncate(off); err != nil {
		return SerializeResult{}, errors.NewStorageError(err, errors.ErrorCodeIO, "truncating segment file").WithFileName(fidName)
	}
	if err := fid.Sync(); err != nil {
		return SerializeResult{}, errors.NewStorageError(err, errors.ErrorCodeIO, "syncing segment file").WithFileName(fidName)
	}

	fii, err := dir.Create(fiiName)
	if err != nil {
		return SerializeResult{}, err
	}
	fiiBytes := segment.EncodeBlockIndex(ranges)
	if _, err := fii.WriteAt(fiiBytes, 0); err != nil {
		fii.Close()
		return SerializeResult{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing block index").WithFileName(fiiName)
	}
	if err := fii.Sync(); err != nil {
		fii.Close()
		return SerializeResult{}, err
	}
	fii.Close()

	fdx, err := dir.Create(fdxName)
	if err != nil {
		return SerializeResult{}, err
	}
	docEntries := b.docTableLocked()
	fdxBytes := segment.EncodeDocTable(docEntries)
	if _, err := fdx.WriteAt(fdxBytes, 0); err != nil {
		fdx.Close()
		return SerializeResult{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing doc table").WithFileName(fdxName)
	}
	if err := fdx.Sync(); err != nil {
		fdx.Close()
		return SerializeResult{}, err
	}
	fdx.Close()

	checksum := xxh3.Hash(fiiBytes) ^ xxh3.Hash(fdxBytes)

	return SerializeResult{
		SegmentID:  b.SegmentID,
		BlockCount: len(ranges),
		LastHash:   lastHash,
		Checksum:   checksum,
		MinOpID:    b.minOpID,
		MaxOpID:    b.maxOpID,
	}, nil
}

// docTableLocked is DocTable's body, callable while b.mu is already held.
func (b *Builder) docTableLocked() []segment.DocEntry {
	entries := make([]segment.DocEntry, 0, len(b.docTable))
	for docID, st := range b.docTable {
		entries = append(entries, segment.DocEntry{DocID: docID, Version: st.version, Tombstone: st.tombstone})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocID < entries[j].DocID })
	return entries
}

func dedupSorted(hashes []uint32) []uint32 {
	cp := append([]uint32(nil), hashes...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	out := cp[:0]
	for i, h := range cp {
		if i == 0 || h != cp[i-1] {
			out = append(out, h)
		}
	}
	return out
}
