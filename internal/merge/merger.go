package merge

import (
	"container/heap"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/iamNilotpal/fpindex/internal/block"
	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/segment"
	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// checksumOf combines a merged segment's block index and doc table bytes
// into one checksum, the same way builder.Serialize does for freshly sealed
// segments.
func checksumOf(fiiBytes, fdxBytes []byte) uint64 {
	return xxh3.Hash(fiiBytes) ^ xxh3.Hash(fdxBytes)
}

// PostingIterator streams one input segment's postings in ascending
// (hash, docId) order. *segment.PostingIterator satisfies this.
type PostingIterator interface {
	Next() (block.Posting, bool, error)
}

// Source is one input to a merge: a segment's posting stream plus its doc
// table, which the merge needs to resolve which segment "owns" each docId.
type Source struct {
	SegmentID uint32
	Postings  PostingIterator
	DocTable  *segment.DocTable

	// MinOpID/MaxOpID are the segment's recorded opId range, not read from
	// the segment's own files (the segment format carries no opId), but
	// from the IndexInfo descriptor the caller already holds for it.
	MinOpID uint64
	MaxOpID uint64
}

// Result summarizes a merged segment, mirroring builder.SerializeResult so
// callers can build an IndexInfo entry for it the same way.
type Result struct {
	SegmentID  uint32
	BlockCount int
	LastHash   uint32
	Checksum   uint64
	MinOpID    uint64
	MaxOpID    uint64
}

// heapItem is one source's current head posting, ordered for a min-heap.
type heapItem struct {
	srcIdx int
	cur    block.Posting
}

type postingHeap []*heapItem

func (h postingHeap) Len() int { return len(h) }
func (h postingHeap) Less(i, j int) bool {
	a, b := h[i].cur, h[j].cur
	if a.Hash != b.Hash {
		return a.Hash < b.Hash
	}
	return a.DocID < b.DocID
}
func (h postingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *postingHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *postingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge performs an N-way merge of sources into a new sealed segment
// targetID, written to dir (§4.G). A docId's postings are taken only from
// whichever source holds its highest-version doc table entry; postings from
// every other source for that docId, and every posting for a docId whose
// winning version is a tombstone, are dropped. Identical (hash, docId) pairs
// appearing in more than one source are emitted once.
func Merge(dir directory.Directory, targetID uint32, blockSize int, sources []Source) (Result, error) {
	if len(sources) == 0 {
		return Result{}, errors.NewIndexError(nil, errors.ErrorCodeInvalidInput, "merge requires at least one source").
			WithOperation("merge")
	}

	winners := computeWinners(sources)

	h := make(postingHeap, 0, len(sources))
	for i, src := range sources {
		p, ok, err := src.Postings.Next()
		if err != nil {
			return Result{}, err
		}
		if ok {
			h = append(h, &heapItem{srcIdx: i, cur: p})
		}
	}
	heap.Init(&h)

	fiiName, fidName, fdxName := segment.FileNames(targetID)

	fid, err := dir.Create(fidName)
	if err != nil {
		return Result{}, err
	}
	defer fid.Close()

	header := segment.EncodeHeader(blockSize)
	if _, err := fid.WriteAt(header, 0); err != nil {
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing merged segment header").WithFileName(fidName)
	}

	var ranges []segment.BlockRange
	var lastHash uint32
	off := int64(len(header))

	w := block.NewWriter(blockSize, targetID)
	var blockFirstHash uint32
	haveFirst := false

	flush := func() error {
		if w.Len() == 0 {
			return nil
		}
		buf := w.Seal()
		if _, err := fid.WriteAt(buf, off); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "writing merged posting block").WithFileName(fidName)
		}
		off += int64(len(buf))
		ranges = append(ranges, segment.BlockRange{FirstHash: blockFirstHash, LastHash: lastHash})
		return nil
	}

	var lastEmitted block.Posting
	haveEmitted := false

	for h.Len() > 0 {
		top := h[0]
		p := top.cur
		srcIdx := top.srcIdx

		next, ok, err := sources[srcIdx].Postings.Next()
		if err != nil {
			return Result{}, err
		}
		if ok {
			top.cur = next
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}

		win, ok := winners[p.DocID]
		if !ok || win.sourceIdx != srcIdx || win.entry.Tombstone {
			continue
		}

		// Equal (hash, docId) pairs can only repeat here if the winning
		// source itself emitted the same pair consecutively (e.g. a prior
		// dup from a non-winning source doesn't reach this point), so
		// comparing against the last pair actually kept is sufficient.
		if haveEmitted && lastEmitted == p {
			continue
		}
		lastEmitted = p
		haveEmitted = true

		if !haveFirst {
			blockFirstHash = p.Hash
			haveFirst = true
		}
		if err := w.Add(p.Hash, p.DocID); err != nil {
			if cErr := flush(); cErr != nil {
				return Result{}, cErr
			}
			w = block.NewWriter(blockSize, targetID)
			blockFirstHash = p.Hash
			if err := w.Add(p.Hash, p.DocID); err != nil {
				return Result{}, err
			}
		}
		lastHash = p.Hash
	}
	if err := flush(); err != nil {
		return Result{}, err
	}

	if err := fid.Truncate(off); err != nil {
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "truncating merged segment file").WithFileName(fidName)
	}
	if err := fid.Sync(); err != nil {
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "syncing merged segment file").WithFileName(fidName)
	}

	fii, err := dir.Create(fiiName)
	if err != nil {
		return Result{}, err
	}
	fiiBytes := segment.EncodeBlockIndex(ranges)
	if _, err := fii.WriteAt(fiiBytes, 0); err != nil {
		fii.Close()
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing merged block index").WithFileName(fiiName)
	}
	if err := fii.Sync(); err != nil {
		fii.Close()
		return Result{}, err
	}
	fii.Close()

	fdx, err := dir.Create(fdxName)
	if err != nil {
		return Result{}, err
	}
	docEntries := mergedDocTable(winners)
	fdxBytes := segment.EncodeDocTable(docEntries)
	if _, err := fdx.WriteAt(fdxBytes, 0); err != nil {
		fdx.Close()
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "writing merged doc table").WithFileName(fdxName)
	}
	if err := fdx.Sync(); err != nil {
		fdx.Close()
		return Result{}, err
	}
	fdx.Close()

	checksum := checksumOf(fiiBytes, fdxBytes)

	var minOpID, maxOpID uint64
	for _, src := range sources {
		if src.MinOpID != 0 && (minOpID == 0 || src.MinOpID < minOpID) {
			minOpID = src.MinOpID
		}
		if src.MaxOpID > maxOpID {
			maxOpID = src.MaxOpID
		}
	}

	return Result{
		SegmentID:  targetID,
		BlockCount: len(ranges),
		LastHash:   lastHash,
		Checksum:   checksum,
		MinOpID:    minOpID,
		MaxOpID:    maxOpID,
	}, nil
}

type winner struct {
	sourceIdx int
	entry     segment.DocEntry
}

// computeWinners returns, for every docId seen across sources, the index of
// the source holding its highest-version doc table entry.
func computeWinners(sources []Source) map[uint32]winner {
	winners := make(map[uint32]winner)
	for idx, src := range sources {
		for _, e := range src.DocTable.Entries() {
			w, ok := winners[e.DocID]
			if !ok || e.Version > w.entry.Version {
				winners[e.DocID] = winner{sourceIdx: idx, entry: e}
			}
		}
	}
	return winners
}

// mergedDocTable flattens the winner map into a DocID-sorted entry slice,
// keeping tombstoned winners so their version survives further merges.
func mergedDocTable(winners map[uint32]winner) []segment.DocEntry {
	entries := make([]segment.DocEntry, 0, len(winners))
	for _, w := range winners {
		entries = append(entries, w.entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocID < entries[j].DocID })
	return entries
}
