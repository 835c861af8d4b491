// Package segment implements the sealed, immutable on-disk segment: the
// reader that opens a segment's three files (.fid block data, .fii block
// index, .fdx doc table) and the per-segment doc table and block index
// codecs. A Reader materializes only the block index and doc table in
// memory; block payloads are read on demand through the Directory facade.
package segment

import (
	"sort"

	"github.com/iamNilotpal/fpindex/internal/block"
	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/seginfo"
)

// Hit is one aggregated search result before cross-segment dedup: a docId
// and how many query hashes it matched within this segment.
type Hit struct {
	DocID   uint32
	Matches int
}

// Reader is an open, read-only handle onto one sealed segment's files.
type Reader struct {
	ID uint32

	header     Header
	ranges     []BlockRange
	docTable   *DocTable
	headerSize int

	fid directory.File
}

// Open opens segment id's three files from dir and loads its block index
// and doc table into memory.
func Open(dir directory.Directory, id uint32) (*Reader, error) {
	fiiName, fidName, fdxName := FileNames(id)

	fid, err := dir.Open(fidName)
	if err != nil {
		return nil, err
	}

	size, err := fid.Size()
	if err != nil {
		fid.Close()
		return nil, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "stat segment data file").
			WithSegmentId(id)
	}

	headBuf := make([]byte, min64(int64(MaxHeaderLen), size))
	if _, err := fid.ReadAt(headBuf, 0); err != nil {
		fid.Close()
		return nil, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "read segment header").
			WithSegmentId(id)
	}

	header, headerSize, err := DecodeHeader(headBuf, id)
	if err != nil {
		fid.Close()
		return nil, err
	}

	fii, err := dir.Open(fiiName)
	if err != nil {
		fid.Close()
		return nil, err
	}
	fiiBytes, err := readAll(fii)
	fii.Close()
	if err != nil {
		fid.Close()
		return nil, err
	}
	ranges, err := DecodeBlockIndex(fiiBytes, id)
	if err != nil {
		fid.Close()
		return nil, err
	}

	fdx, err := dir.Open(fdxName)
	if err != nil {
		fid.Close()
		return nil, err
	}
	fdxBytes, err := readAll(fdx)
	fdx.Close()
	if err != nil {
		fid.Close()
		return nil, err
	}
	docTable, err := DecodeDocTable(fdxBytes, id)
	if err != nil {
		fid.Close()
		return nil, err
	}

	return &Reader{
		ID:         id,
		header:     header,
		ranges:     ranges,
		docTable:   docTable,
		headerSize: headerSize,
		fid:        fid,
	}, nil
}

// Close releases the open .fid handle. The block index and doc table stay
// in memory for the lifetime of the Reader regardless.
func (r *Reader) Close() error {
	return r.fid.Close()
}

// BlockCount returns the number of posting blocks in this segment.
func (r *Reader) BlockCount() int {
	return len(r.ranges)
}

// DocTable returns the segment's doc table.
func (r *Reader) DocTable() *DocTable {
	return r.docTable
}

// BlockSize returns the fixed block size this segment was written with.
func (r *Reader) BlockSize() int {
	return r.header.BlockSize
}

// blockRange returns the inclusive range of block indices that might hold
// hash, per §4.B.
func (r *Reader) blockRange(hash uint32) (first, last int, ok bool) {
	return BlockRangeFor(r.ranges, hash)
}

// readBlock decodes block k from disk.
func (r *Reader) readBlock(k int) ([]block.Posting, error) {
	if k < 0 || k >= len(r.ranges) {
		return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "block index out of range").
			WithSegmentId(r.ID).
			WithBlockId(k)
	}

	buf := make([]byte, r.header.BlockSize)
	off := int64(r.headerSize) + int64(k)*int64(r.header.BlockSize)
	if _, err := r.fid.ReadAt(buf, off); err != nil {
		return nil, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "read block payload").
			WithSegmentId(r.ID).
			WithBlockId(k).
			WithOffset(off)
	}

	return block.Decode(buf, r.ranges[k].FirstHash, r.ID, k)
}

// Search scans this segment for every hash in sortedQuery (which must
// already be sorted ascending and deduplicated) and returns per-docId
// overlap counts, sorted by DocID ascending.
func (r *Reader) Search(sortedQuery []uint32) ([]Hit, error) {
	counts := make(map[uint32]int)

	lastBlock := -1
	var postings []block.Posting

	for _, h := range sortedQuery {
		first, last, ok := r.blockRange(h)
		if !ok {
			continue
		}

		for k := first; k <= last; k++ {
			if k != lastBlock {
				p, err := r.readBlock(k)
				if err != nil {
					return nil, err
				}
				postings = p
				lastBlock = k
			}

			i := sort.Search(len(postings), func(i int) bool { return postings[i].Hash >= h })
			for ; i < len(postings) && postings[i].Hash == h; i++ {
				counts[postings[i].DocID]++
			}
		}
	}

	hits := make([]Hit, 0, len(counts))
	for docID, n := range counts {
		hits = append(hits, Hit{DocID: docID, Matches: n})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits, nil
}

// PostingIterator streams a segment's full posting list in on-disk (hash,
// docId) order, one block at a time. Used by the merger, which needs to
// drain entire segments rather than do point lookups.
type PostingIterator struct {
	r        *Reader
	blockIdx int
	postings []block.Posting
	pos      int
}

// Postings returns an iterator over r's complete posting list.
func (r *Reader) Postings() *PostingIterator {
	return &PostingIterator{r: r}
}

// Next returns the next posting, or ok=false once the segment is exhausted.
func (it *PostingIterator) Next() (block.Posting, bool, error) {
	for it.pos >= len(it.postings) {
		if it.blockIdx >= len(it.r.ranges) {
			return block.Posting{}, false, nil
		}
		p, err := it.r.readBlock(it.blockIdx)
		if err != nil {
			return block.Posting{}, false, err
		}
		it.postings = p
		it.pos = 0
		it.blockIdx++
	}
	p := it.postings[it.pos]
	it.pos++
	return p, true, nil
}

// FileNames returns the three file names (.fii, .fid, .fdx) for segment id.
func FileNames(id uint32) (fii, fid, fdx string) {
	return seginfo.SegmentFileNames(uint64(id))
}

func readAll(f directory.File) ([]byte, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
