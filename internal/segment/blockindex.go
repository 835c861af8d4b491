package segment

import (
	"encoding/binary"

	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// blockIndexRecordSize is the on-disk size of one block index entry: a
// firstHash/lastHash pair, both big-endian u32. The spec prescribes a flat
// array of per-block first/last hash pairs over a multi-level skip list.
const blockIndexRecordSize = 8

// BlockRange is one block index entry: the first and last hash present in
// that block's postings.
type BlockRange struct {
	FirstHash uint32
	LastHash  uint32
}

// EncodeBlockIndex serializes ranges (one per block, in block order) as a
// .fii file.
func EncodeBlockIndex(ranges []BlockRange) []byte {
	buf := make([]byte, len(ranges)*blockIndexRecordSize)
	for i, r := range ranges {
		off := i * blockIndexRecordSize
		binary.BigEndian.PutUint32(buf[off:off+4], r.FirstHash)
		binary.BigEndian.PutUint32(buf[off+4:off+8], r.LastHash)
	}
	return buf
}

// DecodeBlockIndex parses a full .fii file into its block ranges, verifying
// that firstHash is monotone nondecreasing, firstHash_k <= lastHash_k, and
// lastHash_k <= firstHash_{k+1} (§4.B invariants). segmentID is used only
// for error context.
func DecodeBlockIndex(buf []byte, segmentID uint32) ([]BlockRange, error) {
	if len(buf)%blockIndexRecordSize != 0 {
		return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "block index length not a multiple of record size").
			WithSegmentId(segmentID)
	}

	count := len(buf) / blockIndexRecordSize
	ranges := make([]BlockRange, count)
	for i := 0; i < count; i++ {
		off := i * blockIndexRecordSize
		r := BlockRange{
			FirstHash: binary.BigEndian.Uint32(buf[off : off+4]),
			LastHash:  binary.BigEndian.Uint32(buf[off+4 : off+8]),
		}
		if r.FirstHash > r.LastHash {
			return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "block index entry has firstHash > lastHash").
				WithSegmentId(segmentID).
				WithBlockId(i)
		}
		if i > 0 && r.FirstHash < ranges[i-1].FirstHash {
			return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "block index firstHash is not monotone nondecreasing").
				WithSegmentId(segmentID).
				WithBlockId(i)
		}
		if i > 0 && ranges[i-1].LastHash > r.FirstHash {
			return nil, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "block index lastHash exceeds next block's firstHash").
				WithSegmentId(segmentID).
				WithBlockId(i)
		}
		ranges[i] = r
	}

	return ranges, nil
}

// BlockRangeFor returns the inclusive [firstBlock, lastBlock] range of
// block indices that might contain hash, by binary search over lastHash_k
// (ties broken so that every block that could contain hash is included).
// Returns ok=false if no block can contain hash.
func BlockRangeFor(ranges []BlockRange, hash uint32) (first, last int, ok bool) {
	n := len(ranges)
	if n == 0 {
		return 0, 0, false
	}

	// First candidate block: the first one whose lastHash >= hash.
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if ranges[mid].LastHash >= hash {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == n || ranges[lo].FirstHash > hash {
		return 0, 0, false
	}
	first = lo

	// Last candidate block: the last one whose firstHash <= hash.
	lo, hi = first, n
	for lo < hi {
		mid := (lo + hi) / 2
		if ranges[mid].FirstHash <= hash {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	last = lo - 1

	return first, last, true
}
