// Package block implements the fixed-size posting block codec: the unit in
// which a segment's (hash, docId) postings are encoded on disk.
//
// Block layout (fixed size B, default 4 KiB):
//
//	+-- header --+---------- payload ----------+-- padding --+
//	| itemCount  | (keyDelta?, valueDelta)*    | 0x00 ...    |
//
// itemCount is a big-endian u16. Entry 0 writes only an absolute docId;
// entry i>0 writes keyDelta = hash_i - hash_{i-1} and then either a
// docId delta (if keyDelta == 0, i.e. a run of equal hashes) or an
// absolute docId. Both are unsigned varints. A (0,0) sentinel pair follows
// the last entry, then zero padding to B bytes.
package block

import (
	"encoding/binary"

	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/varint"
)

// HeaderSize is the size in bytes of the itemCount header.
const HeaderSize = 2

// sentinelSize is the size in bytes of the minimal (0,0) varint pair that
// terminates a block's payload.
const sentinelSize = 2

// MaxItemCount is the largest value itemCount (a u16) can represent.
const MaxItemCount = 0xFFFF

// Posting is one (hash, docId) pair.
type Posting struct {
	Hash  uint32
	DocID uint32
}

// Writer accumulates postings into a single fixed-size block buffer. Zero
// value is not usable; construct with NewWriter.
type Writer struct {
	blockSize int
	buf       []byte // payload bytes written so far, header space reserved.
	count     int
	lastHash  uint32
	lastDocID uint32
	segmentID uint32
}

// NewWriter returns a Writer that will produce a block of exactly
// blockSize bytes for the given segment (used only in error reporting).
func NewWriter(blockSize int, segmentID uint32) *Writer {
	return &Writer{
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
		segmentID: segmentID,
	}
}

// Len returns the number of postings appended so far.
func (w *Writer) Len() int {
	return w.count
}

// Add appends one posting to the block. Postings must be appended in
// strictly increasing (hash, docId) order; the writer does not itself sort.
// Returns a BlockFull error (see pkg/errors) if the entry would not fit;
// the caller should then Seal the current block and start a new Writer.
func (w *Writer) Add(hash, docID uint32) error {
	if w.count >= MaxItemCount {
		return errors.NewBlockFullError()
	}

	var entry []byte
	if w.count == 0 {
		entry = varint.PutUint32(entry, docID)
	} else {
		keyDelta := hash - w.lastHash
		entry = varint.PutUint32(entry, keyDelta)
		if keyDelta == 0 {
			entry = varint.PutUint32(entry, docID-w.lastDocID)
		} else {
			entry = varint.PutUint32(entry, docID)
		}
	}

	// Reserve room for the trailing sentinel; the block must always be
	// sealable without another allocation.
	if HeaderSize+len(w.buf)+len(entry)+sentinelSize > w.blockSize {
		return errors.NewBlockFullError()
	}

	w.buf = append(w.buf, entry...)
	w.count++
	w.lastHash = hash
	w.lastDocID = docID
	return nil
}

// Seal finalizes the block into a blockSize-length buffer: header, payload,
// sentinel, zero padding.
func (w *Writer) Seal() []byte {
	out := make([]byte, w.blockSize)
	binary.BigEndian.PutUint16(out[:HeaderSize], uint16(w.count))
	copy(out[HeaderSize:], w.buf)
	// Sentinel (0,0) and trailing padding are already zero in out.
	return out
}

// Decode parses a full block buffer (exactly blockSize bytes) into its
// postings, verifying that the first decoded hash matches firstHash (as
// recorded in the block index). segmentID and blockID are used only for
// error context.
func Decode(buf []byte, firstHash uint32, segmentID uint32, blockID int) ([]Posting, error) {
	if len(buf) < HeaderSize {
		return nil, errors.NewCorruptBlockError(segmentID, blockID, "buffer shorter than header")
	}

	itemCount := int(binary.BigEndian.Uint16(buf[:HeaderSize]))
	payload := buf[HeaderSize:]

	out := make([]Posting, 0, itemCount)
	var hash, docID uint32
	off := 0

	for i := 0; i < itemCount; i++ {
		if i == 0 {
			v, n, err := varint.Uint32(payload[off:])
			if err != nil {
				return nil, errors.NewCorruptBlockError(segmentID, blockID, "truncated varint in first entry")
			}
			hash = firstHash
			docID = v
			off += n
		} else {
			keyDelta, n, err := varint.Uint32(payload[off:])
			if err != nil {
				return nil, errors.NewCorruptBlockError(segmentID, blockID, "truncated varint key delta")
			}
			off += n

			valueDelta, n, err := varint.Uint32(payload[off:])
			if err != nil {
				return nil, errors.NewCorruptBlockError(segmentID, blockID, "truncated varint value delta")
			}
			off += n

			if keyDelta == 0 {
				// Run of equal hashes: valueDelta is a docId delta.
				docID = docID + valueDelta
			} else {
				hash = hash + keyDelta
				docID = valueDelta
			}
		}

		if i == 0 && hash != firstHash {
			return nil, errors.NewCorruptBlockError(segmentID, blockID, "first hash does not match block index")
		}

		out = append(out, Posting{Hash: hash, DocID: docID})
	}

	return out, nil
}
