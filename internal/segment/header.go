package segment

import (
	"encoding/binary"

	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/varint"
)

// Magic is the fixed 32-bit value every segment's .fid file must begin
// with. A read whose first four bytes don't match this exactly is
// rejected as corrupt before any further parsing is attempted.
const Magic uint32 = 0x22DE521C

// FormatVersion is the current on-disk layout version this package reads
// and writes.
const FormatVersion uint64 = 1

// CodecDeltaVarint identifies the §4.A delta+varint block codec. It is the
// only codec id this package currently understands.
const CodecDeltaVarint uint64 = 1

// Header is the parsed content of a segment's .fid file header.
type Header struct {
	FormatVersion uint64
	BlockSize     int
	CodecID       uint64
}

// EncodeHeader renders the header for blockSize as the byte sequence written
// at the start of a .fid file: magic, then format_version/block_size/codec_id
// as varints, using FormatVersion and CodecDeltaVarint.
func EncodeHeader(blockSize int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, Magic)
	buf = varint.PutUint64(buf, FormatVersion)
	buf = varint.PutUint64(buf, uint64(blockSize))
	buf = varint.PutUint64(buf, CodecDeltaVarint)
	return buf
}

// DecodeHeader parses a segment header from the start of buf, returning the
// parsed Header and the number of bytes the header occupied (where block
// data begins). segmentID is used only for error context.
func DecodeHeader(buf []byte, segmentID uint32) (Header, int, error) {
	if len(buf) < 4 {
		return Header{}, 0, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "segment header truncated").
			WithSegmentId(segmentID)
	}

	magic := binary.BigEndian.Uint32(buf[:4])
	if magic != Magic {
		return Header{}, 0, errors.NewBadMagicError(segmentID, magic)
	}

	off := 4
	formatVersion, n, err := varint.Uint64(buf[off:])
	if err != nil {
		return Header{}, 0, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "segment header format_version truncated").
			WithSegmentId(segmentID)
	}
	off += n

	blockSize, n, err := varint.Uint64(buf[off:])
	if err != nil {
		return Header{}, 0, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "segment header block_size truncated").
			WithSegmentId(segmentID)
	}
	off += n

	codecID, n, err := varint.Uint64(buf[off:])
	if err != nil {
		return Header{}, 0, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "segment header codec_id truncated").
			WithSegmentId(segmentID)
	}
	off += n

	if codecID != CodecDeltaVarint {
		return Header{}, 0, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "unknown block codec id").
			WithSegmentId(segmentID).
			WithDetail("codecId", codecID)
	}

	return Header{
		FormatVersion: formatVersion,
		BlockSize:     int(blockSize),
		CodecID:       codecID,
	}, off, nil
}

// MaxHeaderLen bounds how many leading bytes callers need to read before
// they can call DecodeHeader: 4 magic bytes plus three MaxLen64 varints.
const MaxHeaderLen = 4 + 3*varint.MaxLen64
