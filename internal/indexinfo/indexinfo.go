// Package indexinfo implements the encode/decode of an index's IndexInfo
// revision file (`info_N`, §6): the manifest of sealed segments, attributes,
// and the last-assigned segment id, checksummed as a whole.
package indexinfo

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/varint"
)

// SegmentDescriptor is one segment's entry in an IndexInfo manifest.
type SegmentDescriptor struct {
	ID         uint32
	BlockCount int
	LastHash   uint32
	Checksum   uint64
	MinOpID    uint64
	MaxOpID    uint64
}

// IndexInfo is the full manifest of one index revision: every sealed
// segment it's built from, index-level attributes, and the highest segment
// id assigned so far (so a fresh builder never reuses one).
type IndexInfo struct {
	Revision      uint64
	LastSegmentID uint32
	Segments      []SegmentDescriptor
	Attributes    map[string]string
}

// Encode serializes info per §6's info_N layout: varint fields followed by
// a trailing crc32 over everything preceding it. Revision is not itself
// encoded into the payload; it lives in the file name.
func Encode(info IndexInfo) []byte {
	buf := make([]byte, 0, 64+len(info.Segments)*40)

	buf = varint.PutUint32(buf, info.LastSegmentID)
	buf = varint.PutUint64(buf, uint64(len(info.Segments)))
	for _, s := range info.Segments {
		buf = varint.PutUint32(buf, s.ID)
		buf = varint.PutUint64(buf, uint64(s.BlockCount))
		buf = varint.PutUint32(buf, s.LastHash)
		buf = varint.PutUint64(buf, s.Checksum)
		buf = varint.PutUint64(buf, s.MinOpID)
		buf = varint.PutUint64(buf, s.MaxOpID)
	}

	buf = varint.PutUint64(buf, uint64(len(info.Attributes)))
	for name, value := range info.Attributes {
		buf = putString(buf, name)
		buf = putString(buf, value)
	}

	sum := crc32.ChecksumIEEE(buf)
	out := make([]byte, len(buf)+4)
	copy(out, buf)
	binary.BigEndian.PutUint32(out[len(buf):], sum)
	return out
}

// Decode parses a raw info_N file's contents, verifying the trailing crc32
// before trusting anything else in it. revision is the file's own revision
// number, used only to populate the returned IndexInfo and for error
// context; it is not itself checksummed (it's derived from the file name).
func Decode(buf []byte, revision uint64) (IndexInfo, error) {
	if len(buf) < 4 {
		return IndexInfo{}, errors.NewCorruptIndexError(nil, errors.ErrorCodeIndexCorrupted, "info file shorter than checksum").
			WithDetail("revision", revision)
	}

	payload, wantSum := buf[:len(buf)-4], binary.BigEndian.Uint32(buf[len(buf)-4:])
	if got := crc32.ChecksumIEEE(payload); got != wantSum {
		return IndexInfo{}, errors.NewChecksumMismatchError(revision)
	}

	off := 0
	readVarint32 := func(field string) (uint32, error) {
		v, n, err := varint.Uint32(payload[off:])
		if err != nil {
			return 0, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "truncated "+field).
				WithDetail("revision", revision)
		}
		off += n
		return v, nil
	}
	readVarint64 := func(field string) (uint64, error) {
		v, n, err := varint.Uint64(payload[off:])
		if err != nil {
			return 0, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "truncated "+field).
				WithDetail("revision", revision)
		}
		off += n
		return v, nil
	}

	lastSegmentID, err := readVarint32("lastSegmentId")
	if err != nil {
		return IndexInfo{}, err
	}
	segmentCount, err := readVarint64("segmentCount")
	if err != nil {
		return IndexInfo{}, err
	}

	segments := make([]SegmentDescriptor, 0, segmentCount)
	for i := uint64(0); i < segmentCount; i++ {
		var s SegmentDescriptor
		if s.ID, err = readVarint32("segment id"); err != nil {
			return IndexInfo{}, err
		}
		blockCount, err := readVarint64("segment blockCount")
		if err != nil {
			return IndexInfo{}, err
		}
		s.BlockCount = int(blockCount)
		if s.LastHash, err = readVarint32("segment lastHash"); err != nil {
			return IndexInfo{}, err
		}
		if s.Checksum, err = readVarint64("segment checksum"); err != nil {
			return IndexInfo{}, err
		}
		if s.MinOpID, err = readVarint64("segment minOpId"); err != nil {
			return IndexInfo{}, err
		}
		if s.MaxOpID, err = readVarint64("segment maxOpId"); err != nil {
			return IndexInfo{}, err
		}
		segments = append(segments, s)
	}

	attrCount, err := readVarint64("attributeCount")
	if err != nil {
		return IndexInfo{}, err
	}
	attrs := make(map[string]string, attrCount)
	for i := uint64(0); i < attrCount; i++ {
		name, n, err := getString(payload[off:])
		if err != nil {
			return IndexInfo{}, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "truncated attribute name").
				WithDetail("revision", revision)
		}
		off += n
		value, n, err := getString(payload[off:])
		if err != nil {
			return IndexInfo{}, errors.NewCorruptIndexError(err, errors.ErrorCodeIndexCorrupted, "truncated attribute value").
				WithDetail("revision", revision)
		}
		off += n
		attrs[name] = value
	}

	return IndexInfo{
		Revision:      revision,
		LastSegmentID: lastSegmentID,
		Segments:      segments,
		Attributes:    attrs,
	}, nil
}

func putString(buf []byte, s string) []byte {
	buf = varint.PutUint64(buf, uint64(len(s)))
	return append(buf, s...)
}

func getString(buf []byte) (string, int, error) {
	n, sz, err := varint.Uint64(buf)
	if err != nil {
		return "", 0, err
	}
	end := sz + int(n)
	if end > len(buf) {
		return "", 0, varint.ErrOverflow
	}
	return string(buf[sz:end]), end, nil
}
