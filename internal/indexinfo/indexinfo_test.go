package indexinfo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/indexinfo"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	info := indexinfo.IndexInfo{
		LastSegmentID: 7,
		Segments: []indexinfo.SegmentDescriptor{
			{ID: 1, BlockCount: 3, LastHash: 100, Checksum: 0xdeadbeef, MinOpID: 1, MaxOpID: 10},
			{ID: 5, BlockCount: 8, LastHash: 900, Checksum: 0xcafef00d, MinOpID: 11, MaxOpID: 20},
		},
		Attributes: map[string]string{"name": "music-catalog"},
	}

	buf := indexinfo.Encode(info)
	got, err := indexinfo.Decode(buf, 3)
	require.NoError(t, err)

	require.Equal(t, uint64(3), got.Revision)
	require.Equal(t, info.LastSegmentID, got.LastSegmentID)
	require.Equal(t, info.Segments, got.Segments)
	require.Equal(t, info.Attributes, got.Attributes)
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	buf := indexinfo.Encode(indexinfo.IndexInfo{LastSegmentID: 1})
	buf[0] ^= 0xFF

	_, err := indexinfo.Decode(buf, 1)
	require.Error(t, err)
}

func TestEncodeDecodeEmptyIndex(t *testing.T) {
	buf := indexinfo.Encode(indexinfo.IndexInfo{})
	got, err := indexinfo.Decode(buf, 0)
	require.NoError(t, err)
	require.Empty(t, got.Segments)
	require.Empty(t, got.Attributes)
}
