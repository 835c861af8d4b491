package block_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/block"
	"github.com/iamNilotpal/fpindex/pkg/errors"
)

func TestRoundTripSingleEntry(t *testing.T) {
	w := block.NewWriter(4096, 1)
	require.NoError(t, w.Add(42, 7))
	buf := w.Seal()

	postings, err := block.Decode(buf, 42, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []block.Posting{{Hash: 42, DocID: 7}}, postings)
}

func TestRoundTripRunOfEqualHashes(t *testing.T) {
	w := block.NewWriter(4096, 1)
	input := []block.Posting{
		{Hash: 10, DocID: 1},
		{Hash: 10, DocID: 5},
		{Hash: 10, DocID: 9},
		{Hash: 20, DocID: 2},
		{Hash: 30, DocID: 1},
	}
	for _, p := range input {
		require.NoError(t, w.Add(p.Hash, p.DocID))
	}
	buf := w.Seal()

	postings, err := block.Decode(buf, input[0].Hash, 1, 0)
	require.NoError(t, err)
	require.Equal(t, input, postings)
}

func TestBlockFullSealsBeforeOverflow(t *testing.T) {
	// Tiny block: header(2) + one entry + sentinel(2) is about the limit.
	w := block.NewWriter(8, 1)
	require.NoError(t, w.Add(1, 1))

	err := w.Add(1_000_000, 1_000_000)
	require.Error(t, err)

	var ce *errors.CorruptIndexError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, errors.ErrorCodeBlockFull, ce.Code())
}

func TestDecodeRejectsMismatchedFirstHash(t *testing.T) {
	w := block.NewWriter(4096, 1)
	require.NoError(t, w.Add(100, 1))
	buf := w.Seal()

	_, err := block.Decode(buf, 999, 1, 3)
	require.Error(t, err)

	var ce *errors.CorruptIndexError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, errors.ErrorCodeCorruptBlock, ce.Code())
	require.Equal(t, 3, ce.BlockId())
}

func TestFillBlockToCapacityThenSealAndDecode(t *testing.T) {
	const blockSize = 256
	w := block.NewWriter(blockSize, 7)

	var hash, docID uint32 = 1, 1
	var written []block.Posting
	for {
		if err := w.Add(hash, docID); err != nil {
			var ce *errors.CorruptIndexError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, errors.ErrorCodeBlockFull, ce.Code())
			break
		}
		written = append(written, block.Posting{Hash: hash, DocID: docID})
		hash += 3
		docID++
	}
	require.NotEmpty(t, written)
	require.True(t, sort.SliceIsSorted(written, func(i, j int) bool { return written[i].Hash < written[j].Hash }))

	buf := w.Seal()
	require.Len(t, buf, blockSize)

	postings, err := block.Decode(buf, written[0].Hash, 7, 0)
	require.NoError(t, err)
	require.Equal(t, written, postings)
}
