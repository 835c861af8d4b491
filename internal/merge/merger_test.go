package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/block"
	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/merge"
	"github.com/iamNilotpal/fpindex/internal/segment"
)

// sliceIterator feeds a fixed posting slice to the merger, standing in for
// a segment.PostingIterator in tests that don't need real segment files.
type sliceIterator struct {
	postings []block.Posting
	i        int
}

func (it *sliceIterator) Next() (block.Posting, bool, error) {
	if it.i >= len(it.postings) {
		return block.Posting{}, false, nil
	}
	p := it.postings[it.i]
	it.i++
	return p, true, nil
}

func TestMergeDropsOverwrittenAndTombstonedPostings(t *testing.T) {
	sourceA := merge.Source{
		SegmentID: 10,
		Postings: &sliceIterator{postings: []block.Posting{
			{Hash: 5, DocID: 1},
			{Hash: 5, DocID: 2},
			{Hash: 10, DocID: 1},
			{Hash: 20, DocID: 5},
		}},
		DocTable: segment.NewDocTable([]segment.DocEntry{
			{DocID: 1, Version: 1},
			{DocID: 2, Version: 1},
			{DocID: 5, Version: 1},
		}),
		MinOpID: 1, MaxOpID: 4,
	}
	sourceB := merge.Source{
		SegmentID: 20,
		Postings: &sliceIterator{postings: []block.Posting{
			{Hash: 7, DocID: 2},
			{Hash: 10, DocID: 3},
		}},
		DocTable: segment.NewDocTable([]segment.DocEntry{
			{DocID: 2, Version: 2},
			{DocID: 3, Version: 1},
			{DocID: 5, Version: 2, Tombstone: true},
		}),
		MinOpID: 5, MaxOpID: 6,
	}

	dir := directory.NewMemory()
	result, err := merge.Merge(dir, 99, 4096, []merge.Source{sourceA, sourceB})
	require.NoError(t, err)
	require.Equal(t, uint32(99), result.SegmentID)
	require.Equal(t, uint64(1), result.MinOpID)
	require.Equal(t, uint64(6), result.MaxOpID)

	r, err := segment.Open(dir, 99)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.Search([]uint32{5, 7, 10})
	require.NoError(t, err)

	got := map[uint32]int{}
	for _, h := range hits {
		got[h.DocID] = h.Matches
	}
	// doc2's only surviving posting is the one from the winning source B
	// (hash 7); its hash-5 posting from the losing source A is dropped.
	require.Equal(t, map[uint32]int{1: 2, 2: 1, 3: 1}, got)

	v, ok := r.DocTable().Get(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), v.Version)

	v, ok = r.DocTable().Get(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), v.Version)
	require.False(t, v.Tombstone)

	v, ok = r.DocTable().Get(5)
	require.True(t, ok)
	require.True(t, v.Tombstone)

	// doc5's posting (hash 20) was dropped entirely: its winning version is
	// a tombstone, so searching for it finds nothing.
	hits, err = r.Search([]uint32{20})
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestMergeDedupsIdenticalPairsAcrossSources(t *testing.T) {
	sourceA := merge.Source{
		SegmentID: 1,
		Postings:  &sliceIterator{postings: []block.Posting{{Hash: 5, DocID: 1}}},
		DocTable:  segment.NewDocTable([]segment.DocEntry{{DocID: 1, Version: 1}}),
	}
	sourceB := merge.Source{
		SegmentID: 2,
		Postings:  &sliceIterator{postings: []block.Posting{{Hash: 5, DocID: 1}}},
		DocTable:  segment.NewDocTable([]segment.DocEntry{{DocID: 1, Version: 1}}),
	}

	dir := directory.NewMemory()
	_, err := merge.Merge(dir, 3, 4096, []merge.Source{sourceA, sourceB})
	require.NoError(t, err)

	r, err := segment.Open(dir, 3)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.Search([]uint32{5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 1, hits[0].Matches)
}
