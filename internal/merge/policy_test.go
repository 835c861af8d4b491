package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/merge"
)

func TestFindMergesReturnsNilBelowTierBudget(t *testing.T) {
	sizes := []merge.SegmentSize{
		{SegmentID: 1, BlockCount: 100},
		{SegmentID: 2, BlockCount: 90},
		{SegmentID: 3, BlockCount: 80},
	}
	got := merge.FindMerges(sizes, merge.DefaultMaxMergeAtOnce, merge.DefaultMaxSegmentsPerTier)
	require.Nil(t, got)
}

func TestFindMergesPicksLargestSegmentsWhenOverBudget(t *testing.T) {
	var sizes []merge.SegmentSize
	for i := 1; i <= 10; i++ {
		sizes = append(sizes, merge.SegmentSize{SegmentID: uint32(i), BlockCount: (11 - i) * 10})
	}

	got := merge.FindMerges(sizes, merge.DefaultMaxMergeAtOnce, merge.DefaultMaxSegmentsPerTier)
	require.Equal(t, []uint32{1, 2, 3, 4}, got)
}

func TestFindMergesNeedsAtLeastMaxMergeAtOnceSegments(t *testing.T) {
	sizes := []merge.SegmentSize{{SegmentID: 1, BlockCount: 5}, {SegmentID: 2, BlockCount: 5}}
	got := merge.FindMerges(sizes, merge.DefaultMaxMergeAtOnce, merge.DefaultMaxSegmentsPerTier)
	require.Nil(t, got)
}
