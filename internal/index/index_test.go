package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

func testOptions() options.Options {
	opts := options.NewDefaultOptions()
	opts.MaxStageSize = 3
	opts.SearchTimeout = time.Second
	opts.WriterPollInterval = 10 * time.Millisecond
	return opts
}

func openTestIndex(t *testing.T, dir directory.Directory) *index.Index {
	t.Helper()
	idx, err := index.Open(context.Background(), dir, testOptions(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpdateAndSearchAgainstBuilder(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)

	err := idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10, 20, 30}),
		oplog.InsertOrUpdate(2, []uint32{20, 30}),
	})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), []uint32{20, 30}, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint32(1), results[0].DocID)
	require.Equal(t, 2, results[0].Score)
	require.Equal(t, uint32(2), results[1].DocID)
	require.Equal(t, 2, results[1].Score)
}

func TestDeleteHidesDocFromSearch(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)

	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10}),
	}))
	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.DeleteOp(1),
	}))

	results, err := idx.Search(context.Background(), []uint32{10}, index.SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestUpdateReplacesPriorHashesForSameDoc(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)

	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10, 20}),
	}))
	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{99}),
	}))

	results, err := idx.Search(context.Background(), []uint32{10, 20}, index.SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = idx.Search(context.Background(), []uint32{99}, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].DocID)
}

func TestBuilderSealsAndSearchesSealedSegment(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)

	// MaxStageSize is 3; this batch of 4 postings forces a seal on the
	// following Update call.
	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{1, 2, 3, 4}),
	}))
	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(2, []uint32{5}),
	}))

	deadline := time.After(2 * time.Second)
	for {
		results, err := idx.Search(context.Background(), []uint32{1, 2, 3, 4}, index.SearchOptions{})
		require.NoError(t, err)
		if len(results) == 1 {
			require.Equal(t, uint32(1), results[0].DocID)
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for builder segment to seal")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestSealedSegmentStaysSearchableBeforeSerialization pins down the gap a
// naive implementation would otherwise have: a builder that was just
// frozen and handed to the background writer must remain visible to
// Search immediately, not only once its segment file has been written.
func TestSealedSegmentStaysSearchableBeforeSerialization(t *testing.T) {
	dir := directory.NewMemory()
	idx, err := index.Open(context.Background(), dir, testOptions(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{1, 2, 3}),
	}))
	// This seals the prior builder before applying doc 2's op.
	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(2, []uint32{9}),
	}))

	results, err := idx.Search(context.Background(), []uint32{1, 2, 3}, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].DocID)
	require.Equal(t, 3, results[0].Score)
}

func TestRecoveryReplaysOplogIntoFreshBuilder(t *testing.T) {
	dir := directory.NewMemory()
	opts := testOptions()
	opts.MaxStageSize = 1_000_000 // keep this test's writes in the builder, unsealed

	idx1, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, idx1.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{7, 8}),
	}))
	require.NoError(t, idx1.Close())

	idx2, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer idx2.Close()

	results, err := idx2.Search(context.Background(), []uint32{7, 8}, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].DocID)
}

func TestSearchRespectsMaxResults(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)

	require.NoError(t, idx.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{1}),
		oplog.InsertOrUpdate(2, []uint32{1}),
		oplog.InsertOrUpdate(3, []uint32{1}),
	}))

	results, err := idx.Search(context.Background(), []uint32{1}, index.SearchOptions{MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
}
