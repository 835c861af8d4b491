package index_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

// S1 — basic insert/search.
func TestScenarioS1BasicInsertSearch(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)
	ctx := context.Background()

	require.NoError(t, idx.Update(ctx, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{100, 200, 300}),
	}))

	results, err := idx.Search(ctx, []uint32{200, 300, 999}, index.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []index.Result{{DocID: 1, Score: 2}}, results)
}

// S2 — update replaces prior terms: only the later version contributes.
func TestScenarioS2UpdateReplacesPriorTerms(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)
	ctx := context.Background()

	require.NoError(t, idx.Update(ctx, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{100, 200, 300}),
	}))
	require.NoError(t, idx.Update(ctx, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{400, 500, 600}),
	}))

	results, err := idx.Search(ctx, []uint32{100, 500, 999}, index.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []index.Result{{DocID: 1, Score: 1}}, results)
}

// S3 — delete masks a document whose postings were already flushed to a
// sealed segment.
func TestScenarioS3DeleteMasksFlushedDocument(t *testing.T) {
	dir := directory.NewMemory()
	opts := testOptions()
	opts.MaxStageSize = 3

	idx, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	ctx := context.Background()

	// First insert flushes segment A (3 postings meets MaxStageSize on the
	// following Update's seal check), second is a small op that triggers it.
	require.NoError(t, idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(1, []uint32{10, 20, 30})}))
	require.NoError(t, idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(2, []uint32{1})}))
	require.NoError(t, idx.Update(ctx, []oplog.Op{oplog.DeleteOp(1)}))

	deadline := time.After(2 * time.Second)
	for {
		results, err := idx.Search(ctx, []uint32{10, 20, 30}, index.SearchOptions{})
		require.NoError(t, err)
		if len(results) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("deleted doc still visible after waiting for background seal")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// S4 — merge correctness: during a run that seals a segment per insert and
// triggers merges, search returns every live document with its full score.
// The final segment count is not asserted here.
func TestScenarioS4MergeCorrectness(t *testing.T) {
	dir := directory.NewMemory()
	opts := testOptions()
	opts.MaxStageSize = 1
	opts.MaxMergeAtOnce = 2
	opts.MaxSegmentsPerTier = 2

	idx, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	ctx := context.Background()

	for docID := uint32(1); docID <= 4; docID++ {
		require.NoError(t, idx.Update(ctx, []oplog.Op{
			oplog.InsertOrUpdate(docID, []uint32{7, 9, 12}),
		}))
	}

	want := []index.Result{
		{DocID: 1, Score: 3}, {DocID: 2, Score: 3}, {DocID: 3, Score: 3}, {DocID: 4, Score: 3},
	}
	deadline := time.After(2 * time.Second)
	for {
		results, err := idx.Search(ctx, []uint32{7, 9, 12}, index.SearchOptions{})
		require.NoError(t, err)
		if len(results) == len(want) {
			require.ElementsMatch(t, want, results)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected all 4 docs scored 3, got %v", results)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// S5 — recovery: a fresh Index opened against the same durable state as a
// killed one reflects exactly the oplog prefix that was ever committed.
func TestScenarioS5Recovery(t *testing.T) {
	dir := directory.NewMemory()
	opts := testOptions()
	opts.MaxStageSize = 1_000_000 // keep everything in the unflushed builder

	idx1, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx1.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(1, []uint32{100, 200, 300})}))
	require.NoError(t, idx1.Close()) // killed before any background flush

	idx2, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx2.Close() })

	results, err := idx2.Search(ctx, []uint32{100, 200, 300}, index.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []index.Result{{DocID: 1, Score: 3}}, results)

	require.NoError(t, idx2.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(1, []uint32{400, 500, 600})}))
	results, err = idx2.Search(ctx, []uint32{400, 500, 600}, index.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, []index.Result{{DocID: 1, Score: 3}}, results)
}

// S6 — attribute round-trip across a close/reopen cycle.
func TestScenarioS6AttributeRoundTrip(t *testing.T) {
	dir := directory.NewMemory()
	opts := testOptions()

	idx1, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, idx1.Update(context.Background(), []oplog.Op{oplog.SetAttribute("foo", "bar")}))
	require.NoError(t, idx1.Close())

	idx2, err := index.Open(context.Background(), dir, opts, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { idx2.Close() })

	require.Equal(t, "bar", idx2.Attribute("foo"))
}

// TestSnapshotIsolationNeverShowsTornDocumentState exercises property #7: a
// search must never observe a document mid-update — its score must always
// correspond wholly to one committed version's hash set, never a mix of an
// old and new version's terms.
func TestSnapshotIsolationNeverShowsTornDocumentState(t *testing.T) {
	dir := directory.NewMemory()
	idx := openTestIndex(t, dir)
	ctx := context.Background()

	setA := []uint32{1, 2, 3, 4, 5}
	setB := []uint32{101, 102, 103, 104, 105}

	require.NoError(t, idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(1, setA)}))

	const iterations = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			set := setA
			if i%2 == 1 {
				set = setB
			}
			_ = idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(1, set)})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			results, err := idx.Search(ctx, append(append([]uint32{}, setA...), setB...), index.SearchOptions{})
			require.NoError(t, err)
			for _, r := range results {
				if r.DocID != 1 {
					continue
				}
				require.True(t, r.Score == len(setA) || r.Score == len(setB),
					"torn read: score %d matches neither setA (%d) nor setB (%d)", r.Score, len(setA), len(setB))
			}
		}
	}()

	wg.Wait()
}
