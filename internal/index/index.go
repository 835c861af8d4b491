// Package index implements the index manager (§4.H): the component that
// owns one index's sealed segments, its in-memory builder, its operation
// log, and the background writer that seals and merges segments. Reads go
// through a lock-free atomic snapshot; writes are serialized by a mutex
// that is held across the oplog write and each IndexInfo revision write,
// but not across segment serialization or merge I/O.
package index

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/builder"
	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/indexinfo"
	"github.com/iamNilotpal/fpindex/internal/merge"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/internal/segment"
	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/options"
	"github.com/iamNilotpal/fpindex/pkg/seginfo"
)

// Snapshot is the immutable (info, segments, builder) triple searches read
// without locking. A Snapshot, once published, is never mutated; readers
// holding an old one keep seeing a consistent view even as the index moves
// on underneath them.
type Snapshot struct {
	Info     indexinfo.IndexInfo
	Segments map[uint32]*segment.Reader
	Builder  *builder.Builder
	// Pending holds builders that have been frozen and queued for
	// serialization but have not yet landed in Segments. Without this, a
	// document would vanish from search results for the gap between a
	// seal and the background writer finishing that segment's I/O.
	Pending []*builder.Builder
}

// Result is one ranked search hit.
type Result struct {
	DocID uint32
	Score int
}

// SearchOptions bounds one search call. Zero values fall back to the
// index's configured defaults.
type SearchOptions struct {
	Timeout         time.Duration
	MaxResults      int
	TopScorePercent float64
}

// Index is one named fingerprint index: segments, builder, oplog, and the
// background writer that seals and merges them.
type Index struct {
	dir  directory.Directory
	opts options.Options
	log  *zap.SugaredLogger

	oplog *oplog.Oplog

	mu       sync.Mutex
	info     indexinfo.IndexInfo
	segments map[uint32]*segment.Reader
	builder  *builder.Builder
	// pending is the set of frozen builders sent to writerQueue but not
	// yet serialized; kept visible to search via the published snapshot
	// until serializeAndPublish removes each one.
	pending []*builder.Builder

	snapshot atomic.Pointer[Snapshot]

	writerQueue chan *builder.Builder
	stop        chan struct{}
	wg          sync.WaitGroup
	closed      atomic.Bool
}

// Open loads the latest IndexInfo revision (or starts empty), opens every
// sealed segment it lists, opens the oplog, and replays any entries past
// the newest segment's maxOpId into a fresh builder — recovering whatever
// in-memory state a prior crash lost. The background writer is started
// before Open returns.
func Open(ctx context.Context, dir directory.Directory, opts options.Options, log *zap.SugaredLogger) (*Index, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	info, err := loadLatestInfo(dir)
	if err != nil {
		return nil, err
	}

	segments := make(map[uint32]*segment.Reader, len(info.Segments))
	var lastPersistedOpID uint64
	maxSegmentID := info.LastSegmentID
	for _, sd := range info.Segments {
		r, err := segment.Open(dir, sd.ID)
		if err != nil {
			for _, open := range segments {
				open.Close()
			}
			return nil, err
		}
		segments[sd.ID] = r
		if sd.MaxOpID > lastPersistedOpID {
			lastPersistedOpID = sd.MaxOpID
		}
		if sd.ID > maxSegmentID {
			maxSegmentID = sd.ID
		}
	}

	ol, err := oplog.Open(ctx, dir, opts.OplogFile, log)
	if err != nil {
		return nil, err
	}

	attrs := info.Attributes
	if attrs == nil {
		attrs = make(map[string]string)
	}

	b := builder.New(maxSegmentID+1, int(opts.BlockSize), log)

	entries, err := ol.Read(ctx, lastPersistedOpID, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		switch e.Op.Kind {
		case oplog.KindInsertOrUpdate:
			if err := b.Add(e.Op.DocID, e.Op.Hashes, e.OpID); err != nil {
				return nil, err
			}
		case oplog.KindDelete:
			if err := b.Delete(e.Op.DocID, e.OpID); err != nil {
				return nil, err
			}
		case oplog.KindSetAttribute:
			attrs[e.Op.AttrName] = e.Op.AttrValue
		}
	}

	info.Attributes = attrs
	info.LastSegmentID = maxSegmentID + 1

	idx := &Index{
		dir:         dir,
		opts:        opts,
		log:         log,
		oplog:       ol,
		info:        info,
		segments:    segments,
		builder:     b,
		writerQueue: make(chan *builder.Builder, 4),
		stop:        make(chan struct{}),
	}
	idx.publishSnapshotLocked()

	idx.wg.Add(1)
	go idx.backgroundWriter()

	log.Infow("index opened", "segments", len(segments), "replayedOps", len(entries), "builderSegmentId", b.SegmentID)
	return idx, nil
}

// Update applies a batch of operations atomically: they are written to the
// oplog first (the durability point), then applied to the in-memory
// builder, then a new snapshot is published. If the builder has reached
// MaxStageSize it is sealed and queued for serialization before the new
// operations are applied to a fresh one.
func (idx *Index) Update(ctx context.Context, ops []oplog.Op) error {
	if idx.closed.Load() {
		return errors.NewIndexError(nil, errors.ErrorCodeIndexClosed, "index is closed").WithOperation("update")
	}
	if len(ops) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.builder.Size() >= int(idx.opts.MaxStageSize) {
		idx.sealBuilderLocked()
	}

	lastOpID, err := idx.oplog.Write(ctx, time.Now().UnixMilli(), ops)
	if err != nil {
		return err
	}
	firstOpID := lastOpID - uint64(len(ops)) + 1

	for i, op := range ops {
		opID := firstOpID + uint64(i)
		switch op.Kind {
		case oplog.KindInsertOrUpdate:
			if err := idx.builder.Add(op.DocID, op.Hashes, opID); err != nil {
				return err
			}
		case oplog.KindDelete:
			if err := idx.builder.Delete(op.DocID, opID); err != nil {
				return err
			}
		case oplog.KindSetAttribute:
			idx.info.Attributes[op.AttrName] = op.AttrValue
		}
	}

	idx.publishSnapshotLocked()
	return nil
}

// sealBuilderLocked freezes the current builder, queues it for background
// serialization, and starts a fresh one. Caller must hold idx.mu.
func (idx *Index) sealBuilderLocked() {
	old := idx.builder
	old.Freeze()
	idx.pending = append(idx.pending, old)
	idx.writerQueue <- old
	idx.info.LastSegmentID++
	idx.builder = builder.New(idx.info.LastSegmentID, int(idx.opts.BlockSize), idx.log)
}

// removePendingLocked drops segmentID from idx.pending once it has been
// serialized and folded into idx.segments.
func (idx *Index) removePendingLocked(segmentID uint32) {
	for i, b := range idx.pending {
		if b.SegmentID == segmentID {
			idx.pending = append(idx.pending[:i], idx.pending[i+1:]...)
			return
		}
	}
}

// Attribute returns the named index-level attribute's current value, or
// the empty string if it was never set. Reads the published snapshot, so
// it never blocks on a concurrent Update.
func (idx *Index) Attribute(name string) string {
	snap := idx.snapshot.Load()
	if snap == nil {
		return ""
	}
	return snap.Info.Attributes[name]
}

// Search aggregates hits across every sealed segment and the live builder,
// resolves cross-segment version conflicts, and returns results ranked by
// score descending then docId ascending, subject to MaxResults and
// TopScorePercent (§4.H's search path).
func (idx *Index) Search(ctx context.Context, query []uint32, opts SearchOptions) ([]Result, error) {
	snap := idx.snapshot.Load()
	if snap == nil {
		return nil, errors.NewSearchError(nil, errors.ErrorCodeInternal, "index has no published snapshot")
	}

	sortedQuery := sortedUnique(query)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = idx.opts.SearchTimeout
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type hit struct {
		score     int
		version   uint64
		tombstone bool
	}
	global := make(map[uint32]hit)

	scanned := 0
	checkDeadline := func() error {
		select {
		case <-deadlineCtx.Done():
			return errors.NewTimeoutError(len(sortedQuery), scanned)
		default:
			return nil
		}
	}

	for _, r := range snap.Segments {
		if err := checkDeadline(); err != nil {
			return nil, err
		}
		segHits, err := r.Search(sortedQuery)
		if err != nil {
			return nil, errors.NewSearchError(err, errors.ErrorCodeInternal, "segment search failed").
				WithSegmentsScanned(scanned)
		}
		scanned++
		for _, h := range segHits {
			entry, _ := r.DocTable().Get(h.DocID)
			cur, ok := global[h.DocID]
			if !ok || entry.Version > cur.version {
				global[h.DocID] = hit{score: h.Matches, version: entry.Version, tombstone: entry.Tombstone}
			}
		}
	}

	builders := make([]*builder.Builder, 0, len(snap.Pending)+1)
	builders = append(builders, snap.Pending...)
	if snap.Builder != nil {
		builders = append(builders, snap.Builder)
	}
	for _, b := range builders {
		if err := checkDeadline(); err != nil {
			return nil, err
		}
		for _, h := range b.Search(sortedQuery) {
			version, tombstone, ok := b.Version(h.DocID)
			if !ok {
				continue
			}
			cur, exists := global[h.DocID]
			if !exists || version > cur.version {
				global[h.DocID] = hit{score: h.Matches, version: version, tombstone: tombstone}
			}
		}
	}

	// Step 5: a docId's true authoritative version may live in a segment
	// that had no overlap with this query at all (fully superseded). Scan
	// every segment/builder's doc table (not just the hitters) for the
	// highest recorded version; drop the docId if something newer exists
	// elsewhere, or if the authoritative entry at that version is a
	// tombstone.
	for docID, h := range global {
		maxVersion := h.version
		maxTombstone := h.tombstone
		for _, r := range snap.Segments {
			if entry, ok := r.DocTable().Get(docID); ok && entry.Version > maxVersion {
				maxVersion = entry.Version
				maxTombstone = entry.Tombstone
			}
		}
		for _, b := range builders {
			if version, tombstone, ok := b.Version(docID); ok && version > maxVersion {
				maxVersion = version
				maxTombstone = tombstone
			}
		}
		if maxVersion > h.version || maxTombstone {
			delete(global, docID)
		}
	}

	results := make([]Result, 0, len(global))
	for docID, h := range global {
		results = append(results, Result{DocID: docID, Score: h.score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = idx.opts.MaxResults
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	if opts.TopScorePercent > 0 && len(results) > 0 {
		cutoff := float64(results[0].Score) * opts.TopScorePercent / 100
		i := 0
		for i < len(results) && float64(results[i].Score) >= cutoff {
			i++
		}
		results = results[:i]
	}

	return results, nil
}

// Close stops the background writer and releases every open segment
// handle. A second call reports the index already closed rather than
// panicking.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return errors.NewIndexError(nil, errors.ErrorCodeIndexClosed, "index already closed")
	}

	close(idx.stop)
	idx.wg.Wait()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range idx.segments {
		r.Close()
	}
	return nil
}

// backgroundWriter drains sealed builders off the writer queue, serializes
// each to a sealed segment, publishes the result, and opportunistically
// checks the merge policy afterward.
func (idx *Index) backgroundWriter() {
	defer idx.wg.Done()
	for {
		select {
		case <-idx.stop:
			return
		case b, ok := <-idx.writerQueue:
			if !ok {
				return
			}
			idx.serializeAndPublish(b)
			idx.tryMerge()
		}
	}
}

func (idx *Index) serializeAndPublish(b *builder.Builder) {
	result, err := b.Serialize(idx.dir)
	if err != nil {
		idx.log.Errorw("failed to serialize builder segment; requeuing", "segmentId", b.SegmentID, "error", err)
		go func() {
			select {
			case <-time.After(idx.opts.WriterPollInterval):
			case <-idx.stop:
				return
			}
			select {
			case idx.writerQueue <- b:
			case <-idx.stop:
			}
		}()
		return
	}

	reader, err := segment.Open(idx.dir, b.SegmentID)
	if err != nil {
		idx.log.Errorw("failed to reopen newly serialized segment", "segmentId", b.SegmentID, "error", err)
		return
	}

	idx.mu.Lock()
	idx.segments[b.SegmentID] = reader
	idx.removePendingLocked(b.SegmentID)
	idx.info.Segments = append(cloneDescriptors(idx.info.Segments), indexinfo.SegmentDescriptor{
		ID:         result.SegmentID,
		BlockCount: result.BlockCount,
		LastHash:   result.LastHash,
		Checksum:   result.Checksum,
		MinOpID:    result.MinOpID,
		MaxOpID:    result.MaxOpID,
	})
	if b.SegmentID > idx.info.LastSegmentID {
		idx.info.LastSegmentID = b.SegmentID
	}
	if err := idx.persistInfoLocked(); err != nil {
		idx.log.Errorw("failed to persist index info after seal", "error", err)
	}
	idx.publishSnapshotLocked()
	idx.mu.Unlock()

	idx.log.Infow("sealed builder segment", "segmentId", result.SegmentID, "blockCount", result.BlockCount)
}

// tryMerge asks the tiered merge policy whether any segments should be
// combined and, if so, performs the merge and publishes its result. It
// takes idx.mu only for the brief bookkeeping steps before and after the
// (potentially slow) merge I/O.
func (idx *Index) tryMerge() {
	idx.mu.Lock()
	sizes := make([]merge.SegmentSize, 0, len(idx.info.Segments))
	descByID := make(map[uint32]indexinfo.SegmentDescriptor, len(idx.info.Segments))
	for _, sd := range idx.info.Segments {
		sizes = append(sizes, merge.SegmentSize{SegmentID: sd.ID, BlockCount: sd.BlockCount})
		descByID[sd.ID] = sd
	}

	ids := merge.FindMerges(sizes, idx.opts.MaxMergeAtOnce, idx.opts.MaxSegmentsPerTier)
	if ids == nil {
		idx.mu.Unlock()
		return
	}

	sources := make([]merge.Source, 0, len(ids))
	for _, id := range ids {
		r, ok := idx.segments[id]
		if !ok {
			idx.mu.Unlock()
			idx.log.Errorw("merge policy selected a segment with no open reader; aborting merge",
				"error", errors.NewMissingSegmentError(id, "tryMerge"))
			return
		}
		sd := descByID[id]
		sources = append(sources, merge.Source{
			SegmentID: id,
			Postings:  r.Postings(),
			DocTable:  r.DocTable(),
			MinOpID:   sd.MinOpID,
			MaxOpID:   sd.MaxOpID,
		})
	}

	idx.info.LastSegmentID++
	targetID := idx.info.LastSegmentID
	idx.mu.Unlock()

	result, err := merge.Merge(idx.dir, targetID, int(idx.opts.BlockSize), sources)
	if err != nil {
		idx.log.Errorw("segment merge failed", "targetSegmentId", targetID, "error", err)
		return
	}

	reader, err := segment.Open(idx.dir, targetID)
	if err != nil {
		idx.log.Errorw("failed to reopen merged segment", "targetSegmentId", targetID, "error", err)
		return
	}

	merged := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		merged[id] = true
	}

	idx.mu.Lock()
	var toClose []*segment.Reader
	newDescs := make([]indexinfo.SegmentDescriptor, 0, len(idx.info.Segments))
	for _, sd := range idx.info.Segments {
		if merged[sd.ID] {
			if r, ok := idx.segments[sd.ID]; ok {
				toClose = append(toClose, r)
				delete(idx.segments, sd.ID)
			}
			continue
		}
		newDescs = append(newDescs, sd)
	}
	newDescs = append(newDescs, indexinfo.SegmentDescriptor{
		ID:         result.SegmentID,
		BlockCount: result.BlockCount,
		LastHash:   result.LastHash,
		Checksum:   result.Checksum,
		MinOpID:    result.MinOpID,
		MaxOpID:    result.MaxOpID,
	})
	idx.info.Segments = newDescs
	idx.segments[result.SegmentID] = reader

	if err := idx.persistInfoLocked(); err != nil {
		idx.log.Errorw("failed to persist index info after merge", "error", err)
	}
	idx.publishSnapshotLocked()
	idx.mu.Unlock()

	for _, r := range toClose {
		r.Close()
	}
	for _, id := range ids {
		fii, fid, fdx := segment.FileNames(id)
		idx.dir.Delete(fii)
		idx.dir.Delete(fid)
		idx.dir.Delete(fdx)
	}

	idx.log.Infow("merged segments", "inputs", ids, "output", result.SegmentID, "blockCount", result.BlockCount)
}

// publishSnapshotLocked clones the mutable pieces of idx's in-memory state
// into a fresh, independently-owned Snapshot and swaps it in atomically.
// Caller must hold idx.mu.
func (idx *Index) publishSnapshotLocked() {
	segs := make(map[uint32]*segment.Reader, len(idx.segments))
	for id, r := range idx.segments {
		segs[id] = r
	}

	attrs := make(map[string]string, len(idx.info.Attributes))
	for k, v := range idx.info.Attributes {
		attrs[k] = v
	}

	pending := make([]*builder.Builder, len(idx.pending))
	copy(pending, idx.pending)

	idx.snapshot.Store(&Snapshot{
		Info: indexinfo.IndexInfo{
			Revision:      idx.info.Revision,
			LastSegmentID: idx.info.LastSegmentID,
			Segments:      cloneDescriptors(idx.info.Segments),
			Attributes:    attrs,
		},
		Segments: segs,
		Builder:  idx.builder,
		Pending:  pending,
	})
}

func (idx *Index) persistInfoLocked() error {
	next, err := idx.nextRevisionLocked()
	if err != nil {
		return err
	}

	idx.info.Revision = next
	buf := indexinfo.Encode(idx.info)

	f, err := idx.dir.Create(seginfo.RevisionName(next))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, 0); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "writing index info revision").WithFileName(seginfo.RevisionName(next))
	}
	return f.Sync()
}

func (idx *Index) nextRevisionLocked() (uint64, error) {
	names, err := idx.dir.List()
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, n := range names {
		if r, ok := seginfo.ParseRevisionNumber(n); ok && r > max {
			max = r
		}
	}
	return max + 1, nil
}

// loadLatestInfo scans dir for info_N files and returns the newest one
// whose checksum verifies, per §6: earlier corrupt revisions are skipped
// rather than failing the open outright. An empty IndexInfo is returned if
// dir has no revisions yet (a brand-new index).
func loadLatestInfo(dir directory.Directory) (indexinfo.IndexInfo, error) {
	names, err := dir.List()
	if err != nil {
		return indexinfo.IndexInfo{}, err
	}

	var revisions []uint64
	for _, n := range names {
		if r, ok := seginfo.ParseRevisionNumber(n); ok {
			revisions = append(revisions, r)
		}
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i] > revisions[j] })

	for _, rev := range revisions {
		f, err := dir.Open(seginfo.RevisionName(rev))
		if err != nil {
			continue
		}
		buf, err := readAllFile(f)
		f.Close()
		if err != nil {
			continue
		}
		info, err := indexinfo.Decode(buf, rev)
		if err != nil {
			continue
		}
		return info, nil
	}

	return indexinfo.IndexInfo{Attributes: make(map[string]string)}, nil
}

func readAllFile(f directory.File) ([]byte, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func cloneDescriptors(in []indexinfo.SegmentDescriptor) []indexinfo.SegmentDescriptor {
	out := make([]indexinfo.SegmentDescriptor, len(in))
	copy(out, in)
	return out
}

// sortedUnique dedups a query's hash list with a set before sorting, since
// fingerprint queries frequently repeat hashes (the same chroma bucket
// recurring across overlapping frames) and a query-time set avoids scoring
// the same hash against a segment more than once.
func sortedUnique(hashes []uint32) []uint32 {
	set := mapset.NewThreadUnsafeSet[uint32]()
	for _, h := range hashes {
		set.Add(h)
	}
	out := set.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
