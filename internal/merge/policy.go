// Package merge implements the tiered merge policy (§4.F) and the N-way
// segment merger (§4.G). Both operate purely over sizes and iterators; they
// never touch a Directory directly except when actually writing a merged
// segment's files.
package merge

import (
	"math"
	"sort"
)

// Default tier shape, matching acoustid-index's SegmentMergePolicy.
const (
	DefaultMaxMergeAtOnce     = 4
	DefaultMaxSegmentsPerTier = 3
)

// SegmentSize is the only input the policy needs about a segment: its id
// and how many blocks it occupies.
type SegmentSize struct {
	SegmentID  uint32
	BlockCount int
}

// FindMerges picks the next batch of segments to merge, mirroring
// SegmentMergePolicy::findMerges: segments are grouped into virtual tiers by
// size, and a merge is proposed only once the segment count exceeds what the
// tier shape allows. Among all contiguous windows of maxMergeAtOnce segments
// (sorted by size descending), the window with the lowest
// largest/sum * sum^0.05 score is chosen — favoring merges of similarly
// sized segments over merging one giant segment into many small ones.
//
// Returns nil if no merge is needed (segment count is already within the
// tier budget, or there are fewer than maxMergeAtOnce segments to merge).
func FindMerges(sizes []SegmentSize, maxMergeAtOnce, maxSegmentsPerTier int) []uint32 {
	if len(sizes) < maxMergeAtOnce || maxMergeAtOnce <= 1 || maxSegmentsPerTier <= 0 {
		return nil
	}

	sorted := append([]SegmentSize(nil), sizes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockCount > sorted[j].BlockCount })

	minSize := sorted[len(sorted)-1].BlockCount
	if minSize <= 0 {
		minSize = 1
	}

	total := 0
	for _, s := range sorted {
		total += s.BlockCount
	}

	allowed := 0
	levelSize := minSize
	remaining := total
	for {
		levelCount := remaining / levelSize
		if levelCount < maxSegmentsPerTier {
			allowed += levelCount
			break
		}
		allowed += maxSegmentsPerTier
		remaining -= maxSegmentsPerTier * levelSize
		levelSize *= maxMergeAtOnce
	}

	if len(sorted) <= allowed {
		return nil
	}

	bestScore := 1.0
	bestStart := -1
	for start := 0; start+maxMergeAtOnce <= len(sorted); start++ {
		windowSum := 0
		for i := start; i < start+maxMergeAtOnce; i++ {
			windowSum += sorted[i].BlockCount
		}
		if windowSum == 0 {
			continue
		}
		score := float64(sorted[start].BlockCount) / float64(windowSum) * math.Pow(float64(windowSum), 0.05)
		if score < bestScore {
			bestScore = score
			bestStart = start
		}
	}

	if bestStart < 0 {
		return nil
	}

	ids := make([]uint32, maxMergeAtOnce)
	for i := 0; i < maxMergeAtOnce; i++ {
		ids[i] = sorted[bestStart+i].SegmentID
	}
	return ids
}
