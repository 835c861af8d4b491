// Package seginfo generates and parses the on-disk file names used by one
// index directory: the per-segment block index/data/doc-table triple and
// the IndexInfo revision files.
//
// Naming scheme:
//
//	info_N              IndexInfo revision N (new file per commit)
//	segment_<id>.fii    block index for segment <id>
//	segment_<id>.fid    block data for segment <id>
//	segment_<id>.fdx    doc table for segment <id>
//
// Segment ids and revision numbers are plain decimal integers assigned by
// the index manager; there is no embedded timestamp, so ordering is
// purely numeric rather than lexicographic.
package seginfo

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iamNilotpal/fpindex/pkg/filesys"
)

const (
	segmentPrefix  = "segment_"
	revisionPrefix = "info_"

	ExtBlockIndex = ".fii"
	ExtBlockData  = ".fid"
	ExtDocTable   = ".fdx"
)

// SegmentFileNames returns the three file names for a segment id, relative
// to the index directory.
func SegmentFileNames(id uint64) (fii, fid, fdx string) {
	base := fmt.Sprintf("%s%d", segmentPrefix, id)
	return base + ExtBlockIndex, base + ExtBlockData, base + ExtDocTable
}

// RevisionName returns the file name for IndexInfo revision n.
func RevisionName(n uint64) string {
	return fmt.Sprintf("%s%d", revisionPrefix, n)
}

// ParseSegmentID extracts the segment id and extension from a file name of
// the form "segment_<id><ext>". ok is false if name doesn't match.
func ParseSegmentID(name string) (id uint64, ext string, ok bool) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return 0, "", false
	}

	ext = filepath.Ext(name)
	switch ext {
	case ExtBlockIndex, ExtBlockData, ExtDocTable:
	default:
		return 0, "", false
	}

	idStr := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), ext)
	n, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, ext, true
}

// ParseRevisionNumber extracts N from a file name of the form "info_N". ok
// is false if name doesn't match.
func ParseRevisionNumber(name string) (n uint64, ok bool) {
	if !strings.HasPrefix(name, revisionPrefix) {
		return 0, false
	}
	numStr := strings.TrimPrefix(name, revisionPrefix)
	if numStr == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ListSegmentIDs scans dir for segment_*.fid files and returns the set of
// segment ids present, sorted ascending. A segment is only considered
// present if its .fid file exists; callers are responsible for verifying
// the companion .fii/.fdx files also exist.
func ListSegmentIDs(dir string) ([]uint64, error) {
	pattern := filepath.Join(dir, segmentPrefix+"*"+ExtBlockData)
	matches, err := filesys.ReadDir(pattern)
	if err != nil {
		return nil, fmt.Errorf("seginfo: reading segment directory %s: %w", dir, err)
	}

	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		_, name := filepath.Split(m)
		if id, ext, ok := ParseSegmentID(name); ok && ext == ExtBlockData {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// ListRevisions scans dir for info_N files and returns the revision numbers
// present, sorted descending (highest first), so callers can try the
// newest revision and fall back to progressively older ones on checksum
// failure.
func ListRevisions(dir string) ([]uint64, error) {
	pattern := filepath.Join(dir, revisionPrefix+"*")
	matches, err := filesys.ReadDir(pattern)
	if err != nil {
		return nil, fmt.Errorf("seginfo: reading revision files in %s: %w", dir, err)
	}

	revs := make([]uint64, 0, len(matches))
	for _, m := range matches {
		_, name := filepath.Split(m)
		if n, ok := ParseRevisionNumber(name); ok {
			revs = append(revs, n)
		}
	}
	slices.Sort(revs)
	slices.Reverse(revs)
	return revs, nil
}

// NextSegmentID returns one past the highest segment id present in dir, or
// 1 if the directory has no segments yet.
func NextSegmentID(dir string) (uint64, error) {
	ids, err := ListSegmentIDs(dir)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

// NextRevision returns one past the highest revision number present in
// dir, or 1 if the directory has no revisions yet.
func NextRevision(dir string) (uint64, error) {
	revs, err := ListRevisions(dir)
	if err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return 1, nil
	}
	return revs[0] + 1, nil
}
