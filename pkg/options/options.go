// Package options provides data structures and functions for configuring
// the fpindex engine. It defines the parameters that control segment
// layout, staging/merge behavior, and search defaults, following the
// functional-options pattern.
package options

import (
	"strings"
	"time"

	"github.com/iamNilotpal/fpindex/pkg/errors"
)

// Options defines the configuration parameters for an Index (or a
// MultiIndex registry of them). It controls storage layout, staging and
// merge tuning, and search defaults.
type Options struct {
	// DataDir is the base path where an index's files are stored.
	//
	// Default: "/var/lib/fpindex"
	DataDir string `json:"dataDir"`

	// BlockSize is the fixed size, in bytes, of one posting block in a
	// sealed segment's .fid file.
	//
	// Default: 4096
	BlockSize uint32 `json:"blockSize"`

	// MaxStageSize is the number of postings the in-memory builder segment
	// buffers before it freezes and is queued for serialization.
	//
	// Default: 1,000,000
	MaxStageSize uint32 `json:"maxStageSize"`

	// MaxMergeAtOnce is the tiered merge policy's candidate run length: the
	// number of same-tier segments considered together for one merge.
	//
	// Default: 4
	MaxMergeAtOnce int `json:"maxMergeAtOnce"`

	// MaxSegmentsPerTier bounds how many segments one virtual tier may hold
	// before the merge policy schedules work.
	//
	// Default: 3
	MaxSegmentsPerTier int `json:"maxSegmentsPerTier"`

	// MaxResults caps the number of hits a search returns, absent a
	// smaller per-call limit.
	//
	// Default: 100
	MaxResults int `json:"maxResults"`

	// SearchTimeout bounds how long one search may run before failing with
	// a timeout error.
	//
	// Default: 10s
	SearchTimeout time.Duration `json:"searchTimeout"`

	// SegmentDirectory is checked by Validate to be non-empty but places no
	// file: segment files and IndexInfo revisions are written directly into
	// each index's own directory under DataDir.
	//
	// Default: "segments"
	SegmentDirectory string `json:"segmentDirectory"`

	// SegmentPrefix is checked by Validate to be non-empty and is used to
	// reject a colliding OplogFile name; segment and revision file names
	// themselves use the fixed "segment_" and "info_" prefixes of pkg/seginfo.
	//
	// Default: "segment"
	SegmentPrefix string `json:"segmentPrefix"`

	// OplogFile names the embedded relational store file backing the
	// operation log, relative to the index's own directory under DataDir.
	//
	// Default: "control.db"
	OplogFile string `json:"oplogFile"`

	// WriterPollInterval is how often the background writer wakes up to
	// check its flush/merge queue absent an explicit signal.
	//
	// Default: 1s
	WriterPollInterval time.Duration `json:"writerPollInterval"`
}

// OptionFunc modifies an Options value.
type OptionFunc func(*Options)

// Validate reports the first out-of-range or missing field it finds. The
// With* functions below only guard values arriving through an OptionFunc
// (they ignore an out-of-range value) — an Options value built directly (a
// zero-value struct literal, or one assembled from a config file) skips that
// check entirely, so Open calls
// Validate before doing anything else rather than trusting the caller.
func (o Options) Validate() error {
	if strings.TrimSpace(o.DataDir) == "" {
		return errors.NewRequiredFieldError("dataDir")
	}
	if o.BlockSize < MinBlockSize || o.BlockSize > MaxBlockSize {
		return errors.NewFieldRangeError("blockSize", o.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if o.MaxStageSize == 0 {
		return errors.NewFieldRangeError("maxStageSize", o.MaxStageSize, 1, nil)
	}
	if o.MaxMergeAtOnce < 2 {
		return errors.NewFieldRangeError("maxMergeAtOnce", o.MaxMergeAtOnce, 2, nil)
	}
	if o.MaxSegmentsPerTier < 1 {
		return errors.NewFieldRangeError("maxSegmentsPerTier", o.MaxSegmentsPerTier, 1, nil)
	}
	if o.MaxResults <= 0 {
		return errors.NewFieldRangeError("maxResults", o.MaxResults, 1, nil)
	}
	if o.SearchTimeout <= 0 {
		return errors.NewFieldFormatError("searchTimeout", o.SearchTimeout, "positive duration")
	}
	if strings.TrimSpace(o.SegmentDirectory) == "" {
		return errors.NewRequiredFieldError("segmentDirectory")
	}
	if strings.TrimSpace(o.SegmentPrefix) == "" {
		return errors.NewRequiredFieldError("segmentPrefix")
	}
	if strings.TrimSpace(o.OplogFile) == "" {
		return errors.NewRequiredFieldError("oplogFile")
	}
	// The oplog database and every sealed segment/revision file for an
	// index live side by side in the same directory (see
	// registry.Registry.newDir); a name collision there would mean the
	// oplog silently clobbers a segment file or vice versa.
	if strings.HasPrefix(o.OplogFile, o.SegmentPrefix) || strings.HasPrefix(o.OplogFile, "info_") {
		return errors.NewConfigurationValidationError(
			"oplogFile",
			"filename would collide with this index's segment or revision file naming scheme",
		)
	}
	if o.WriterPollInterval <= 0 {
		return errors.NewFieldFormatError("writerPollInterval", o.WriterPollInterval, "positive duration")
	}
	return nil
}

// WithDefaultOptions resets every field to the package defaults.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithDataDir sets the base data directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithBlockSize sets the posting block size; a size outside
// [MinBlockSize, MaxBlockSize] is ignored.
func WithBlockSize(size uint32) OptionFunc {
	return func(o *Options) {
		if size >= MinBlockSize && size <= MaxBlockSize {
			o.BlockSize = size
		}
	}
}

// WithMaxStageSize sets how many postings the builder segment buffers
// before freezing.
func WithMaxStageSize(size uint32) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.MaxStageSize = size
		}
	}
}

// WithMaxMergeAtOnce sets the tiered merge policy's candidate run length.
func WithMaxMergeAtOnce(n int) OptionFunc {
	return func(o *Options) {
		if n >= 2 {
			o.MaxMergeAtOnce = n
		}
	}
}

// WithMaxSegmentsPerTier sets how many segments one tier may hold before a
// merge is scheduled.
func WithMaxSegmentsPerTier(n int) OptionFunc {
	return func(o *Options) {
		if n >= 1 {
			o.MaxSegmentsPerTier = n
		}
	}
}

// WithMaxResults sets the default cap on returned search hits.
func WithMaxResults(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxResults = n
		}
	}
}

// WithSearchTimeout sets how long a search may run before failing.
func WithSearchTimeout(d time.Duration) OptionFunc {
	return func(o *Options) {
		if d > 0 {
			o.SearchTimeout = d
		}
	}
}

// WithSegmentDirectory sets Options.SegmentDirectory, which no file
// placement uses.
func WithSegmentDirectory(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentDirectory = directory
		}
	}
}

// WithSegmentPrefix sets Options.SegmentPrefix; segment and revision file
// names do not use it.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentPrefix = prefix
		}
	}
}

// WithOplogFile sets the oplog's relational-store filename, relative to
// the index's own directory under DataDir.
func WithOplogFile(name string) OptionFunc {
	return func(o *Options) {
		name = strings.TrimSpace(name)
		if name != "" {
			o.OplogFile = name
		}
	}
}

// WithWriterPollInterval sets how often the background writer polls its
// queue absent a signal.
func WithWriterPollInterval(d time.Duration) OptionFunc {
	return func(o *Options) {
		if d > 0 {
			o.WriterPollInterval = d
		}
	}
}
