package options

import "time"

const (
	// DefaultDataDir is the base directory used when no directory is given.
	DefaultDataDir = "/var/lib/fpindex"

	// DefaultBlockSize is the fixed size, in bytes, of one posting block.
	DefaultBlockSize uint32 = 4096

	// MinBlockSize is the smallest block size Validate and WithBlockSize
	// accept.
	MinBlockSize uint32 = 256

	// MaxBlockSize is the largest block size allowed. itemCount is a u16, so
	// a block larger than this wastes addressable entries for no benefit.
	MaxBlockSize uint32 = 64 * 1024

	// DefaultMaxStageSize is the number of postings the builder segment
	// buffers before it is frozen and queued for serialization.
	DefaultMaxStageSize uint32 = 1_000_000

	// DefaultMaxMergeAtOnce is the tiered merge policy's candidate run size.
	DefaultMaxMergeAtOnce = 4

	// DefaultMaxSegmentsPerTier bounds how many segments one virtual tier
	// may hold before the policy schedules a merge.
	DefaultMaxSegmentsPerTier = 3

	// DefaultMaxResults is the default cap on returned search hits.
	DefaultMaxResults = 100

	// DefaultSearchTimeout bounds how long one search may run before it
	// fails with a timeout error.
	DefaultSearchTimeout = 10 * time.Second

	// DefaultSegmentDirectory is the default Options.SegmentDirectory;
	// segment files (.fii/.fid/.fdx) are not placed under it.
	DefaultSegmentDirectory = "segments"

	// DefaultSegmentPrefix is the default Options.SegmentPrefix.
	DefaultSegmentPrefix = "segment"

	// DefaultOplogFile names the embedded relational store backing the
	// operation log.
	DefaultOplogFile = "control.db"

	// DefaultWriterPollInterval is how often the background writer wakes up
	// to check the flush/merge queue absent a signal.
	DefaultWriterPollInterval = time.Second
)

var defaultOptions = Options{
	DataDir:            DefaultDataDir,
	BlockSize:          DefaultBlockSize,
	MaxStageSize:       DefaultMaxStageSize,
	MaxMergeAtOnce:     DefaultMaxMergeAtOnce,
	MaxSegmentsPerTier: DefaultMaxSegmentsPerTier,
	MaxResults:         DefaultMaxResults,
	SearchTimeout:      DefaultSearchTimeout,
	SegmentDirectory:   DefaultSegmentDirectory,
	SegmentPrefix:      DefaultSegmentPrefix,
	OplogFile:          DefaultOplogFile,
	WriterPollInterval: DefaultWriterPollInterval,
}

// NewDefaultOptions returns a copy of the package's default configuration.
func NewDefaultOptions() Options {
	return defaultOptions
}
