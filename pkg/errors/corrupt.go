package errors

// CorruptIndexError is a specialized error type for structural invariant
// violations discovered while reading a segment: bad magic, a checksum
// mismatch, a block whose encoded entries don't agree with the block
// index, or a doc table that isn't correctly ordered.
type CorruptIndexError struct {
	*baseError

	segmentId uint32
	blockId   int
	offset    int64
}

// NewCorruptIndexError creates a new corruption-specific error.
func NewCorruptIndexError(err error, code ErrorCode, msg string) *CorruptIndexError {
	return &CorruptIndexError{baseError: NewBaseError(err, code, msg), blockId: -1}
}

// WithMessage updates the error message while preserving the CorruptIndexError type.
func (ce *CorruptIndexError) WithMessage(msg string) *CorruptIndexError {
	ce.baseError.WithMessage(msg)
	return ce
}

// WithDetail adds contextual information while preserving the CorruptIndexError type.
func (ce *CorruptIndexError) WithDetail(key string, value any) *CorruptIndexError {
	ce.baseError.WithDetail(key, value)
	return ce
}

// WithSegmentId records which segment the corruption was found in.
func (ce *CorruptIndexError) WithSegmentId(id uint32) *CorruptIndexError {
	ce.segmentId = id
	return ce
}

// WithBlockId records which block within the segment was corrupt.
func (ce *CorruptIndexError) WithBlockId(id int) *CorruptIndexError {
	ce.blockId = id
	return ce
}

// WithOffset records the byte offset at which the corruption was detected.
func (ce *CorruptIndexError) WithOffset(offset int64) *CorruptIndexError {
	ce.offset = offset
	return ce
}

// SegmentId returns the segment id the corruption was found in.
func (ce *CorruptIndexError) SegmentId() uint32 {
	return ce.segmentId
}

// BlockId returns the block id that was corrupt, or -1 if the corruption
// wasn't localized to one block.
func (ce *CorruptIndexError) BlockId() int {
	return ce.blockId
}

// Offset returns the byte offset at which the corruption was detected.
func (ce *CorruptIndexError) Offset() int64 {
	return ce.offset
}

// NewBlockFullError creates the non-fatal signal the block codec returns
// when an entry doesn't fit in the current block; callers seal the block
// and start a new one rather than treating this as corruption.
func NewBlockFullError() *CorruptIndexError {
	return NewCorruptIndexError(nil, ErrorCodeBlockFull, "block cannot hold another entry").
		WithBlockId(-1)
}

// NewCorruptBlockError creates an error for a block whose payload doesn't
// decode cleanly: a varint ran past the block end, the declared item count
// didn't fit, or the first decoded hash didn't match the block index.
func NewCorruptBlockError(segmentId uint32, blockId int, reason string) *CorruptIndexError {
	return NewCorruptIndexError(nil, ErrorCodeCorruptBlock, "corrupt posting block").
		WithSegmentId(segmentId).
		WithBlockId(blockId).
		WithDetail("reason", reason)
}

// NewBadMagicError creates an error for a segment file whose header magic
// doesn't match the expected constant.
func NewBadMagicError(segmentId uint32, got uint32) *CorruptIndexError {
	return NewCorruptIndexError(nil, ErrorCodeIndexCorrupted, "segment header magic mismatch").
		WithSegmentId(segmentId).
		WithDetail("got", got)
}

// NewChecksumMismatchError creates an error for an IndexInfo revision file
// whose trailing crc32 doesn't match its contents.
func NewChecksumMismatchError(revision uint64) *CorruptIndexError {
	return NewCorruptIndexError(nil, ErrorCodeIndexCorrupted, "index info checksum mismatch").
		WithDetail("revision", revision)
}
