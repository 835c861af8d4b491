package errors

// SearchError is a specialized error type for failures in the search path:
// per-segment aggregation, deadline enforcement, and result assembly.
type SearchError struct {
	*baseError

	// query is the number of hashes in the query that triggered the error.
	query int

	// segmentsScanned is how many segments had already been scanned when
	// the error occurred, useful for diagnosing which segment a timeout
	// landed on.
	segmentsScanned int
}

// NewSearchError creates a new search-specific error.
func NewSearchError(err error, code ErrorCode, msg string) *SearchError {
	return &SearchError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the SearchError type.
func (se *SearchError) WithMessage(msg string) *SearchError {
	se.baseError.WithMessage(msg)
	return se
}

// WithDetail adds contextual information while preserving the SearchError type.
func (se *SearchError) WithDetail(key string, value any) *SearchError {
	se.baseError.WithDetail(key, value)
	return se
}

// WithQuerySize records how many hashes the query contained.
func (se *SearchError) WithQuerySize(n int) *SearchError {
	se.query = n
	return se
}

// WithSegmentsScanned records how many segments were scanned before the
// error occurred.
func (se *SearchError) WithSegmentsScanned(n int) *SearchError {
	se.segmentsScanned = n
	return se
}

// QuerySize returns the number of hashes the query contained.
func (se *SearchError) QuerySize() int {
	return se.query
}

// SegmentsScanned returns how many segments were scanned before the error.
func (se *SearchError) SegmentsScanned() int {
	return se.segmentsScanned
}

// NewTimeoutError creates the canonical "search deadline exceeded" error.
func NewTimeoutError(querySize, segmentsScanned int) *SearchError {
	return NewSearchError(nil, ErrorCodeSearchTimeout, "search deadline exceeded").
		WithQuerySize(querySize).
		WithSegmentsScanned(segmentsScanned)
}
