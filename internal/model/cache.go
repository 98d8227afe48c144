package model

import "time"

// Field width caps for cache records. The on-disk fields are one byte wider
// to guarantee a trailing NUL; longer values are silently truncated at write
// time.
const (
	MaxFilenameLen  = 255
	MaxReferenceLen = 31
	MaxSubmitterLen = 63
)

// CacheEntry records a single prior submission. Identity key is the filename
// only, not the full path or a content hash; the same filename in two
// directories resolves to one record.
type CacheEntry struct {
	SubmittedAt time.Time
	Filename    string
	Reference   string
	Submitter   string
}

// Truncated returns a copy with every field clamped to its on-disk cap.
func (e CacheEntry) Truncated() CacheEntry {
	e.Filename = truncate(e.Filename, MaxFilenameLen)
	e.Reference = truncate(e.Reference, MaxReferenceLen)
	e.Submitter = truncate(e.Submitter, MaxSubmitterLen)
	return e
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// DuplicateStatus is the outcome of a duplicate cache lookup.
type DuplicateStatus int

const (
	// StatusNotSubmitted means the filename has no recorded submission.
	StatusNotSubmitted DuplicateStatus = iota
	// StatusAlreadySubmitted means a prior submission exists; the result
	// carries the matching entry.
	StatusAlreadySubmitted
	// StatusCacheUnavailable means the cache has not been loaded; callers
	// may proceed with a warning.
	StatusCacheUnavailable
)

// DuplicateCheckResult carries the matching entry detail on a hit.
type DuplicateCheckResult struct {
	Status DuplicateStatus
	Entry  CacheEntry
}
