package cache

import "errors"

var (
	// ErrNotFound is returned by Storage.Read for a missing key.
	ErrNotFound = errors.New("cache entry not found")

	// ErrStorage wraps failures to read, write or delete blobs.
	ErrStorage = errors.New("cache storage error")

	// ErrSerialization wraps blobs that cannot be encoded or decoded.
	ErrSerialization = errors.New("cache serialization error")

	// ErrRemoteFetch wraps failures of the activity source.
	ErrRemoteFetch = errors.New("remote fetch failed")
)
