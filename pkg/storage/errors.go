package storage

import "errors"

// ErrUnavailable reports that the durable medium is unreachable or a
// write to it failed. The store never retries internally; retry policy
// belongs to the caller.
var ErrUnavailable = errors.New("storage unavailable")
