package storage

import "errors"

// ErrNotFound is returned when a requested card or profile does not
// exist. Callers distinguish it from other failures: the search path
// silently drops stale index hits that resolve to ErrNotFound, and the
// HTTP layer maps it to 404.
var ErrNotFound = errors.New("storage: not found")
