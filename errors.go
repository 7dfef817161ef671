package objcache

import "errors"

// Error kinds surfaced by the cache. Errors from the disk layer are
// returned wrapped with %w and otherwise unchanged, so errors.Is matches
// these kinds when the disk layer returned one of them; other disk errors
// are not mapped to ErrIO.
var (
	ErrObjectNotExist    = errors.New("objcache: object does not exist")
	ErrObjectExists      = errors.New("objcache: object already exists")
	ErrObjectNameTooLong = errors.New("objcache: object name too long")
	ErrNoDiskSpace       = errors.New("objcache: no disk space")
	ErrObjectTableFull   = errors.New("objcache: object table full")
	ErrIO                = errors.New("objcache: io error")
)
