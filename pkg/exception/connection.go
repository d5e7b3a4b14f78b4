package exception

import "errors"

var (
	ErrUnsupportedDriver = errors.New("store: unsupported driver")
	ErrRecordNotFound    = errors.New("store: record not found")
	ErrLockNotAcquired   = errors.New("lock: not acquired")
	ErrPublisherClosed   = errors.New("events: publisher closed")
)
