package service

import "errors"

var (
	// ErrPassAborted wraps scan-phase failures: the pass produced no applied
	// actions and no sync records were touched.
	ErrPassAborted = errors.New("sync pass aborted")

	// ErrSyncItemFailed wraps a per-item apply failure inside a pass report.
	ErrSyncItemFailed = errors.New("sync item failed")

	// ErrNoSuchConflict is returned by Acknowledge for an item that is not
	// currently held.
	ErrNoSuchConflict = errors.New("no held conflict for item")
)
