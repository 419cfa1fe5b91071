package store

import "errors"

var (
	// ErrRecordNotFound is returned by StateStore.Get when no SyncRecord
	// exists for the requested local identifier.
	ErrRecordNotFound = errors.New("sync record not found")

	// ErrStateCorruption is returned at startup when the persisted state
	// document cannot be decoded or fails its internal consistency check.
	// It is fatal: the engine never auto-repairs or silently resets state.
	ErrStateCorruption = errors.New("state store corruption")
)
