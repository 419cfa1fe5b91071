// Package store owns everything the sync engine persists locally: the
// sync-state document (SyncRecords plus the bookkeeping that travels with
// them) and the page/attachment content files.
//
// Both stores follow the same durability rule: every mutation is committed by
// writing to a temporary file and atomically renaming it over the target, so
// a crash mid-write leaves either the old or the new state, never a corrupted
// hybrid.
package store

import (
	"time"

	"github.com/MKhiriev/go-confluence-sync/models"
)

// StateStore is the persisted mapping from local identifier to SyncRecord,
// together with the bookkeeping the engine needs across passes: the
// localID↔remoteID companion map, ambiguous-conflict flags, locally-deleted
// page tracking, and the failed-attachment backoff list.
//
// All methods are safe for concurrent use; a reader never observes a
// partially written record. An unreadable or inconsistent document at
// startup surfaces as [ErrStateCorruption]; the engine fails fast rather
// than silently resetting.
type StateStore interface {
	// Get returns the record for localID or ErrRecordNotFound.
	Get(localID string) (models.SyncRecord, error)

	// Put upserts a record and persists the store.
	Put(record models.SyncRecord) error

	// Delete removes the record for localID (no-op if absent) and persists
	// the store.
	Delete(localID string) error

	// List returns all records ordered by local identifier.
	List() []models.SyncRecord

	// MarkConflict flags localID as an unresolved ambiguous conflict.
	// Flagged items are excluded from auto-apply until acknowledged.
	MarkConflict(localID string, reason string) error

	// ClearConflict acknowledges and removes the conflict flag for localID.
	ClearConflict(localID string) error

	// Conflicts returns the currently flagged items keyed by local
	// identifier, with the recorded reason as value.
	Conflicts() map[string]string

	// MarkPageDeleted remembers that the page with remoteID was deleted
	// locally, so a later pull does not resurrect it.
	MarkPageDeleted(remoteID string) error

	// ClearPageDeleted forgets a deletion, typically after the page was
	// recreated by a push.
	ClearPageDeleted(remoteID string) error

	// IsPageDeleted reports whether remoteID is remembered as deleted.
	IsPageDeleted(remoteID string) bool

	// MarkAttachmentFailed records a failed download of the named attachment.
	MarkAttachmentFailed(name string) error

	// ClearAttachmentFailed removes the failure history of the named
	// attachment after a successful download.
	ClearAttachmentFailed(name string) error

	// ShouldSkipAttachment reports whether the named attachment has failed
	// repeatedly in the recent past and should not be retried yet.
	ShouldSkipAttachment(name string) bool
}

// ContentStore is the filesystem capability consumed by the sync engine:
// page content files under the content directory and attachment files under
// the attachments directory (one subdirectory per page).
type ContentStore interface {
	// List enumerates page content files. The local identifier is the file
	// stem (filename without the .json extension).
	List() ([]models.LocalFile, error)

	// Read returns the content and modification time of the page file.
	Read(localID string) ([]byte, time.Time, error)

	// Write atomically replaces the page file with content.
	Write(localID string, content []byte) error

	// Remove deletes the page file. Removing an absent file is not an error.
	Remove(localID string) error

	// Exists reports whether a page file is present.
	Exists(localID string) bool

	// ListAttachments enumerates attachment filenames stored for localID.
	ListAttachments(localID string) ([]string, error)

	// ReadAttachment returns one stored attachment's bytes.
	ReadAttachment(localID string, name string) ([]byte, error)

	// WriteAttachment atomically writes one attachment file.
	WriteAttachment(localID string, name string, content []byte) error
}
