package models

import "time"

// ChangeClassification is the per-item outcome of comparing current local and
// remote state against the last-synced SyncRecord. It is derived on every
// pass and never persisted.
type ChangeClassification int

const (
	// Unchanged means neither side diverged from the last-synced state.
	Unchanged ChangeClassification = iota
	// LocalOnly means only the local copy changed since the last sync.
	LocalOnly
	// RemoteOnly means only the remote page changed since the last sync.
	RemoteOnly
	// BothChanged means both sides diverged and the item needs conflict
	// resolution. A deletion on one side paired with an edit on the other is
	// also classified as BothChanged, never as a silent delete.
	BothChanged
	// LocallyDeleted means the local file is gone while a SyncRecord exists
	// and the remote page did not change since the last sync.
	LocallyDeleted
	// RemotelyDeleted means the remote page is gone (404) while a SyncRecord
	// exists and the local copy did not change since the last sync.
	RemotelyDeleted
)

// String returns a human-readable representation of the classification.
func (c ChangeClassification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case LocalOnly:
		return "local-only"
	case RemoteOnly:
		return "remote-only"
	case BothChanged:
		return "both-changed"
	case LocallyDeleted:
		return "locally-deleted"
	case RemotelyDeleted:
		return "remotely-deleted"
	default:
		return "unknown"
	}
}

// Item is one syncable unit (a page) as observed during a single sync pass.
// It merges the local filesystem view and the remote listing view of the same
// logical document; either side may be absent.
//
// RemoteID is immutable once assigned; LocalID is stable for the lifetime of
// the local file.
type Item struct {
	// LocalID identifies the local file (the file stem under the content dir).
	LocalID string
	// RemoteID is the remote page identifier; empty until the first push.
	RemoteID string
	// Title is the page title.
	Title string

	// Body is the current local content body in storage representation.
	// Empty when LocalExists is false or the content has not been loaded yet.
	Body string
	// Hash is the fingerprint of the local canonical content (title + body).
	Hash string
	// LocalModTime is the local file's modification timestamp.
	LocalModTime time.Time
	// LocalExists reports whether a local copy was found during scanning.
	LocalExists bool

	// RemoteVersion is the version number the remote reported during scanning.
	RemoteVersion int64
	// RemoteHash is the fingerprint of the remote content body.
	RemoteHash string
	// RemoteExists reports whether the remote page was found during scanning.
	RemoteExists bool
}

// LocalFile is a lightweight descriptor of one file under the local content
// directory, produced by the content store's enumeration.
type LocalFile struct {
	LocalID string
	ModTime time.Time
}
