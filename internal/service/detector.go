package service

import (
	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/models"
)

// changeDetector is the concrete implementation of ChangeDetector.
// Classification is a purely in-memory comparison of one item's observed
// state against its sync record; no storage layer or logger is required.
type changeDetector struct{}

// NewChangeDetector constructs a ChangeDetector ready for use.
func NewChangeDetector() ChangeDetector {
	return &changeDetector{}
}

// Classify implements ChangeDetector.
//
// With a sync record the item is classified by which sides diverged from the
// recorded last-synced state:
//
//   - the local side changed when the file is gone or its fingerprint moved
//     away from LastSyncedHash;
//   - the remote side changed when the page is gone, its version moved away
//     from LastSyncedVersion, or its fingerprint moved away from
//     LastSyncedHash. The hash comparison matters even at an unchanged
//     version number: content drift without a version bump is the ambiguous
//     case the resolver must see, not something to paper over.
//
// A deletion on one side combined with an edit on the other is BothChanged,
// never a plain deletion: deletes only propagate when the surviving side is
// untouched.
//
// Without a record the item has never been synced, so whichever side exists
// defines the direction. When both sides exist with equal fingerprints the
// item is Unchanged and the caller may adopt it by creating the missing
// record; diverged fingerprints are BothChanged.
func (d *changeDetector) Classify(item models.Item, record models.SyncRecord, hasRecord bool) models.ChangeClassification {
	if !hasRecord {
		switch {
		case item.LocalExists && !item.RemoteExists:
			return models.LocalOnly
		case !item.LocalExists && item.RemoteExists:
			return models.RemoteOnly
		case item.LocalExists && item.RemoteExists:
			if fingerprint.Equal(item.Hash, item.RemoteHash) {
				return models.Unchanged
			}
			return models.BothChanged
		default:
			return models.Unchanged
		}
	}

	// Gone on both sides: the sides already agree, only the record is stale.
	// Classified as a local deletion so the apply step retires the record
	// (the remote delete it propagates is an idempotent no-op).
	if !item.LocalExists && !item.RemoteExists {
		return models.LocallyDeleted
	}

	localChanged := !item.LocalExists || !fingerprint.Equal(item.Hash, record.LastSyncedHash)
	remoteChanged := !item.RemoteExists ||
		item.RemoteVersion != record.LastSyncedVersion ||
		!fingerprint.Equal(item.RemoteHash, record.LastSyncedHash)

	switch {
	case localChanged && remoteChanged:
		return models.BothChanged
	case localChanged:
		if !item.LocalExists {
			return models.LocallyDeleted
		}
		return models.LocalOnly
	case remoteChanged:
		if !item.RemoteExists {
			return models.RemotelyDeleted
		}
		return models.RemoteOnly
	default:
		return models.Unchanged
	}
}
