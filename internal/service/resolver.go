package service

import (
	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/models"
)

// conflictResolver is the concrete implementation of ConflictResolver.
// Resolution is a stateless decision over the item's observed state and its
// sync record; it performs no I/O.
type conflictResolver struct{}

// NewConflictResolver constructs a ConflictResolver ready for use.
func NewConflictResolver() ConflictResolver {
	return &conflictResolver{}
}

// Resolve implements ConflictResolver.
//
// The policy orders the two histories by the remote version number, which is
// the only monotonic clock both sides share:
//
//   - deletion never beats an edit: a remote delete under a local edit keeps
//     the local copy (and the push recreates the page), a local delete under
//     a remote edit keeps the remote copy (and the pull recreates the file);
//   - a remote version strictly ahead of the record is authoritative → the
//     remote copy wins and the local edit is discarded;
//   - a remote version still at the record with unchanged remote content
//     means the detected remote change was a false positive and only the
//     local side really moved → the local copy wins;
//   - anything else (same version with diverged content, or a regressed
//     version) cannot be ordered and is Skipped for operator review.
func (r *conflictResolver) Resolve(item models.Item, record models.SyncRecord) models.ConflictResolution {
	switch {
	case !item.RemoteExists && item.LocalExists:
		return models.ConflictResolution{Outcome: models.KeepLocal, Reason: models.ReasonLocalEditOverRemoteDelete}

	case !item.LocalExists && item.RemoteExists:
		return models.ConflictResolution{Outcome: models.KeepRemote, Reason: models.ReasonRemoteEditOverLocalDelete}

	case item.RemoteVersion > record.LastSyncedVersion:
		return models.ConflictResolution{Outcome: models.KeepRemote, Reason: models.ReasonRemoteNewer}

	case item.RemoteVersion == record.LastSyncedVersion && fingerprint.Equal(item.RemoteHash, record.LastSyncedHash):
		return models.ConflictResolution{Outcome: models.KeepLocal, Reason: models.ReasonRemoteUnchanged}

	default:
		return models.ConflictResolution{Outcome: models.Skip, Reason: models.ReasonAmbiguousConflict}
	}
}
