package models

// ResolutionOutcome is the decision the conflict resolver makes for one
// BothChanged item. It is consumed by the orchestrator within the same pass
// and never persisted.
type ResolutionOutcome int

const (
	// KeepLocal applies the local content on top of the remote (push).
	KeepLocal ResolutionOutcome = iota
	// KeepRemote applies the remote content on top of the local copy (pull).
	KeepRemote
	// Merge combines both sides. Reserved: the deterministic policy never
	// emits it; an interactive override layer may.
	Merge
	// Skip applies nothing. The item is flagged and excluded from auto-apply
	// until an operator acknowledges it.
	Skip
)

// String returns a human-readable representation of the outcome.
func (o ResolutionOutcome) String() string {
	switch o {
	case KeepLocal:
		return "keep-local"
	case KeepRemote:
		return "keep-remote"
	case Merge:
		return "merge"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// ResolutionReason explains why the resolver chose an outcome.
type ResolutionReason string

const (
	// ReasonRemoteNewer: the remote version number is strictly greater than
	// the last-synced version, so the remote edit is authoritative.
	ReasonRemoteNewer ResolutionReason = "remote_newer"
	// ReasonRemoteUnchanged: the remote version and content still match the
	// last-synced state, so the detected "remote change" was a false
	// positive and the local edit wins.
	ReasonRemoteUnchanged ResolutionReason = "remote_unchanged"
	// ReasonLocalEditOverRemoteDelete: the remote page was deleted while the
	// local copy was edited; the local edit survives and recreates the page.
	ReasonLocalEditOverRemoteDelete ResolutionReason = "local_edit_over_remote_delete"
	// ReasonRemoteEditOverLocalDelete: the local file was deleted while the
	// remote page was edited; the remote edit survives and is pulled back.
	ReasonRemoteEditOverLocalDelete ResolutionReason = "remote_edit_over_local_delete"
	// ReasonAmbiguousConflict: equal version numbers with diverged content
	// (or a regressed remote version); no side is authoritative, so nothing
	// is overwritten and the item is surfaced for manual handling.
	ReasonAmbiguousConflict ResolutionReason = "ambiguous_conflict"
)

// ConflictResolution is the resolver's decision for one conflicted item.
type ConflictResolution struct {
	Outcome ResolutionOutcome
	Reason  ResolutionReason
}
