package models

import "time"

// PassState tracks the lifecycle of one sync pass.
type PassState int

const (
	Scanning PassState = iota
	Classifying
	Resolving
	Applying
	Committed
	Aborted
)

// String returns a human-readable representation of the pass state.
func (s PassState) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Classifying:
		return "classifying"
	case Resolving:
		return "resolving"
	case Applying:
		return "applying"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ItemAction names what the orchestrator did with one item during Applying.
type ItemAction string

const (
	ActionNone          ItemAction = "none"
	ActionAdopted       ItemAction = "adopted"
	ActionPushed        ItemAction = "pushed"
	ActionPulled        ItemAction = "pulled"
	ActionDeletedLocal  ItemAction = "deleted-local"
	ActionDeletedRemote ItemAction = "deleted-remote"
	ActionSkipped       ItemAction = "skipped"
	ActionHeld          ItemAction = "held"
)

// ItemResult is the per-item outcome of one pass.
type ItemResult struct {
	LocalID        string
	Classification ChangeClassification
	Action         ItemAction
	Err            error
}

// PassReport summarises one complete scan → classify → resolve → apply run.
// Per-item failures are collected here and never abort the pass; a pass-level
// failure leaves the report in the Aborted state.
type PassReport struct {
	PassID   string
	State    PassState
	Started  time.Time
	Finished time.Time
	Results  []ItemResult
}

// Failed returns the results of items whose apply step failed.
func (r *PassReport) Failed() []ItemResult {
	var failed []ItemResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
