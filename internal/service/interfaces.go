// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package service contains the sync engine: change detection, conflict
// resolution, and the pass orchestrator that drives local and remote stores
// toward a common state.
package service

import (
	"context"
	"time"

	"github.com/MKhiriev/go-confluence-sync/models"
)

// Direction restricts which way a sync pass is allowed to move content.
type Direction int

const (
	// DirectionBoth applies local and remote changes and resolves conflicts.
	DirectionBoth Direction = iota
	// DirectionPush applies local changes to the remote only; items needing
	// a pull or conflict resolution are skipped.
	DirectionPush
	// DirectionPull applies remote changes locally only; items needing a
	// push or conflict resolution are skipped.
	DirectionPull
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionBoth:
		return "sync"
	case DirectionPush:
		return "push"
	case DirectionPull:
		return "pull"
	default:
		return "unknown"
	}
}

// ChangeDetector classifies one item by comparing its observed local and
// remote state against the last-synced record. Detection is a pure function
// of its inputs.
type ChangeDetector interface {
	Classify(item models.Item, record models.SyncRecord, hasRecord bool) models.ChangeClassification
}

// ConflictResolver decides the winner for an item classified as BothChanged.
// The returned resolution is deterministic for a given item and record.
type ConflictResolver interface {
	Resolve(item models.Item, record models.SyncRecord) models.ConflictResolution
}

// Syncer runs sync passes over the configured content directory and space.
type Syncer interface {
	// RunPass executes one complete pass: scan both sides, classify every
	// item, resolve conflicts, apply the decided actions, and commit updated
	// sync records. Per-item failures are recorded in the report and do not
	// stop the pass; a failed scan aborts the whole pass with ErrPassAborted.
	RunPass(ctx context.Context, dir Direction) (models.PassReport, error)

	// Acknowledge clears the held-conflict flag for localID so the next pass
	// resolves it again. Returns ErrNoSuchConflict if the item is not held.
	Acknowledge(localID string) error

	// HeldConflicts returns the items currently held for operator review,
	// keyed by local identifier with the recorded reason as value.
	HeldConflicts() map[string]string
}

// SyncJob runs the watch daemon: periodic passes on a ticker plus debounced
// passes triggered by filesystem events.
type SyncJob interface {
	// Start launches the background loop. It stops any previously running
	// job first. The loop exits when ctx is cancelled or Stop is called.
	Start(ctx context.Context, interval, debounce time.Duration)

	// Stop cancels the background loop and blocks until it has exited. Safe
	// to call when the job is not running.
	Stop()
}
