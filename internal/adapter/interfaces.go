// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter provides transport-layer abstractions for communicating
// with the remote Confluence instance.
//
// The primary abstraction is [RemoteStore], which decouples the sync engine
// from the REST transport. Retry with bounded exponential backoff lives
// entirely at this boundary: callers receive either a definitive answer or
// one of the sentinel errors defined in errors.go ([ErrVersionConflict] for
// an optimistic-concurrency rejection, [ErrNotFound] for a 404-equivalent,
// [ErrRemoteUnavailable] once transient failures exhaust their retry budget)
// and can dispatch on them with [errors.Is].
package adapter

import (
	"context"

	"github.com/MKhiriev/go-confluence-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/remote_store_mock.go -package=mock

// RemoteStore defines the remote document-service capability consumed by the
// sync engine. Implementations are responsible for serialisation,
// authentication, pagination, retry of transient failures, and mapping
// transport-level errors to the sentinel values defined in this package.
type RemoteStore interface {
	// List returns lightweight descriptors for every current page in the
	// configured space. The content hash in each descriptor is the
	// fingerprint of the page's canonical content, computed from the fetched
	// storage bodies so it is directly comparable with local fingerprints.
	List(ctx context.Context) ([]models.RemotePageState, error)

	// Get fetches one page's full content and version by remote identifier.
	// Returns ErrNotFound if the page does not exist.
	Get(ctx context.Context, remoteID string) (models.RemotePage, error)

	// Create publishes a new page and returns its assigned remote identifier
	// and initial version.
	Create(ctx context.Context, title, body string) (models.RemotePageState, error)

	// Update replaces a page's content using expectedVersion as an
	// optimistic-concurrency precondition. Returns the new version on
	// success, ErrVersionConflict if another writer advanced the page first,
	// or ErrNotFound if the page is gone.
	Update(ctx context.Context, remoteID, title, body string, expectedVersion int64) (int64, error)

	// Delete removes a page. Deleting an already-deleted page is not an
	// error.
	Delete(ctx context.Context, remoteID string) error

	// ListAttachments returns the attachments of one page.
	ListAttachments(ctx context.Context, remoteID string) ([]models.Attachment, error)

	// DownloadAttachment fetches one attachment's bytes.
	DownloadAttachment(ctx context.Context, att models.Attachment) ([]byte, error)

	// UploadAttachment attaches a file to a page, replacing any attachment
	// with the same filename.
	UploadAttachment(ctx context.Context, remoteID, filename string, content []byte) error
}
