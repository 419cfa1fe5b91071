package models

import "time"

// SyncRecord is the persisted record of the last known-synchronized state of
// one item. It is created on the first successful sync, updated after every
// successful push or pull, and removed when the item is deleted on both sides.
type SyncRecord struct {
	LocalID           string    `json:"local_id"`
	RemoteID          string    `json:"remote_id"`
	LastSyncedHash    string    `json:"last_synced_hash"`
	LastSyncedVersion int64     `json:"last_synced_version"`
	LastSyncedAt      time.Time `json:"last_synced_at"`
}

// RemotePageState is the lightweight remote descriptor returned by the remote
// store's list operation. Hash is the fingerprint of the page's content body,
// computed locally from the fetched storage representation.
type RemotePageState struct {
	RemoteID string `json:"remote_id"`
	Title    string `json:"title"`
	Version  int64  `json:"version"`
	Hash     string `json:"hash"`
}

// RemotePage is a full remote page as returned by the remote store's get
// operation. Body is the storage-representation content value.
type RemotePage struct {
	RemoteID string `json:"remote_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Version  int64  `json:"version"`
}

// Attachment describes one remote page attachment.
type Attachment struct {
	ID           string `json:"id"`
	PageID       string `json:"page_id"`
	Title        string `json:"title"`
	MediaType    string `json:"media_type"`
	DownloadLink string `json:"download_link"`
}
