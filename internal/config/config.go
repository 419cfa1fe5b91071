// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container for the
// go-confluence-sync application. It aggregates all sub-configurations and is
// populated by merging values from environment variables, command-line flags,
// and an optional JSON file.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type StructuredConfig struct {
	// Confluence holds the remote service endpoint and credentials.
	Confluence Confluence `envPrefix:"CONFLUENCE_"`

	// Local holds the local directory layout (content, attachments, cache).
	Local Local `envPrefix:"LOCAL_"`

	// Sync holds sync-engine tuning: worker count, watch interval, retry
	// bounds.
	Sync Sync `envPrefix:"SYNC_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Confluence holds connection settings for the remote Confluence instance.
type Confluence struct {
	// URL is the base URL of the Confluence site
	// (e.g. "https://example.atlassian.net").
	// Env: CONFLUENCE_URL
	URL string `env:"URL"`

	// Username is the account name used for API authentication.
	// Env: CONFLUENCE_USERNAME
	Username string `env:"USERNAME"`

	// APIToken is the API token paired with Username. Must be kept
	// confidential.
	// Env: CONFLUENCE_API_TOKEN
	APIToken string `env:"API_TOKEN"`

	// SpaceKey identifies the space whose pages are synchronized.
	// Env: CONFLUENCE_SPACE_KEY
	SpaceKey string `env:"SPACE_KEY"`

	// RequestTimeout is the per-request deadline for outbound API calls
	// (e.g. "30s"). A timed-out call is a transient failure and is retried
	// at the adapter boundary.
	// Env: CONFLUENCE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Local holds the on-disk directory layout owned by the sync engine.
type Local struct {
	// ContentDir is where page content files (*.json) live.
	// Env: LOCAL_CONTENT_DIR
	ContentDir string `env:"CONTENT_DIR"`

	// AttachmentsDir is where page attachments are stored, one subdirectory
	// per page.
	// Env: LOCAL_ATTACHMENTS_DIR
	AttachmentsDir string `env:"ATTACHMENTS_DIR"`

	// CacheDir is where the sync-state document is persisted.
	// Env: LOCAL_CACHE_DIR
	CacheDir string `env:"CACHE_DIR"`
}

// Sync holds tuning knobs for the sync engine.
type Sync struct {
	// Workers bounds the number of items classified/applied concurrently
	// within one pass.
	// Env: SYNC_WORKERS
	Workers int `env:"WORKERS"`

	// Interval is the period between full passes in watch mode.
	// Env: SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL"`

	// ConflictRetries bounds how many times a rejected optimistic push is
	// re-fetched and re-resolved before the item is surfaced as failed.
	// Env: SYNC_CONFLICT_RETRIES
	ConflictRetries int `env:"CONFLICT_RETRIES"`
}

// Defaults applied after merging when the corresponding field is unset.
const (
	DefaultContentDir      = "./content"
	DefaultAttachmentsDir  = "./attachments"
	DefaultCacheDir        = "./cache"
	DefaultWorkers         = 4
	DefaultInterval        = 5 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultConflictRetries = 3
)

// GetStructuredConfig loads, merges, and validates the application
// configuration from all available sources in the following priority order
// (last source wins for non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
//
// Returns a fully populated *StructuredConfig or an error if any source
// fails to load or the final config fails validation.
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		build()
}

// applyDefaults fills unset optional fields. Required fields (endpoint and
// credentials) have no defaults and are enforced by validate.
func (cfg *StructuredConfig) applyDefaults() {
	if cfg.Local.ContentDir == "" {
		cfg.Local.ContentDir = DefaultContentDir
	}
	if cfg.Local.AttachmentsDir == "" {
		cfg.Local.AttachmentsDir = DefaultAttachmentsDir
	}
	if cfg.Local.CacheDir == "" {
		cfg.Local.CacheDir = DefaultCacheDir
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = DefaultWorkers
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = DefaultInterval
	}
	if cfg.Sync.ConflictRetries <= 0 {
		cfg.Sync.ConflictRetries = DefaultConflictRetries
	}
	if cfg.Confluence.RequestTimeout <= 0 {
		cfg.Confluence.RequestTimeout = DefaultRequestTimeout
	}
}
