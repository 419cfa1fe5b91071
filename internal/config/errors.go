package config

import "errors"

// Validation errors returned by [StructuredConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidConfluenceConfigs indicates missing or incomplete remote
	// settings (URL, username, API token or space key).
	ErrInvalidConfluenceConfigs = errors.New("invalid confluence configuration")
	// ErrInvalidLocalConfigs indicates invalid local directory settings.
	ErrInvalidLocalConfigs = errors.New("invalid local directory configuration")
	// ErrInvalidSyncConfigs indicates invalid sync-engine tuning
	// (for example, a negative worker count).
	ErrInvalidSyncConfigs = errors.New("invalid sync configuration")
)
