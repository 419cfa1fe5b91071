// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

// validate checks that the final merged [StructuredConfig] satisfies all
// application invariants before it is used at startup.
//
// Returns nil if the configuration is valid, or one of the sentinel errors
// from errors.go otherwise.
func (cfg *StructuredConfig) validate() error {
	c := cfg.Confluence
	if c.URL == "" || c.Username == "" || c.APIToken == "" || c.SpaceKey == "" {
		return ErrInvalidConfluenceConfigs
	}

	l := cfg.Local
	if l.ContentDir == "" || l.AttachmentsDir == "" || l.CacheDir == "" {
		return ErrInvalidLocalConfigs
	}

	if cfg.Sync.Workers <= 0 || cfg.Sync.Interval <= 0 || cfg.Sync.ConflictRetries <= 0 {
		return ErrInvalidSyncConfigs
	}

	return nil
}
