package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-url confluence base URL
//	-user confluence account name
//	-token confluence API token
//	-space confluence space key
//	-content-dir local page content directory
//	-attachments-dir local attachments directory
//	-cache-dir sync-state cache directory
//	-workers concurrent items per pass
//	-interval full-pass period in watch mode (e.g., "5m")
//	-conflict-retries optimistic-push retry bound
//	-request-timeout remote request timeout (e.g., "30s", "1m")
//	-c/-config json file path with configs
func ParseFlags() *StructuredConfig {
	var baseURL string
	var username string
	var apiToken string
	var spaceKey string
	var contentDir string
	var attachmentsDir string
	var cacheDir string
	var workers int
	var interval time.Duration
	var conflictRetries int
	var requestTimeout time.Duration
	var jsonConfigPath string

	flag.StringVar(&baseURL, "url", "", "Confluence base URL")
	flag.StringVar(&username, "user", "", "Confluence account name")
	flag.StringVar(&apiToken, "token", "", "Confluence API token")
	flag.StringVar(&spaceKey, "space", "", "Confluence space key")
	flag.StringVar(&contentDir, "content-dir", "", "Local page content directory")
	flag.StringVar(&attachmentsDir, "attachments-dir", "", "Local attachments directory")
	flag.StringVar(&cacheDir, "cache-dir", "", "Sync-state cache directory")
	flag.IntVar(&workers, "workers", 0, "Concurrent items per pass")
	flag.DurationVar(&interval, "interval", 0, "Full-pass period in watch mode (e.g., 5m)")
	flag.IntVar(&conflictRetries, "conflict-retries", 0, "Optimistic-push retry bound")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Remote request timeout (e.g., 30s, 1m)")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")

	flag.Parse()

	return &StructuredConfig{
		Confluence: Confluence{
			URL:            baseURL,
			Username:       username,
			APIToken:       apiToken,
			SpaceKey:       spaceKey,
			RequestTimeout: requestTimeout,
		},
		Local: Local{
			ContentDir:     contentDir,
			AttachmentsDir: attachmentsDir,
			CacheDir:       cacheDir,
		},
		Sync: Sync{
			Workers:         workers,
			Interval:        interval,
			ConflictRetries: conflictRetries,
		},
		JSONFilePath: jsonConfigPath,
	}
}
