package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type StructuredJSONConfig struct {
	Confluence struct {
		URL            string   `json:"url"`
		Username       string   `json:"username"`
		APIToken       string   `json:"api_token"`
		SpaceKey       string   `json:"space_key"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"confluence,omitempty"`

	Local struct {
		ContentDir     string `json:"content_dir"`
		AttachmentsDir string `json:"attachments_dir"`
		CacheDir       string `json:"cache_dir"`
	} `json:"local,omitempty"`

	Sync struct {
		Workers         int      `json:"workers"`
		Interval        Duration `json:"interval"`
		ConflictRetries int      `json:"conflict_retries"`
	} `json:"sync,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		Confluence: Confluence{
			URL:            jsonCfg.Confluence.URL,
			Username:       jsonCfg.Confluence.Username,
			APIToken:       jsonCfg.Confluence.APIToken,
			SpaceKey:       jsonCfg.Confluence.SpaceKey,
			RequestTimeout: time.Duration(jsonCfg.Confluence.RequestTimeout),
		},
		Local: Local{
			ContentDir:     jsonCfg.Local.ContentDir,
			AttachmentsDir: jsonCfg.Local.AttachmentsDir,
			CacheDir:       jsonCfg.Local.CacheDir,
		},
		Sync: Sync{
			Workers:         jsonCfg.Sync.Workers,
			Interval:        time.Duration(jsonCfg.Sync.Interval),
			ConflictRetries: jsonCfg.Sync.ConflictRetries,
		},
		JSONFilePath: "",
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
