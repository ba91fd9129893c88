// Package config loads the application configuration from
// ~/.chatloom/config.yaml, with environment overrides and defaults for
// everything, so chatloom runs with no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrida/chatloom/internal/mergelog"
	"github.com/nerrida/chatloom/internal/mux"
	"github.com/nerrida/chatloom/internal/window"
)

// Source kinds understood by the source factory.
const (
	KindSim     = "sim"
	KindRelay   = "relay"
	KindTwitch  = "twitch"
	KindWSRelay = "wsrelay"
)

// Config holds the application configuration.
type Config struct {
	// Sources to follow. Empty falls back to one simulated source so a
	// bare install still shows a feed.
	Sources []SourceConfig `yaml:"sources"`

	// RelayURL is the base URL of the HTTP scraping relay.
	RelayURL string `yaml:"relay_url"`

	// Engine tunables. Zero means default.
	ContentPollIntervalMs   int `yaml:"content_poll_interval_ms"`
	MetadataPollIntervalMs  int `yaml:"metadata_poll_interval_ms"`
	PruneThreshold          int `yaml:"prune_threshold"`
	PruneTarget             int `yaml:"prune_target"`
	RecentIDSampleSize      int `yaml:"recent_id_sample_size"`
	PageSize                int `yaml:"page_size"`
	FollowDistanceThreshold int `yaml:"follow_distance_threshold"`

	// ListenAddr enables the /metrics + /healthz endpoint when set.
	ListenAddr string `yaml:"listen_addr"`

	// RecordPath enables the transcript recorder when set.
	RecordPath string `yaml:"record_path"`

	// EventsPath enables the JSONL event trail when set.
	EventsPath string `yaml:"events_path"`

	LogLevel string `yaml:"log_level"`
}

// SourceConfig describes one source to follow. ID doubles as the
// kind-specific name: the Twitch channel, the relay video id, the
// websocket room, or the simulator label.
type SourceConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// URL overrides the websocket relay endpoint for wsrelay sources.
	URL string `yaml:"url,omitempty"`

	// Seed fixes the simulator's stream for sim sources.
	Seed int64 `yaml:"seed,omitempty"`
}

// StateDir returns the per-user state directory.
func StateDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatloom")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(StateDir(), "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

// Load reads the config file at path (DefaultPath if empty), applies
// environment overrides and defaults, and validates. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run on defaults.
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path (DefaultPath if empty), creating the
// state directory as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHATLOOM_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv("CHATLOOM_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CHATLOOM_RECORD_PATH"); v != "" {
		c.RecordPath = v
	}
	if v := os.Getenv("CHATLOOM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CHATLOOM_SOURCES"); v != "" {
		if sources := ParseSourceList(v); len(sources) > 0 {
			c.Sources = sources
		}
	}
}

func (c *Config) fillDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = []SourceConfig{{ID: "demo", Kind: KindSim}}
	}
	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = KindRelay
		}
	}
	if c.RelayURL == "" {
		c.RelayURL = "http://127.0.0.1:8177"
	}
	if c.ContentPollIntervalMs == 0 {
		c.ContentPollIntervalMs = int(mux.DefaultContentInterval / time.Millisecond)
	}
	if c.MetadataPollIntervalMs == 0 {
		c.MetadataPollIntervalMs = int(mux.DefaultMetadataInterval / time.Millisecond)
	}
	if c.PruneThreshold == 0 {
		c.PruneThreshold = mergelog.DefaultPruneThreshold
	}
	if c.PruneTarget == 0 {
		c.PruneTarget = mergelog.DefaultPruneTarget
	}
	if c.RecentIDSampleSize == 0 {
		c.RecentIDSampleSize = mux.DefaultRecentIDSample
	}
	if c.PageSize == 0 {
		c.PageSize = mux.DefaultPageSize
	}
	if c.FollowDistanceThreshold == 0 {
		c.FollowDistanceThreshold = window.DefaultFollowDistance
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first problem it finds. pruneTarget above
// pruneThreshold is tolerated; the merge log bounds by the larger one.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		switch s.Kind {
		case KindSim, KindRelay, KindTwitch, KindWSRelay:
		default:
			return fmt.Errorf("sources[%d].kind %q is not one of sim, relay, twitch, wsrelay", i, s.Kind)
		}
		if s.Kind == KindWSRelay && s.URL == "" {
			return fmt.Errorf("sources[%d].url is required for wsrelay sources", i)
		}
	}
	if c.ContentPollIntervalMs <= 0 {
		return fmt.Errorf("content_poll_interval_ms must be positive")
	}
	if c.MetadataPollIntervalMs <= 0 {
		return fmt.Errorf("metadata_poll_interval_ms must be positive")
	}
	if c.PruneThreshold <= 0 {
		return fmt.Errorf("prune_threshold must be positive")
	}
	if c.PruneTarget <= 0 {
		return fmt.Errorf("prune_target must be positive")
	}
	if c.RecentIDSampleSize < 0 {
		return fmt.Errorf("recent_id_sample_size must not be negative")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.FollowDistanceThreshold <= 0 {
		return fmt.Errorf("follow_distance_threshold must be positive")
	}
	return nil
}

// ContentInterval returns the content poll cadence as a duration.
func (c *Config) ContentInterval() time.Duration {
	return time.Duration(c.ContentPollIntervalMs) * time.Millisecond
}

// MetadataInterval returns the metadata poll cadence as a duration.
func (c *Config) MetadataInterval() time.Duration {
	return time.Duration(c.MetadataPollIntervalMs) * time.Millisecond
}

// ParseSourceList parses a comma-separated list of sources in
// "kind:id" form; a bare id means a relay source. Used for the
// CHATLOOM_SOURCES override and the -sources flag.
func ParseSourceList(list string) []SourceConfig {
	var out []SourceConfig
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, id, found := strings.Cut(part, ":")
		if !found {
			out = append(out, SourceConfig{ID: part, Kind: KindRelay})
			continue
		}
		out = append(out, SourceConfig{ID: strings.TrimSpace(id), Kind: strings.TrimSpace(kind)})
	}
	return out
}
