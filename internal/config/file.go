// Package config handles feedfilter configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level feedfilter configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Prefs   PrefsConfig   `yaml:"prefs"`
	Journal JournalConfig `yaml:"journal"`
	HTTP    HTTPConfig    `yaml:"http"`
	Sinks   []SinkConfig  `yaml:"sinks"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headful          bool     `yaml:"headful"`
	UserDataDir      string   `yaml:"user_data_dir"`
	Bin              string   `yaml:"bin"`
	Stealth          *bool    `yaml:"stealth"` // default true
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// FeedConfig describes the host feed.
type FeedConfig struct {
	URL               string        `yaml:"url"`
	Path              string        `yaml:"path"`
	ContainerSelector string        `yaml:"container_selector"`
	ActivitySelector  string        `yaml:"activity_selector"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ScrollInterval    time.Duration `yaml:"scroll_interval"`
	ScrollThreshold   float64       `yaml:"scroll_threshold"`
}

// StorageConfig locates the SQLite database. BusyTimeout bounds how long
// a write waits on another process holding the file.
type StorageConfig struct {
	DBPath      string        `yaml:"db_path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PrefsConfig routes the preference protocol. An empty Remote keeps the
// store in-process; otherwise it is an HTTP base URL serving /rpc.
//
// WatchInterval is how often a local store is polled for writes made by
// other processes; a negative value disables the watch.
type PrefsConfig struct {
	Remote        string        `yaml:"remote"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryBase     time.Duration `yaml:"retry_base"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// JournalConfig controls the unknown-activity journal.
type JournalConfig struct {
	Enabled    *bool `yaml:"enabled"` // default true
	MaxExcerpt int   `yaml:"max_excerpt"`
}

// HTTPConfig controls the preference panel listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// SinkConfig defines an event output backend.
type SinkConfig struct {
	Type   string `yaml:"type"`   // stdout | webhook
	URL    string `yaml:"url"`    // for webhook
	Markup bool   `yaml:"markup"` // stdout: keep the HTML of unknown items
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero field.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == nil {
		c.Browser.Stealth = boolPtr(true)
	}
	if c.Feed.URL == "" {
		c.Feed.URL = "https://www.linkedin.com/feed/"
	}
	if c.Feed.Path == "" {
		c.Feed.Path = "/feed/"
	}
	if c.Feed.ContainerSelector == "" {
		c.Feed.ContainerSelector = ".scaffold-layout__main"
	}
	if c.Feed.ActivitySelector == "" {
		c.Feed.ActivitySelector = "[data-urn^='urn:li:activity']"
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = 50 * time.Millisecond
	}
	if c.Feed.ScrollInterval <= 0 {
		c.Feed.ScrollInterval = 100 * time.Millisecond
	}
	if c.Feed.ScrollThreshold <= 0 {
		c.Feed.ScrollThreshold = 975
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "feedfilter.db"
	}
	if c.Storage.BusyTimeout <= 0 {
		c.Storage.BusyTimeout = 10 * time.Second
	}
	if c.Prefs.Timeout <= 0 {
		c.Prefs.Timeout = 5 * time.Second
	}
	if c.Prefs.RetryBase <= 0 {
		c.Prefs.RetryBase = 200 * time.Millisecond
	}
	if c.Prefs.WatchInterval == 0 {
		c.Prefs.WatchInterval = time.Second
	}
	if c.Journal.Enabled == nil {
		c.Journal.Enabled = boolPtr(true)
	}
	if c.Journal.MaxExcerpt <= 0 {
		c.Journal.MaxExcerpt = 280
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if c.Prefs.Retries < 0 {
		return fmt.Errorf("config: prefs.retries must not be negative")
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
