package feedfilter

import (
	"github.com/hazyhaar/feedfilter/internal/config"
)

// Config is the top-level feedfilter configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// FeedConfig describes the host feed page.
type FeedConfig = config.FeedConfig

// StorageConfig locates the SQLite database.
type StorageConfig = config.StorageConfig

// PrefsConfig routes the preference protocol.
type PrefsConfig = config.PrefsConfig

// JournalConfig controls the unknown-activity journal.
type JournalConfig = config.JournalConfig

// HTTPConfig controls the preference panel listener.
type HTTPConfig = config.HTTPConfig

// SinkConfig defines an event output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
