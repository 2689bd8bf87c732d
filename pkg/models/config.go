package models

import "time"

// Storage backends accepted by storage.backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// APIConfig configures the remote character query client.
type APIConfig struct {
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit  float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst      int           `yaml:"burst" mapstructure:"burst"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// StorageConfig selects and configures the annotation persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Key is the namespaced key the persisted annotations live under.
	Key   string `yaml:"key" mapstructure:"key"`
	Watch bool   `yaml:"watch" mapstructure:"watch"`
}

// UIConfig holds presentation defaults.
type UIConfig struct {
	HideDeletedInList bool      `yaml:"hide_deleted_in_list" mapstructure:"hide_deleted_in_list"`
	DefaultSort       SortOrder `yaml:"default_sort" mapstructure:"default_sort"`
}

// GlobalConfig holds system-wide settings read from .rmbconfig via Viper.
type GlobalConfig struct {
	API            APIConfig     `yaml:"api" mapstructure:"api"`
	SearchDebounce time.Duration `yaml:"search_debounce" mapstructure:"search_debounce"`
	Storage        StorageConfig `yaml:"storage" mapstructure:"storage"`
	UI             UIConfig      `yaml:"ui" mapstructure:"ui"`
	EventLog       bool          `yaml:"event_log" mapstructure:"event_log"`
}
