// Package core contains the browsing logic for the Rick and Morty browser:
// annotation state, debounced search, incremental page accumulation, list
// assembly, and configuration.
package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// DefaultEndpoint is the public Rick and Morty GraphQL API.
const DefaultEndpoint = "https://rickandmortyapi.com/graphql"

// DefaultStorageKey namespaces persisted annotations.
const DefaultStorageKey = "rick-morty-storage"

var validKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ConfigurationManager loads and validates the .rmbconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(config interface{}) error
}

type viperConfigManager struct {
	// basePath is the directory where .rmbconfig resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .rmbconfig relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		API: models.APIConfig{
			Endpoint:   DefaultEndpoint,
			Timeout:    15 * time.Second,
			RateLimit:  5,
			Burst:      5,
			MaxRetries: 3,
		},
		SearchDebounce: DefaultSearchDebounce,
		Storage: models.StorageConfig{
			Backend: models.BackendFile,
			Key:     DefaultStorageKey,
			Watch:   true,
		},
		UI: models.UIConfig{
			HideDeletedInList: false,
			DefaultSort:       models.SortAsc,
		},
		EventLog: true,
	}
}

// LoadGlobalConfig reads .rmbconfig from the base path. Missing files and
// missing keys fall back to defaults. RMB_* environment variables override
// file values, e.g. RMB_API_ENDPOINT or RMB_STORAGE_BACKEND.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(".rmbconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("RMB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.endpoint", cfg.API.Endpoint)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.rate_limit", cfg.API.RateLimit)
	v.SetDefault("api.burst", cfg.API.Burst)
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("search.debounce", cfg.SearchDebounce)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.key", cfg.Storage.Key)
	v.SetDefault("storage.watch", cfg.Storage.Watch)
	v.SetDefault("ui.hide_deleted_in_list", cfg.UI.HideDeletedInList)
	v.SetDefault("ui.default_sort", string(cfg.UI.DefaultSort))
	v.SetDefault("observability.event_log", cfg.EventLog)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .rmbconfig: %w", err)
		}
	}

	cfg.API.Endpoint = v.GetString("api.endpoint")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.API.RateLimit = v.GetFloat64("api.rate_limit")
	cfg.API.Burst = v.GetInt("api.burst")
	cfg.API.MaxRetries = v.GetInt("api.max_retries")
	cfg.SearchDebounce = v.GetDuration("search.debounce")
	cfg.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	cfg.Storage.Key = v.GetString("storage.key")
	cfg.Storage.Watch = v.GetBool("storage.watch")
	cfg.UI.HideDeletedInList = v.GetBool("ui.hide_deleted_in_list")
	cfg.UI.DefaultSort = models.SortOrder(v.GetString("ui.default_sort"))
	cfg.EventLog = v.GetBool("observability.event_log")

	return cfg, nil
}

// ValidateConfig checks a *models.GlobalConfig for invalid values and
// reports every problem found.
func (cm *viperConfigManager) ValidateConfig(config interface{}) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}
	cfg, ok := config.(*models.GlobalConfig)
	if !ok {
		return fmt.Errorf("unsupported configuration type: %T", config)
	}
	return validateGlobalConfig(cfg)
}

var validBackends = map[string]bool{
	models.BackendFile:   true,
	models.BackendSQLite: true,
	models.BackendMemory: true,
}

func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	if u, err := url.Parse(cfg.API.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.endpoint %q is not an absolute URL", cfg.API.Endpoint))
	}
	if cfg.API.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("api.timeout must be positive, got %s", cfg.API.Timeout))
	}
	if cfg.API.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("api.rate_limit must be non-negative, got %g", cfg.API.RateLimit))
	}
	if cfg.API.RateLimit > 0 && cfg.API.Burst < 1 {
		errs = append(errs, fmt.Sprintf("api.burst must be at least 1, got %d", cfg.API.Burst))
	}
	if cfg.API.MaxRetries < 0 || cfg.API.MaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("api.max_retries %d is invalid, must be between 0 and 10", cfg.API.MaxRetries))
	}
	if cfg.SearchDebounce < 0 {
		errs = append(errs, fmt.Sprintf("search.debounce must be non-negative, got %s", cfg.SearchDebounce))
	}
	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf(
			"storage.backend %q is invalid, must be one of: file, sqlite, memory",
			cfg.Storage.Backend,
		))
	}
	if !validKeyPattern.MatchString(cfg.Storage.Key) {
		errs = append(errs, fmt.Sprintf(
			"storage.key %q is invalid, must match [A-Za-z0-9][A-Za-z0-9._-]{0,63}",
			cfg.Storage.Key,
		))
	}
	if !models.ValidSortOrder(string(cfg.UI.DefaultSort)) {
		errs = append(errs, fmt.Sprintf("ui.default_sort %q is invalid, must be asc or desc", cfg.UI.DefaultSort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
