// Package internal provides the App struct that wires all components of the
// Rick and Morty browser together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/rmb/internal/cli"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/internal/integration"
	"github.com/valter-silva-au/rmb/internal/observability"
	"github.com/valter-silva-au/rmb/internal/storage"
	"github.com/valter-silva-au/rmb/pkg/models"
)

// ConfigFileName marks a base path directory.
const ConfigFileName = ".rmbconfig"

// EventLogFileName is the JSONL event log inside the base path.
const EventLogFileName = ".rmb_events.jsonl"

// App holds all service dependencies of the browser.
type App struct {
	BasePath string
	Config   *models.GlobalConfig

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Repo storage.AnnotationRepository

	// Core services
	Store   core.AnnotationStore
	Browser *core.Browser
	Fetcher integration.RickMortyClient

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Prom        *observability.PromMetrics

	// InitErr is the first non-fatal initialization problem.
	InitErr error

	stopWatch context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewApp creates and wires all components. basePath is the directory where
// annotations, the event log and .rmbconfig live.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}
	ctx, cancel := context.WithCancel(context.Background())
	app.stopWatch = cancel

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err == nil {
		err = app.ConfigMgr.ValidateConfig(cfg)
	}
	if err != nil {
		// Non-fatal: run on defaults and report the broken config.
		app.notice(fmt.Errorf("using default configuration: %w", err))
		cfg = core.DefaultGlobalConfig()
	}
	app.Config = cfg

	// --- Storage layer ---
	app.Repo, err = storage.Open(ctx, basePath, cfg.Storage)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening %s annotation storage: %w", cfg.Storage.Backend, err)
	}

	// --- Observability ---
	app.Prom = observability.NewPromMetrics()
	if cfg.EventLog {
		app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFileName))
		if err != nil {
			// Non-fatal: keep this session's events in memory.
			app.notice(fmt.Errorf("event log disabled: %w", err))
			app.EventLog = nil
		}
	}
	if app.EventLog == nil {
		app.EventLog = observability.NewMemoryEventLog()
	}
	app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds())
	app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	evtAdapter := &eventLogAdapter{log: app.EventLog, prom: app.Prom, now: time.Now}

	// --- Integration services ---
	app.Fetcher = integration.NewRickMortyClient(integration.RickMortyConfig{
		Endpoint:   cfg.API.Endpoint,
		Timeout:    cfg.API.Timeout,
		RateLimit:  cfg.API.RateLimit,
		Burst:      cfg.API.Burst,
		MaxRetries: cfg.API.MaxRetries,
		UserAgent:  "rmb/" + cli.Version(),
	})

	// --- Core services ---
	// ResetFilters restores these, so a configured sort outlives a reset.
	defaults := models.DefaultFilters()
	if cfg.UI.DefaultSort != "" {
		defaults.SortOrder = cfg.UI.DefaultSort
	}
	app.Store = core.NewAnnotationStore(core.AnnotationStoreOpts{
		Persister:      app.Repo,
		EventLogger:    evtAdapter,
		DefaultFilters: &defaults,
	})
	if err := app.Store.Load(); err != nil {
		// Non-fatal: start empty, the next successful save repairs the file.
		app.notice(fmt.Errorf("loading annotations: %w", err))
	}
	app.Prom.SetFavorites(len(app.Store.Favorites()))

	app.Browser = core.NewBrowser(app.Store, app.Fetcher, core.BrowserOpts{
		SearchDebounce: cfg.SearchDebounce,
		Assemble:       core.AssembleOptions{HideDeleted: cfg.UI.HideDeletedInList},
		EventLogger:    evtAdapter,
	})

	// --- Cross-process sync ---
	if cfg.Storage.Watch && cfg.Storage.Backend == models.BackendFile {
		store := app.Store
		err := storage.Watch(ctx, app.Repo.Location(), func() {
			_ = store.Load() // Non-fatal: a torn write is followed by another event.
		}, nil)
		if err != nil {
			app.notice(fmt.Errorf("watching annotations: %w", err))
		}
	}

	// --- Wire CLI package-level variables ---
	cli.Browser = app.Browser
	cli.Store = app.Store
	cli.Fetcher = app.Fetcher

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Prom = app.Prom
	cli.InitErr = app.InitErr

	return app, nil
}

func (a *App) notice(err error) {
	if a.InitErr == nil {
		a.InitErr = err
	}
}

// Close stops the watcher and debouncer and releases the storage and event
// log handles. It is safe to call Close more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
		}
		if a.Browser != nil {
			a.Browser.Close()
		}
		if a.Repo != nil {
			if err := a.Repo.Close(); err != nil {
				a.closeErr = fmt.Errorf("closing annotation storage: %w", err)
			}
		}
		if a.EventLog != nil {
			if err := a.EventLog.Close(); err != nil && a.closeErr == nil {
				a.closeErr = fmt.Errorf("closing event log: %w", err)
			}
		}
	})
	return a.closeErr
}

// ResolveBasePath determines the data directory. It checks the RMB_HOME
// env var, then walks up from the current directory looking for
// .rmbconfig, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("RMB_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// eventLogAdapter adapts the observability event log and Prometheus
// collectors to core.EventLogger.
type eventLogAdapter struct {
	log  observability.EventLog
	prom *observability.PromMetrics
	now  func() time.Time
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	if a.prom != nil {
		a.prom.Observe(eventType, data)
	}
	if a.log == nil {
		return nil
	}
	return a.log.Write(observability.NewEvent(a.now(), eventType, data))
}
