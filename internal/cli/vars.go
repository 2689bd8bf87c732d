package cli

import (
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Browser *core.Browser
	Store   core.AnnotationStore
	Fetcher core.CharacterFetcher
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Prom        *observability.PromMetrics
)

// InitErr holds a non-fatal initialization problem (for example unreadable
// annotations) that commands report as a warning.
var InitErr error
