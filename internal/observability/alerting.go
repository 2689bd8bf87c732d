package observability

import (
	"fmt"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. A zero rate or latency
// disables that check.
type AlertThresholds struct {
	// MaxFetchFailureRate is the tolerated share of failed page fetches.
	MaxFetchFailureRate float64 `yaml:"max_fetch_failure_rate" json:"max_fetch_failure_rate"`
	// MinFetchAttempts avoids alerting on a handful of requests.
	MinFetchAttempts int `yaml:"min_fetch_attempts" json:"min_fetch_attempts"`
	// MaxPersistFailures is the number of failed saves tolerated.
	MaxPersistFailures int `yaml:"max_persist_failures" json:"max_persist_failures"`
	// SlowFetchMillis flags a high average page latency.
	SlowFetchMillis float64 `yaml:"slow_fetch_ms" json:"slow_fetch_ms"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxFetchFailureRate: 0.25,
		MinFetchAttempts:    4,
		MaxPersistFailures:  0,
		SlowFetchMillis:     2000,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate(since time.Time) ([]Alert, error)
}

type alertEngine struct {
	metrics    MetricsCalculator
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine that checks metrics computed from
// eventLog against thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		metrics:    NewMetricsCalculator(eventLog),
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns the alerts triggered by events at or after since, most
// severe first.
func (ae *alertEngine) Evaluate(since time.Time) ([]Alert, error) {
	m, err := ae.metrics.Calculate(since)
	if err != nil {
		return nil, fmt.Errorf("evaluating alerts: %w", err)
	}
	now := ae.now()
	t := ae.thresholds
	var alerts []Alert

	if m.PersistFailures > t.MaxPersistFailures {
		alerts = append(alerts, Alert{
			ID:          "persist-failures",
			Condition:   "annotations_not_saved",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d annotation saves failed; favorites and comments may be lost on exit", m.PersistFailures),
			TriggeredAt: now,
		})
	}

	attempts := m.PagesLoaded + m.InitialFetchFailures + m.LoadMoreFailures
	if t.MaxFetchFailureRate > 0 && attempts >= t.MinFetchAttempts && m.FetchFailureRate() > t.MaxFetchFailureRate {
		alerts = append(alerts, Alert{
			ID:          "fetch-failure-rate",
			Condition:   "fetch_failure_rate_high",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%.0f%% of %d page fetches failed", m.FetchFailureRate()*100, attempts),
			TriggeredAt: now,
		})
	}

	if t.SlowFetchMillis > 0 && m.PagesLoaded > 0 && m.AvgFetchMillis > t.SlowFetchMillis {
		alerts = append(alerts, Alert{
			ID:          "slow-fetch",
			Condition:   "fetch_latency_high",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("average page fetch took %.0fms", m.AvgFetchMillis),
			TriggeredAt: now,
		})
	}

	return alerts, nil
}
