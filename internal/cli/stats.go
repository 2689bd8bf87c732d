package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/rmb/internal/mcp"
	"github.com/valter-silva-au/rmb/internal/observability"
)

var (
	statsJSON  bool
	statsSince string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display usage and fetch metrics",
	Long: `Display metrics derived from the event log: favorites, comments and
soft deletes made, pages fetched with their average latency, and failures.
Any triggered alerts are listed after the metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		since, err := mcp.ParseSince(strings.TrimSpace(statsSince), time.Now())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		m, err := MetricsCalc.Calculate(since)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}
		var alerts []observability.Alert
		if AlertEngine != nil {
			if alerts, err = AlertEngine.Evaluate(since); err != nil {
				return fmt.Errorf("evaluating alerts: %w", err)
			}
		}

		if statsJSON {
			return writeJSON(cmd, struct {
				*observability.Metrics
				FetchFailureRate float64               `json:"fetch_failure_rate"`
				Alerts           []observability.Alert `json:"alerts"`
			}{m, m.FetchFailureRate(), alerts})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Stats (since %s)\n\n", since.Format("2006-01-02 15:04"))
		rows := []struct {
			label string
			value any
		}{
			{"Events recorded:", m.EventCount},
			{"Favorites added:", m.FavoritesAdded},
			{"Favorites removed:", m.FavoritesRemoved},
			{"Comments added:", m.CommentsAdded},
			{"Comments deleted:", m.CommentsDeleted},
			{"Characters deleted:", m.CharactersDeleted},
			{"Characters restored:", m.CharactersRestored},
			{"Pages loaded:", m.PagesLoaded},
			{"Characters fetched:", m.CharactersFetched},
			{"Avg fetch time:", fmt.Sprintf("%.0fms", m.AvgFetchMillis)},
			{"Initial fetch errors:", m.InitialFetchFailures},
			{"Load more errors:", m.LoadMoreFailures},
			{"Save errors:", m.PersistFailures},
		}
		for _, r := range rows {
			fmt.Fprintf(out, "  %-24s %v\n", r.label, r.value)
		}
		if m.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", m.OldestEvent.Format(time.RFC3339))
		}
		if m.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", m.NewestEvent.Format(time.RFC3339))
		}

		if len(alerts) > 0 {
			fmt.Fprintf(out, "\n%d active alert(s):\n", len(alerts))
			for _, a := range alerts {
				fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(string(a.Severity)), a.Message)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output metrics as JSON")
	statsCmd.Flags().StringVar(&statsSince, "since", "7d", "Time window (e.g. 7d, 24h, 30m)")
	rootCmd.AddCommand(statsCmd)
}
