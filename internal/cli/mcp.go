package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	rmbmcp "github.com/valter-silva-au/rmb/internal/mcp"
	"github.com/valter-silva-au/rmb/internal/observability"
)

var mcpMetricsAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the rmb MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rmb MCP server on stdio",
	Long: `Start the rmb MCP server on stdio transport.

The server exposes the browser as MCP tools: list_characters, get_character,
toggle_favorite, add_comment, list_comments, delete_comment,
soft_delete_character, restore_character, get_metrics and get_alerts.

With --metrics-addr, Prometheus metrics are served at /metrics on that
address while the server runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Browser == nil {
			return errNotInitialized
		}
		ctx := cmd.Context()

		if mcpMetricsAddr != "" {
			if Prom == nil {
				return fmt.Errorf("prometheus metrics not initialized")
			}
			stop, err := serveMetrics(ctx, mcpMetricsAddr, Prom)
			if err != nil {
				return err
			}
			defer stop()
		}

		srv := rmbmcp.NewServer(Browser, MetricsCalc, AlertEngine, appVersion)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

// serveMetrics listens on addr and serves /metrics until the returned stop
// function is called or ctx ends.
func serveMetrics(ctx context.Context, addr string, prom *observability.PromMetrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	// Non-fatal: a failed metrics listener leaves the MCP server running.
	go func() { _ = hs.Serve(ln) }()
	go func() {
		<-ctx.Done()
		_ = hs.Close()
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}, nil
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
