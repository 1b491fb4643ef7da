package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/httpapi"
	"github.com/mvp-joe/kernel-memory/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory nodes over HTTP",
	Long: `Start an HTTP API over the configured memory nodes.

Endpoints:
  GET    /health
  GET    /nodes
  POST   /search
  GET    /nodes/{node}/content/{id}
  PUT    /nodes/{node}/content/{id}
  DELETE /nodes/{node}/content/{id}
  GET    /metrics   (Prometheus)

Example:
  km serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9000", "listen address")
	serveCmd.Flags().StringSlice("allow-origin", nil, "CORS allowed origins (default: localhost)")
	v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	svc, done, err := openService(ctx, serviceOptions{pooled: true, metrics: m})
	if err != nil {
		return err
	}
	defer done()

	origins, _ := cmd.Flags().GetStringSlice("allow-origin")
	handler, err := httpapi.NewHandler(svc, httpapi.Options{
		Version:        Version,
		AllowedOrigins: origins,
		Metrics:        m,
		Logger:         appLog.Logger,
	})
	if err != nil {
		return err
	}

	cmd.PrintErrf("km serving on http://%s\n", settings.Addr)
	return httpapi.Serve(ctx, settings.Addr, handler, appLog.Logger)
}
