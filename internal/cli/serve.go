package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/strata/internal/api"
	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/ui"
)

var (
	serveAddr      string
	serveLogFormat string
	serveInit      bool
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve collections over HTTP",
	Long: `Start the HTTP API.

Routes:
  GET    /healthz
  GET    /collections
  POST   /collections/{name}/ingest
  DELETE /collections/{name}
  POST   /ingest
  GET    /retrieve?q=<query>&collection=<name>&k=<n>

Examples:
  strata serve --addr :8383 --init`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "text", "log format: text, json or logfmt")
	serveCmd.Flags().BoolVar(&serveInit, "init", false, "ingest all pending sources before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := ui.SetFormat(serveLogFormat); err != nil {
		return err
	}

	cfg := config.Get()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveInit {
		if _, err := a.pipeline.InitAll(ctx, cfg.Ingest.SourceDir); err != nil {
			log.Warn("Initial ingestion skipped", "error", err)
		}
	}

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Registry:  a.registry,
			Pipeline:  a.pipeline,
			SourceDir: cfg.Ingest.SourceDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("HTTP API stopped")
	return nil
}
