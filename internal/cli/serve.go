package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/clara/internal/config"
	httpadapter "github.com/aretw0/clara/pkg/adapters/http"
	mcpadapter "github.com/aretw0/clara/pkg/adapters/mcp"
	"github.com/aretw0/clara/pkg/domain"
)

const shutdownTimeout = 5 * time.Second

// NewHTTPHandler builds the REST API of app.
func NewHTTPHandler(app *App, cfg *config.Config) (http.Handler, error) {
	opts := []httpadapter.Option{
		httpadapter.WithLogger(app.Logger),
		httpadapter.WithStreams(app.Streams),
	}
	if cfg.HTTP.Metrics {
		opts = append(opts, httpadapter.WithMetrics(app.Registry))
	}
	return httpadapter.NewHandler(app.Engine, opts...)
}

// Serve runs the HTTP API until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, app *App, cfg *config.Config) error {
	handler, err := NewHTTPHandler(app, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("HTTP server listening", "address", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		app.Logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		return nil
	}
}

// ServeMCP exposes app as an MCP server on the configured transport.
func ServeMCP(ctx context.Context, app *App, cfg *config.Config) error {
	srv := mcpadapter.NewServer(app.Engine, mcpadapter.WithServerLogger(app.Logger))
	switch cfg.MCP.Transport {
	case "stdio":
		app.Logger.Info("MCP server running on stdio")
		return srv.ServeStdio()
	case "sse":
		return srv.ServeSSE(ctx, cfg.MCP.Addr, cfg.MCP.BaseURL)
	}
	return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", cfg.MCP.Transport)
}

// ServeAbilities publishes a simulated provider as an MCP ability server, so
// engines can be pointed at it with providers.atlas / providers.common.
// An empty addr serves on stdio, anything else streamable HTTP under /mcp.
func ServeAbilities(ctx context.Context, kind domain.Provider, cfg *config.Config, addr string) error {
	p := simulatedProvider(kind, cfg)
	srv := mcpadapter.NewAbilityServer(kind, p, p.Abilities())
	if addr == "" {
		return mcpadapter.ServeAbilitiesStdio(srv)
	}
	return mcpadapter.ServeAbilitiesHTTP(ctx, srv, addr)
}
