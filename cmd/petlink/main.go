package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/ericfisherdev/petlink/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/petlink/internal/adapter/driven/tractive"
	httphandler "github.com/ericfisherdev/petlink/internal/adapter/driving/http"
	"github.com/ericfisherdev/petlink/internal/application"
	"github.com/ericfisherdev/petlink/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Install the process logger.
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"api_url", cfg.APIURL,
		"flow_ttl", cfg.FlowTTL,
		"auth_check_interval", cfg.AuthCheckInterval,
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", db.Path())

	// 5. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "version", version)

	// 6. Wire adapters.
	entryStore := sqliteadapter.NewEntryRepo(db, cfg.SecretKey)

	clientFactory, err := tractive.NewFactory(tractive.Options{
		BaseURL:  cfg.APIURL,
		ClientID: cfg.ClientID,
		Timeout:  cfg.HTTPTimeout,
		RetryMax: cfg.RetryMax,
	})
	if err != nil {
		return err
	}
	clients := clientFactory.AccountClientFactory()

	// 7. Create flow manager.
	flows := application.NewFlowManager(clients, entryStore, cfg.FlowTTL, logger.With("component", "flow"))

	// 8. Create and start auth monitor when enabled.
	var monitor *application.AuthMonitor
	if cfg.AuthMonitorEnabled() {
		monitor = application.NewAuthMonitor(clients, entryStore, cfg.AuthCheckInterval, logger.With("component", "auth_monitor"))
		go monitor.Start(ctx)
	} else {
		logger.Info("auth monitor disabled")
	}

	// 9. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(flows, entryStore, monitor, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Flow steps call the remote API, which may retry.
		WriteTimeout: cfg.HTTPTimeout*time.Duration(cfg.RetryMax+1) + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	logger.Info("petlink started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-srvErr:
		logger.Error("http server error", "error", err)
		stop()
	}

	// 11. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
