package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/fabtrack/internal/api"
	"github.com/rpggio/fabtrack/internal/config"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/mcp"
	"github.com/rpggio/fabtrack/internal/notify"
	"github.com/rpggio/fabtrack/internal/sqlite"
	"github.com/rpggio/fabtrack/internal/transport"
	"github.com/rpggio/fabtrack/internal/workflow"
)

var version = "dev"

// localActor is used when auth is disabled and for stdio.
var localActor = access.NewActor("local", "*")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	hub := notify.NewHub(logger)
	go hub.Run(ctx)
	bus := notify.NewBus(logger)
	bus.Subscribe("", hub.Broadcast)
	bus.Subscribe("", func(entries []audit.Entry) {
		for _, e := range entries {
			logger.Debug("audit committed", "entity_type", e.EntityType, "entity_id", e.EntityID, "seq", e.Seq, "action", e.Action, "actor", e.ActorID)
		}
	})

	engine := workflow.NewEngine(db, cat, bus, logger, workflow.Config{
		MaxRetries:      cfg.Engine.MaxRetries,
		ScanDedupWindow: cfg.Engine.ScanDedupWindow,
	})
	if err := engine.SyncCatalog(ctx); err != nil {
		return fmt.Errorf("sync catalog %s: %w", cat.Version(), err)
	}
	logger.Info("catalog synced", "version", cat.Version(), "definitions", len(cat.Definitions()))

	dispatcher := api.NewDispatcher(engine)
	keys := apiKeys(cfg.Auth.Keys)
	if cfg.Auth.Enabled && cfg.Transport.Mode == "http" && len(keys) == 0 {
		logger.Warn("auth enabled with no keys configured; every request will be rejected")
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Dispatcher:    dispatcher,
		Resolver:      keys,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		DefaultActor:  localActor,
		Version:       version,
		Logger:        logger,
	})

	if cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, logger, mcpServer)
	}

	auth := transport.FixedActorMiddleware(localActor)
	if cfg.Auth.Enabled {
		auth = transport.AuthMiddleware(keys)
	}
	router := transport.NewServer(dispatcher, transport.Options{
		Auth: auth,
		Live: hub.ServeWs,
		MCP: sdkmcp.NewStreamableHTTPHandler(
			func(r *http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{SessionTimeout: 30 * time.Minute},
		),
		Logger: logger,
	})
	err = runHTTPMode(ctx, logger, router, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	bus.Wait()
	return err
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, handler http.Handler, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func apiKeys(keys []config.APIKey) transport.StaticKeys {
	out := make(transport.StaticKeys, len(keys))
	for _, k := range keys {
		perms := make([]access.Permission, 0, len(k.Permissions))
		for _, p := range k.Permissions {
			perms = append(perms, access.Permission(p))
		}
		out[k.Token] = access.NewActor(k.ActorID, perms...)
	}
	return out
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
