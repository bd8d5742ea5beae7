/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave service.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Open the store (SQLite or PostgreSQL)
  3. Seed demo users when SEED_DEMO_USERS=true
  4. Build workflow, query service and handler
  5. Configure HTTP router with the identity provider
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and JWT auth
  JWT_SECRET=change-me-0123456789 ./server -db="./data/leave.db"

  # Local development as employee 2, no tokens
  AUTH_MODE=static SEED_DEMO_USERS=true ./server -db=":memory:"

  # PostgreSQL
  LEAVE_DB_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - cmd/token: Mints bearer tokens for local use
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

// store is what the server needs from either backend.
type store interface {
	leave.TxStore
	Close() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.SQLitePath, "SQLite database path")
	flag.Parse()
	if err := cfg.ApplyFlags(*port, *dbPath); err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := api.NewLogger(os.Stdout, level, cfg.App.Env)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.App.SeedUsers {
		if err := seedUsers(ctx, db); err != nil {
			return err
		}
		logger.Info("demo users seeded")
	}

	balances := leave.NewBalanceStore(db, cfg.Leave.Defaults)
	workflow := leave.NewWorkflow(db, balances,
		leave.WithHoldPending(cfg.Leave.HoldPending),
		leave.WithLogger(logger),
	)
	query := leave.NewQueryService(db, balances, logger)
	handler := api.NewHandler(workflow, query, db, logger)

	router := api.NewRouter(handler, identityProvider(cfg, logger), api.RouterOptions{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		RequestLogLevel: slog.LevelInfo,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"db_driver", cfg.Database.Driver,
			"auth_mode", cfg.Auth.Mode,
			"hold_pending", cfg.Leave.HoldPending,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.New(ctx, cfg.Database.URL)
	default:
		if path := cfg.Database.SQLitePath; path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.New(cfg.Database.SQLitePath)
	}
}

func identityProvider(cfg *config.Config, logger *slog.Logger) auth.Provider {
	if cfg.Auth.Mode == "static" {
		logger.Warn("static authentication enabled, every request acts as one user",
			"user_id", cfg.Auth.StaticID,
			"role", cfg.Auth.StaticRole,
		)
		return auth.NewStatic(cfg.Auth.StaticID, cfg.Auth.StaticRole)
	}
	return auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
}

var demoUsers = []leave.User{
	{ID: 1, Name: "Admin User", Email: "admin@example.com", Role: string(auth.RoleAdmin)},
	{ID: 2, Name: "Jane Doe", Email: "jane@example.com", Role: string(auth.RoleEmployee)},
}

func seedUsers(ctx context.Context, db leave.Store) error {
	for _, u := range demoUsers {
		if err := db.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
