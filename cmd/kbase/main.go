// CLAUDE:SUMMARY kbase entry point: cobra commands for the admin HTTP server, MCP stdio, bulk fetch, import and corpus output.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kbase/dbopen"
	"github.com/hazyhaar/kbase/knowledge"
)

var (
	dbPath     string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "kbase",
	Short:         "Knowledge source registry, fetcher and corpus compiler",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", env("KBASE_DB", "data/kbase.db"), "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", env("KBASE_CONFIG", ""), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("kbase", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr so stdout stays clean for command output and MCP stdio.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// openService opens the database and builds the knowledge service. The
// caller closes both.
func openService() (*knowledge.Service, *sql.DB, error) {
	cfg := knowledge.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = knowledge.LoadConfigFile(configPath); err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
	}
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	svc, err := knowledge.New(db, cfg, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, db, nil
}

func withService(fn func(ctx context.Context, svc *knowledge.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, db, err := openService()
		if err != nil {
			return err
		}
		defer db.Close()
		defer svc.Close()
		return fn(cmd.Context(), svc, args)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
