// Command newsnexus runs incremental news-feed ingestion: a one-shot run
// for a keyword triple, a pass over stored query sets, or a long-running
// server with the scheduler, the HTTP API and MCP tools.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/newsnexus/dbopen"
	"github.com/hazyhaar/newsnexus/requester"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var (
	cfgFile string
	cfg     *requester.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "newsnexus",
	Short: "Incremental news-feed ingestion",
	Long: `newsnexus queries a news search feed with AND/OR/NOT keyword triples,
skips date windows already covered, and stores new articles in SQLite.

Example usage:
  newsnexus seed                                   # create the configured source
  newsnexus run --and '"climate change"' --start 2024-01-01
  newsnexus run-all                                # run every enabled query set once
  newsnexus serve                                  # scheduler + HTTP API + MCP`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = requester.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		out := os.Stdout
		if cmd.Name() == "mcp" {
			// stdout carries the MCP stream.
			out = os.Stderr
		}
		logger = newLogger(out, cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", env("NEWSNEXUS_CONFIG", ""), "YAML config file")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("newsnexus", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
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
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openService opens the database and builds the service. The returned
// cleanup closes everything it opened.
func openService(ctx context.Context) (*requester.Service, func(), error) {
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { db.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var opts []requester.ServiceOption
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			cleanup()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		closers = append(closers, func() { client.Close() })
		opts = append(opts, requester.WithLocker(requester.NewRedisLocker(client, cfg.LockTTL, logger)))
	}

	svc, err := requester.New(db, cfg, logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { svc.Close() })
	return svc, cleanup, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
