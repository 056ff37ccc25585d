package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the HTTP API and MCP over HTTP until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, cleanup, err := openService(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if _, err := svc.EnsureSource(ctx); err != nil {
			return err
		}

		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "newsnexus", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpSrv)

		r := chi.NewRouter()
		r.Mount("/", svc.Routes())
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

		if err := svc.Start(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		logger.Info("newsnexus: listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("newsnexus: stopped")
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "newsnexus", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpSrv)
		return mcpSrv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd)
}
