package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/tkoster/inkbridge/internal/config"
	"github.com/tkoster/inkbridge/internal/mcpserver"
	"github.com/tkoster/inkbridge/internal/statusapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only status API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler := statusapi.NewHandler(statusapi.Deps{Store: store, Version: version})
		srv := &http.Server{
			Addr:    cfg.APIAddr,
			Handler: handler,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stdout, "inkbridge status API listening on %s\n", cfg.APIAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stdout, "shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve bridge status and tasks over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		s := mcpserver.NewServer(mcpserver.Deps{Store: store, Version: version})
		return server.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}
