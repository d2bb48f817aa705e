package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karuta-app/karuta/internal/events"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/server"
	"github.com/karuta-app/karuta/internal/study"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	Long: `Serve exposes the deck over a local HTTP API, with a websocket feed of
store events at /ws. This is the surface a companion app talks to.

Endpoints include /api/vocab, /api/grammar, /api/scan, /api/sync and
/api/export.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		hub := events.NewHub(a.logger)
		hub.Start()
		defer hub.Stop()

		// Rebuild the service so mutations feed the websocket hub.
		var svc *study.Service
		if a.remote != nil {
			svc = study.New(a.store, a.remote, hub, a.logger)
		} else {
			svc = study.New(a.store, nil, hub, a.logger)
		}
		defer svc.Wait()

		var analyzer gateway.Analyzer
		if an, err := a.newAnalyzer(); err != nil {
			a.logger.Printf("WARNING: /api/scan disabled: %v", err)
		} else {
			analyzer = an
		}

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Serve.Addr
		}

		srv := server.New(svc, server.Options{
			Addr:     addr,
			Sync:     a.sync,
			Analyzer: analyzer,
			Hub:      hub,
			Logger:   a.logger,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
