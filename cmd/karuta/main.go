// Command karuta is a local-first study tool for Japanese vocabulary and
// grammar. It extracts flashcards from photos with a vision model, stores
// them on device, and optionally mirrors them to a hosted backend per
// account.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/karuta-app/karuta/internal/config"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/remote"
	"github.com/karuta-app/karuta/internal/store"
	"github.com/karuta-app/karuta/internal/study"
	"github.com/karuta-app/karuta/internal/syncer"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "karuta",
	Short: "Photo-to-flashcard study tool for Japanese",
	Long: `karuta turns photos of Japanese text into vocabulary and grammar
flashcards.

Entries always land in the local database first, so everything works
offline. Log in to mirror your deck to the hosted backend and keep
several devices in sync.`,
	SilenceUsage: true,
}

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the long-lived pieces a command needs. Remote wiring is
// optional: without credentials everything still works offline.
type app struct {
	cfg    *config.Config
	store  *store.Store
	remote *remote.Client // nil when the backend is not configured
	sync   syncer.Syncer  // nil when remote is nil
	svc    *study.Service
	logger *log.Logger
}

// newApp opens the local store and, when configured and logged in, the
// remote mirror and sync coordinator.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stderr, "[karuta] ", log.LstdFlags)

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: st, logger: logger}

	if rc := cfg.RemoteConfig(); rc.IsConfigured() {
		client, err := remote.Connect(rc, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}

		session, err := remote.LoadSession(cfg.SessionPath())
		if err != nil {
			logger.Printf("WARNING: ignoring unreadable session: %v", err)
		} else if session != nil && session.Expired() {
			logger.Printf("session for %s expired, log in again", session.AccountID)
		} else if session != nil {
			client.SetSession(session)
		}

		a.remote = client
		a.sync = syncer.New(st, client, syncer.Options{Logger: logger})
	}

	// Interface-typed nil would defeat the service's nil check, hence the
	// conditional.
	if a.remote != nil {
		a.svc = study.New(st, a.remote, nil, logger)
	} else {
		a.svc = study.New(st, nil, nil, logger)
	}

	return a, nil
}

func (a *app) close() {
	a.svc.Wait()
	if a.remote != nil {
		_ = a.remote.Close()
	}
	_ = a.store.Close()
}

// newAnalyzer builds the vision gateway, with kagome reading backfill when
// the dictionary loads.
func (a *app) newAnalyzer() (gateway.Analyzer, error) {
	if a.cfg.Anthropic.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (set KARUTA_ANTHROPIC_API_KEY or anthropic.api_key)")
	}

	reader, err := gateway.NewReader()
	if err != nil {
		a.logger.Printf("WARNING: reading backfill disabled: %v", err)
		reader = nil
	}

	return gateway.New(a.cfg.Anthropic.APIKey, gateway.Options{
		Model:     a.cfg.Anthropic.Model,
		MaxTokens: a.cfg.Anthropic.MaxTokens,
		Reader:    reader,
		Logger:    a.logger,
	}), nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
