package main

import (
	"fmt"
	"time"

	"github.com/karuta-app/karuta/internal/syncer"
	"github.com/karuta-app/karuta/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local entries and pull the account's deck",
	Long: `Sync pushes every local entry to the backend, then pulls the account's
full deck and merges it additively into the local store. Nothing is ever
deleted by a sync.

Without a configured backend or an active session this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.sync == nil {
			fmt.Println("No backend configured, nothing to sync.")
			return nil
		}

		res, err := a.sync.Sync(ctx)
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Println("Not logged in, skipped sync. Run 'karuta login' first.")
			return nil
		}

		fmt.Printf("%s Synced as %s in %s\n", ui.RenderPass("✓"), res.Account, res.Duration.Round(time.Millisecond))
		fmt.Printf("  pushed %d vocabulary, %d grammar\n", res.VocabPushed, res.GrammarPushed)
		fmt.Printf("  pulled %d vocabulary, %d grammar\n", res.VocabPulled, res.GrammarPulled)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync configuration and last completion time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.remote == nil {
			fmt.Println("Backend:  not configured")
			return nil
		}
		fmt.Printf("Backend:  %s\n", a.cfg.Remote.URL)

		if account, ok := a.remote.CurrentUser(); ok {
			fmt.Printf("Account:  %s\n", account)
		} else {
			fmt.Println("Account:  not logged in")
		}

		last, err := a.store.GetMeta(ctx, syncer.MetaLastSynced)
		if err != nil {
			return err
		}
		if last == "" {
			fmt.Println("Last sync: never")
		} else {
			fmt.Printf("Last sync: %s\n", last)
		}

		vc, err := a.store.VocabCount(ctx)
		if err != nil {
			return err
		}
		gc, err := a.store.GrammarCount(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Local:    %d vocabulary, %d grammar\n", vc, gc)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
