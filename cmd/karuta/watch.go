package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/karuta-app/karuta/internal/daemon"
	"github.com/spf13/cobra"
)

var watchInbox string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and scan new images",
	Long: `Watch runs a daemon over an inbox directory. Any image dropped into it
is analyzed and its flashcards stored, then the file is moved to done/
(or failed/ when analysis errors out). A sync runs after each image.

Point your phone's photo export at the inbox and cards appear on their
own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		analyzer, err := a.newAnalyzer()
		if err != nil {
			return err
		}

		inbox := watchInbox
		if inbox == "" {
			inbox = a.cfg.Inbox.Dir
		}
		if inbox == "" {
			inbox = filepath.Join(a.cfg.DataDir, "inbox")
		}

		cfg := daemon.DefaultConfig()
		if a.cfg.Inbox.Debounce > 0 {
			cfg.DebounceInterval = a.cfg.Inbox.Debounce
		}
		if a.cfg.Log.File != "" {
			cfg.Logger = daemon.NewFileLogger(a.cfg.Log.File, a.cfg.Log.MaxSizeMB, a.cfg.Log.MaxBackups)
		}

		d, err := daemon.New(a.svc, analyzer, a.sync, inbox, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Watching %s (ctrl-c to stop)\n", inbox)
		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "inbox directory (default <data-dir>/inbox)")
	rootCmd.AddCommand(watchCmd)
}
