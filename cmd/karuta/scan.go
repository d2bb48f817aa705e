package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karuta-app/karuta/internal/remote"
	"github.com/karuta-app/karuta/internal/ui"
	"github.com/spf13/cobra"
)

var scanNoSync bool

var scanCmd = &cobra.Command{
	Use:   "scan <image> [image...]",
	Short: "Extract flashcards from photos",
	Long: `Scan submits each image to the vision model and stores the extracted
vocabulary and grammar entries locally. With an active session the new
entries are also mirrored to the backend.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		analyzer, err := a.newAnalyzer()
		if err != nil {
			return err
		}

		var vocab, grammar int
		for _, path := range args {
			mediaType := mediaTypeForPath(path)
			if mediaType == "" {
				fmt.Fprintf(os.Stderr, "skipping %s: unsupported image type\n", path)
				continue
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			ex, err := analyzer.Analyze(ctx, data, mediaType)
			if err != nil {
				return fmt.Errorf("failed to analyze %s: %w", path, err)
			}
			if err := a.svc.AddExtraction(ctx, ex); err != nil {
				return err
			}

			vocab += len(ex.Vocabulary)
			grammar += len(ex.Grammar)
			fmt.Printf("%s %s: %d vocabulary, %d grammar\n",
				ui.RenderPass("✓"), filepath.Base(path), len(ex.Vocabulary), len(ex.Grammar))
		}

		fmt.Printf("Added %d vocabulary and %d grammar entries\n", vocab, grammar)

		if !scanNoSync {
			runBackgroundSync(ctx, a)
		}
		return nil
	},
}

// runBackgroundSync pushes and pulls after a mutation. Transient failures
// are already logged by the coordinator; only misconfiguration is worth
// telling the user about.
func runBackgroundSync(ctx context.Context, a *app) {
	if a.sync == nil {
		return
	}
	if _, err := a.sync.Sync(ctx); err != nil {
		if remote.IsConfigurationError(err) {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("sync:"), err)
		}
	}
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoSync, "no-sync", false, "skip the sync pass after scanning")
	rootCmd.AddCommand(scanCmd)
}
