package main

import (
	"fmt"
	"strconv"

	"github.com/karuta-app/karuta/internal/ui"
	"github.com/spf13/cobra"
)

var saveOff bool

var saveCmd = &cobra.Command{
	Use:   "save <vocab-id>",
	Short: "Save a vocabulary entry for focused review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.SetSaved(ctx, args[0], !saveOff); err != nil {
			return err
		}
		if saveOff {
			fmt.Printf("%s Unsaved %s\n", ui.RenderPass("✓"), args[0])
		} else {
			fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), args[0])
		}
		return nil
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate <grammar-id> <stars>",
	Short: "Rate a grammar point from 0 to 5 stars",
	Long: `Rate sets a grammar point's star rating. Any nonzero rating bookmarks
the entry; 0 clears the bookmark.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid rating %q: %w", args[1], err)
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.RateGrammar(ctx, args[0], rating); err != nil {
			return err
		}
		fmt.Printf("%s Rated %s %s\n", ui.RenderPass("✓"), args[0], ui.Stars(rating))
		return nil
	},
}

var rmGrammar bool

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an entry from the local store",
	Long: `Rm deletes a vocabulary entry (or, with --grammar, a grammar entry)
locally and, when logged in, from the backend. Deleting an unknown id is
not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if rmGrammar {
			err = a.svc.DeleteGrammar(ctx, args[0])
		} else {
			err = a.svc.DeleteVocab(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	saveCmd.Flags().BoolVar(&saveOff, "undo", false, "clear the saved flag instead")
	rmCmd.Flags().BoolVar(&rmGrammar, "grammar", false, "delete a grammar entry")
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(rmCmd)
}
