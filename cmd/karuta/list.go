package main

import (
	"fmt"
	"time"

	"github.com/karuta-app/karuta/internal/deck"
	"github.com/karuta-app/karuta/internal/store"
	"github.com/karuta-app/karuta/internal/ui"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	listPOS        string
	listMastery    int
	listSavedOnly  bool
	listBookmarked bool
	listSince      string
	listIDs        bool
)

var listCmd = &cobra.Command{
	Use:   "list [vocab|grammar]",
	Short: "List stored entries",
	Long: `List prints stored entries, newest first.

The --since flag accepts natural language, e.g. --since "last week" or
--since yesterday.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"vocab", "grammar"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind := "vocab"
		if len(args) == 1 {
			kind = args[0]
		}

		since, err := parseSince(listSince)
		if err != nil {
			return err
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		switch kind {
		case "vocab":
			entries, err := a.store.ListVocab(ctx, store.VocabFilter{
				PartOfSpeech: deck.PartOfSpeech(listPOS),
				Mastery:      listMastery,
				SavedOnly:    listSavedOnly,
				CreatedSince: since,
			})
			if err != nil {
				return err
			}
			printVocab(entries)
		case "grammar":
			entries, err := a.store.ListGrammar(ctx, store.GrammarFilter{
				BookmarkedOnly: listBookmarked,
				CreatedSince:   since,
			})
			if err != nil {
				return err
			}
			printGrammar(entries)
		default:
			return fmt.Errorf("unknown collection %q (want vocab or grammar)", kind)
		}
		return nil
	},
}

// parseSince turns natural language like "last week" into an epoch-ms
// threshold. Empty input means no threshold.
func parseSince(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return 0, fmt.Errorf("could not understand --since %q", s)
	}
	return r.Time.UnixMilli(), nil
}

func printVocab(entries []*deck.VocabularyEntry) {
	if len(entries) == 0 {
		fmt.Println("No vocabulary entries.")
		return
	}
	for _, e := range entries {
		saved := " "
		if e.Saved {
			saved = ui.RenderAccent("♥")
		}
		line := fmt.Sprintf("%s %s (%s) %s  %s",
			saved, ui.RenderAccent(e.Kanji), e.Reading, ui.MasteryBadge(e.Mastery), e.Meaning)
		if listIDs {
			line += "  " + ui.RenderFaint(e.ID)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d entries\n", len(entries))
}

func printGrammar(entries []*deck.GrammarEntry) {
	if len(entries) == 0 {
		fmt.Println("No grammar entries.")
		return
	}
	for _, g := range entries {
		line := fmt.Sprintf("%s %s  %s", ui.Stars(g.Rating), ui.RenderAccent(g.Label), g.Explanation)
		if listIDs {
			line += "  " + ui.RenderFaint(g.ID)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d entries\n", len(entries))
}

func init() {
	listCmd.Flags().StringVar(&listPOS, "pos", "", "filter vocab by part of speech")
	listCmd.Flags().IntVar(&listMastery, "mastery", -1, "filter vocab by mastery level (0-3)")
	listCmd.Flags().BoolVar(&listSavedOnly, "saved", false, "only saved vocab")
	listCmd.Flags().BoolVar(&listBookmarked, "bookmarked", false, "only rated grammar")
	listCmd.Flags().StringVar(&listSince, "since", "", "only entries created since, e.g. \"last week\"")
	listCmd.Flags().BoolVar(&listIDs, "ids", false, "show entry ids")
	rootCmd.AddCommand(listCmd)
}
