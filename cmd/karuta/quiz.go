package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/charmbracelet/huh"
	"github.com/karuta-app/karuta/internal/deck"
	"github.com/karuta-app/karuta/internal/store"
	"github.com/karuta-app/karuta/internal/ui"
	"github.com/spf13/cobra"
)

var (
	quizCount     int
	quizSavedOnly bool
	quizMastery   int
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Flip through vocabulary flashcards",
	Long: `Quiz shows vocabulary entries as flashcards, kanji side first. After
flipping a card you grade yourself, which updates the entry's mastery
level. Grading also mirrors to the backend when logged in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.store.ListVocab(ctx, store.VocabFilter{
			Mastery:   quizMastery,
			SavedOnly: quizSavedOnly,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Nothing to quiz. Scan some photos first.")
			return nil
		}

		rand.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})
		if quizCount > 0 && len(entries) > quizCount {
			entries = entries[:quizCount]
		}

		graded := 0
		for i, e := range entries {
			fmt.Printf("\n%s\n", ui.RenderFaint(fmt.Sprintf("card %d of %d", i+1, len(entries))))
			fmt.Println(ui.VocabFront(e))

			var action string
			err := huh.NewSelect[string]().
				Title("Flip the card?").
				Options(
					huh.NewOption("Show answer", "flip"),
					huh.NewOption("Skip", "skip"),
					huh.NewOption("Quit", "quit"),
				).
				Value(&action).
				Run()
			if err != nil {
				return quizErr(err)
			}
			if action == "quit" {
				break
			}
			if action == "skip" {
				continue
			}

			fmt.Println(ui.VocabBack(e))

			var grade int
			err = huh.NewSelect[int]().
				Title("How well did you know it?").
				Options(
					huh.NewOption("Mastered", int(deck.MasteryMastered)),
					huh.NewOption("Still learning", int(deck.MasteryLearning)),
					huh.NewOption("Too hard", int(deck.MasteryTooHard)),
					huh.NewOption("Skip grading", -1),
				).
				Value(&grade).
				Run()
			if err != nil {
				return quizErr(err)
			}
			if grade < 0 {
				continue
			}

			if err := a.svc.SetMastery(ctx, e.ID, deck.Mastery(grade)); err != nil {
				return err
			}
			graded++
		}

		fmt.Printf("\nGraded %d of %d cards\n", graded, len(entries))
		runBackgroundSync(ctx, a)
		return nil
	},
}

// quizErr keeps ctrl-c out of the error output.
func quizErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}

func init() {
	quizCmd.Flags().IntVar(&quizCount, "count", 10, "maximum cards per session (0 = all)")
	quizCmd.Flags().BoolVar(&quizSavedOnly, "saved", false, "only saved entries")
	quizCmd.Flags().IntVar(&quizMastery, "mastery", -1, "only entries at this mastery level")
	rootCmd.AddCommand(quizCmd)
}
