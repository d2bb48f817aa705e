// Package ui provides terminal rendering helpers shared by the CLI commands.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/karuta-app/karuta/internal/deck"
	"github.com/muesli/termenv"
)

func init() {
	// Respect the terminal's actual capabilities (and NO_COLOR).
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 3).
			Width(44).
			Align(lipgloss.Center)

	headwordStyle = lipgloss.NewStyle().Bold(true)
)

// RenderAccent styles highlighted text.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass styles success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles errors.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderFaint styles secondary text.
func RenderFaint(s string) string { return faintStyle.Render(s) }

// VocabFront renders the question side of a vocabulary flashcard.
func VocabFront(e *deck.VocabularyEntry) string {
	return cardStyle.Render(headwordStyle.Render(e.Kanji))
}

// VocabBack renders the answer side of a vocabulary flashcard.
func VocabBack(e *deck.VocabularyEntry) string {
	var b strings.Builder
	b.WriteString(headwordStyle.Render(e.Kanji))
	if e.Reading != "" && e.Reading != e.Kanji {
		b.WriteString(faintStyle.Render(fmt.Sprintf("  (%s)", e.Reading)))
	}
	b.WriteString("\n\n")
	b.WriteString(e.Meaning)
	b.WriteString(faintStyle.Render(fmt.Sprintf("\n%s", e.PartOfSpeech)))

	if e.Example.Sentence != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Example.Sentence)
		if e.Example.Translation != "" {
			b.WriteString("\n")
			b.WriteString(faintStyle.Render(e.Example.Translation))
		}
	}

	if e.Conjugations != nil {
		b.WriteString("\n\n")
		b.WriteString(faintStyle.Render(fmt.Sprintf("%s / %s / %s / %s / %s",
			e.Conjugations.Dictionary, e.Conjugations.Masu, e.Conjugations.Te,
			e.Conjugations.Nai, e.Conjugations.Ta)))
	}

	return cardStyle.Render(b.String())
}

// GrammarCard renders one grammar entry with its star rating.
func GrammarCard(g *deck.GrammarEntry) string {
	var b strings.Builder
	b.WriteString(headwordStyle.Render(g.Label))
	b.WriteString("  ")
	b.WriteString(Stars(g.Rating))
	b.WriteString("\n\n")
	b.WriteString(g.Explanation)
	if g.Example != "" {
		b.WriteString("\n\n")
		b.WriteString(faintStyle.Render(g.Example))
	}
	return cardStyle.Render(b.String())
}

// Stars renders a 0-5 rating as filled and empty stars.
func Stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return accentStyle.Render(strings.Repeat("★", rating)) +
		faintStyle.Render(strings.Repeat("☆", 5-rating))
}

// MasteryBadge renders a colored mastery label.
func MasteryBadge(m deck.Mastery) string {
	label := m.String()
	switch m {
	case deck.MasteryMastered:
		return passStyle.Render(label)
	case deck.MasteryTooHard:
		return failStyle.Render(label)
	case deck.MasteryLearning:
		return warnStyle.Render(label)
	default:
		return faintStyle.Render(label)
	}
}
