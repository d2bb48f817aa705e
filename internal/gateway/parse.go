package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/karuta-app/karuta/internal/deck"
)

// vocabCandidate is the wire shape of one vocabulary suggestion from the
// model, before it becomes an entity.
type vocabCandidate struct {
	Kanji        string `json:"kanji"`
	Reading      string `json:"reading"`
	Meaning      string `json:"meaning"`
	PartOfSpeech string `json:"partOfSpeech"`
	Example      struct {
		Sentence    string `json:"sentence"`
		Reading     string `json:"reading"`
		Translation string `json:"translation"`
	} `json:"example"`
	Conjugations *struct {
		Dictionary string `json:"dictionary"`
		Masu       string `json:"masu"`
		Te         string `json:"te"`
		Nai        string `json:"nai"`
		Ta         string `json:"ta"`
	} `json:"conjugations,omitempty"`
}

func (c vocabCandidate) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kanji, validation.Required, validation.Length(1, 100)),
		validation.Field(&c.Meaning, validation.Required, validation.Length(1, 500)),
	)
}

// grammarCandidate is the wire shape of one grammar suggestion.
type grammarCandidate struct {
	Label       string `json:"label"`
	Explanation string `json:"explanation"`
	Example     string `json:"example"`
}

func (c grammarCandidate) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Label, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Explanation, validation.Required, validation.Length(1, 2000)),
	)
}

type analysisResponse struct {
	Vocabulary []vocabCandidate   `json:"vocabulary"`
	Grammar    []grammarCandidate `json:"grammar"`
}

// parseResponse validates the model reply and constructs full entities.
// Individual malformed candidates are skipped with a warning; a reply that is
// not parseable JSON at all is an error.
func (g *Gateway) parseResponse(raw string) (*Extraction, error) {
	raw = stripFences(raw)

	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("analysis response is not valid JSON: %w", err)
	}

	out := &Extraction{}
	now := deck.Now()

	for _, c := range resp.Vocabulary {
		if err := c.validate(); err != nil {
			g.logger.Printf("WARNING: skipping vocabulary candidate %q: %v", c.Kanji, err)
			continue
		}
		out.Vocabulary = append(out.Vocabulary, g.buildVocab(c, now))
	}

	for _, c := range resp.Grammar {
		if err := c.validate(); err != nil {
			g.logger.Printf("WARNING: skipping grammar candidate %q: %v", c.Label, err)
			continue
		}
		out.Grammar = append(out.Grammar, &deck.GrammarEntry{
			ID:          deck.NewID(),
			Label:       strings.TrimSpace(c.Label),
			Explanation: strings.TrimSpace(c.Explanation),
			Example:     strings.TrimSpace(c.Example),
			Rating:      0,
			CreatedAt:   now,
		})
	}

	return out, nil
}

// buildVocab turns a validated candidate into an entity: fresh ID, creation
// timestamp, default study state, normalized part of speech, and a backfilled
// reading when the model omitted one.
func (g *Gateway) buildVocab(c vocabCandidate, now int64) *deck.VocabularyEntry {
	pos := deck.PartOfSpeech(strings.ToLower(strings.TrimSpace(c.PartOfSpeech)))
	if !pos.Valid() {
		pos = deck.PartOther
	}

	e := &deck.VocabularyEntry{
		ID:           deck.NewID(),
		Kanji:        strings.TrimSpace(c.Kanji),
		Reading:      strings.TrimSpace(c.Reading),
		Meaning:      strings.TrimSpace(c.Meaning),
		PartOfSpeech: pos,
		Example: deck.Example{
			Sentence:    strings.TrimSpace(c.Example.Sentence),
			Reading:     strings.TrimSpace(c.Example.Reading),
			Translation: strings.TrimSpace(c.Example.Translation),
		},
		Saved:     false,
		Mastery:   deck.MasteryNew,
		CreatedAt: now,
	}

	// Conjugations are only meaningful on verbs; anything else the model
	// attached them to is dropped.
	if c.Conjugations != nil && pos == deck.PartVerb {
		e.Conjugations = &deck.Conjugations{
			Dictionary: c.Conjugations.Dictionary,
			Masu:       c.Conjugations.Masu,
			Te:         c.Conjugations.Te,
			Nai:        c.Conjugations.Nai,
			Ta:         c.Conjugations.Ta,
		}
	}

	if e.Reading == "" && g.reader != nil {
		e.Reading = g.reader.Reading(e.Kanji)
	}
	if e.Example.Reading == "" && e.Example.Sentence != "" && g.reader != nil {
		e.Example.Reading = g.reader.Reading(e.Example.Sentence)
	}

	return e
}

// stripFences removes a markdown code fence if the model wrapped its reply in
// one despite instructions, then trims to the outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}
