// Package deck provides the entity types for karuta's two study collections:
// vocabulary entries and grammar entries.
//
// Entries are flat, last-write-wins records. The ID is generated once at
// creation time and is the join key between the local store and the remote
// mirror; CreatedAt is set once and never mutated afterwards.
package deck

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// PartOfSpeech is the closed set of grammatical categories assigned by the
// analysis gateway. Unknown values are normalized to PartOther at the boundary.
type PartOfSpeech string

const (
	PartNoun       PartOfSpeech = "noun"
	PartVerb       PartOfSpeech = "verb"
	PartAdjective  PartOfSpeech = "adjective"
	PartAdverb     PartOfSpeech = "adverb"
	PartParticle   PartOfSpeech = "particle"
	PartExpression PartOfSpeech = "expression"
	PartOther      PartOfSpeech = "other"
)

// PartsOfSpeech lists every valid part-of-speech tag.
var PartsOfSpeech = []PartOfSpeech{
	PartNoun, PartVerb, PartAdjective, PartAdverb,
	PartParticle, PartExpression, PartOther,
}

// Valid reports whether p is one of the known tags.
func (p PartOfSpeech) Valid() bool {
	for _, known := range PartsOfSpeech {
		if p == known {
			return true
		}
	}
	return false
}

// Mastery tracks how well the user knows an entry.
type Mastery int

const (
	MasteryNew      Mastery = 0
	MasteryLearning Mastery = 1
	MasteryMastered Mastery = 2
	MasteryTooHard  Mastery = 3
)

// Valid reports whether m is within the known range.
func (m Mastery) Valid() bool {
	return m >= MasteryNew && m <= MasteryTooHard
}

// String returns the label shown in list and quiz views.
func (m Mastery) String() string {
	switch m {
	case MasteryNew:
		return "new"
	case MasteryLearning:
		return "learning"
	case MasteryMastered:
		return "mastered"
	case MasteryTooHard:
		return "too-hard"
	default:
		return fmt.Sprintf("mastery(%d)", int(m))
	}
}

// Example is a usage sentence with its reading annotation and translation.
type Example struct {
	Sentence    string `json:"sentence"`
	Reading     string `json:"reading,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// Conjugations holds the five fixed verb forms. Present only when the part of
// speech is "verb", and optional even then; verb-specific views are skipped
// when it is absent.
type Conjugations struct {
	Dictionary string `json:"dictionary"`
	Masu       string `json:"masu"`
	Te         string `json:"te"`
	Nai        string `json:"nai"`
	Ta         string `json:"ta"`
}

// VocabularyEntry is one vocabulary flashcard.
type VocabularyEntry struct {
	// ===== Identity =====
	ID string `json:"id"`

	// ===== Content =====
	Kanji        string        `json:"kanji"`
	Reading      string        `json:"reading"`
	Meaning      string        `json:"meaning"`
	PartOfSpeech PartOfSpeech  `json:"partOfSpeech"`
	Example      Example       `json:"example"`
	Conjugations *Conjugations `json:"conjugations,omitempty"`

	// ===== Study state (mutable) =====
	Saved   bool    `json:"saved"`
	Mastery Mastery `json:"masteryLevel"`

	// ===== Timestamps =====
	CreatedAt int64 `json:"createdAt"` // epoch milliseconds, set once
}

// Validate checks that the entry is well formed.
func (e *VocabularyEntry) Validate() error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Kanji, validation.Required),
		validation.Field(&e.Meaning, validation.Required),
		validation.Field(&e.CreatedAt, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return err
	}
	if !e.PartOfSpeech.Valid() {
		return fmt.Errorf("unknown part of speech %q", e.PartOfSpeech)
	}
	if !e.Mastery.Valid() {
		return fmt.Errorf("mastery level out of range: %d", e.Mastery)
	}
	if e.Conjugations != nil && e.PartOfSpeech != PartVerb {
		return fmt.Errorf("conjugations present on non-verb %q", e.Kanji)
	}
	return nil
}

// GrammarEntry is one grammar-point flashcard.
type GrammarEntry struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Explanation string `json:"explanation"`
	Example     string `json:"example,omitempty"`
	Rating      int    `json:"rating"` // 0 = unrated, 1-5 stars
	CreatedAt   int64  `json:"createdAt"`
}

// Validate checks that the entry is well formed.
func (g *GrammarEntry) Validate() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.ID, validation.Required),
		validation.Field(&g.Label, validation.Required),
		validation.Field(&g.Explanation, validation.Required),
		validation.Field(&g.Rating, validation.Min(0), validation.Max(5)),
		validation.Field(&g.CreatedAt, validation.Required, validation.Min(1)),
	)
}

// Bookmarked reports whether the user has flagged this grammar point.
// A nonzero star rating counts as bookmarked.
func (g *GrammarEntry) Bookmarked() bool {
	return g.Rating > 0
}

// NewID returns a fresh entry identifier.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time as epoch milliseconds, the timestamp unit used
// by both collections.
func Now() int64 {
	return time.Now().UnixMilli()
}

// MarshalConjugations serializes the optional conjugation set for storage.
// Returns the empty string when absent.
func MarshalConjugations(c *Conjugations) (string, error) {
	if c == nil {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conjugations: %w", err)
	}
	return string(data), nil
}

// UnmarshalConjugations parses a stored conjugation set. The empty string and
// JSON null both decode to nil.
func UnmarshalConjugations(s string) (*Conjugations, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var c Conjugations
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conjugations: %w", err)
	}
	return &c, nil
}
