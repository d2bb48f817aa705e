package deck

import (
	"testing"
)

func validVocab() *VocabularyEntry {
	return &VocabularyEntry{
		ID:           NewID(),
		Kanji:        "食べる",
		Reading:      "たべる",
		Meaning:      "to eat",
		PartOfSpeech: PartVerb,
		Example: Example{
			Sentence:    "朝ご飯を食べる",
			Reading:     "あさごはんをたべる",
			Translation: "to eat breakfast",
		},
		CreatedAt: Now(),
	}
}

func TestVocabularyEntryValidate(t *testing.T) {
	if err := validVocab().Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*VocabularyEntry)
	}{
		{"missing id", func(e *VocabularyEntry) { e.ID = "" }},
		{"missing kanji", func(e *VocabularyEntry) { e.Kanji = "" }},
		{"missing meaning", func(e *VocabularyEntry) { e.Meaning = "" }},
		{"zero created_at", func(e *VocabularyEntry) { e.CreatedAt = 0 }},
		{"unknown part of speech", func(e *VocabularyEntry) { e.PartOfSpeech = "pronoun" }},
		{"mastery out of range", func(e *VocabularyEntry) { e.Mastery = 9 }},
		{"conjugations on a noun", func(e *VocabularyEntry) {
			e.PartOfSpeech = PartNoun
			e.Conjugations = &Conjugations{Dictionary: "食べる"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validVocab()
			tt.mutate(e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestVocabularyEntryConjugationsOnVerb(t *testing.T) {
	e := validVocab()
	e.Conjugations = &Conjugations{
		Dictionary: "食べる",
		Masu:       "食べます",
		Te:         "食べて",
		Nai:        "食べない",
		Ta:         "食べた",
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("verb with conjugations rejected: %v", err)
	}
}

func TestGrammarEntryValidate(t *testing.T) {
	g := &GrammarEntry{
		ID:          NewID(),
		Label:       "〜てしまう",
		Explanation: "completion, often with regret",
		Example:     "宿題を忘れてしまった",
		CreatedAt:   Now(),
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	g.Rating = 6
	if err := g.Validate(); err == nil {
		t.Error("expected error for rating above 5")
	}
	g.Rating = -1
	if err := g.Validate(); err == nil {
		t.Error("expected error for negative rating")
	}
}

func TestGrammarBookmarked(t *testing.T) {
	g := &GrammarEntry{Rating: 0}
	if g.Bookmarked() {
		t.Error("unrated entry should not be bookmarked")
	}
	g.Rating = 3
	if !g.Bookmarked() {
		t.Error("rated entry should be bookmarked")
	}
}

func TestMastery(t *testing.T) {
	tests := []struct {
		m     Mastery
		valid bool
		str   string
	}{
		{MasteryNew, true, "new"},
		{MasteryLearning, true, "learning"},
		{MasteryMastered, true, "mastered"},
		{MasteryTooHard, true, "too-hard"},
		{Mastery(4), false, "mastery(4)"},
		{Mastery(-1), false, "mastery(-1)"},
	}
	for _, tt := range tests {
		if got := tt.m.Valid(); got != tt.valid {
			t.Errorf("Mastery(%d).Valid() = %v, want %v", int(tt.m), got, tt.valid)
		}
		if got := tt.m.String(); got != tt.str {
			t.Errorf("Mastery(%d).String() = %q, want %q", int(tt.m), got, tt.str)
		}
	}
}

func TestConjugationsRoundTrip(t *testing.T) {
	// Absent either way.
	s, err := MarshalConjugations(nil)
	if err != nil {
		t.Fatalf("MarshalConjugations(nil): %v", err)
	}
	if s != "" {
		t.Errorf("expected empty string for nil, got %q", s)
	}
	for _, raw := range []string{"", "null"} {
		c, err := UnmarshalConjugations(raw)
		if err != nil {
			t.Fatalf("UnmarshalConjugations(%q): %v", raw, err)
		}
		if c != nil {
			t.Errorf("expected nil for %q, got %+v", raw, c)
		}
	}

	want := &Conjugations{Dictionary: "飲む", Masu: "飲みます", Te: "飲んで", Nai: "飲まない", Ta: "飲んだ"}
	s, err = MarshalConjugations(want)
	if err != nil {
		t.Fatalf("MarshalConjugations: %v", err)
	}
	got, err := UnmarshalConjugations(s)
	if err != nil {
		t.Fatalf("UnmarshalConjugations: %v", err)
	}
	if got == nil || *got != *want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
