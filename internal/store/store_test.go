package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/karuta-app/karuta/internal/deck"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "karuta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func vocab(t *testing.T, kanji string, createdAt int64) *deck.VocabularyEntry {
	t.Helper()
	return &deck.VocabularyEntry{
		ID:           deck.NewID(),
		Kanji:        kanji,
		Reading:      "よみ",
		Meaning:      "meaning of " + kanji,
		PartOfSpeech: deck.PartNoun,
		Example:      deck.Example{Sentence: kanji + "の例文"},
		CreatedAt:    createdAt,
	}
}

func grammar(t *testing.T, label string, createdAt int64) *deck.GrammarEntry {
	t.Helper()
	return &deck.GrammarEntry{
		ID:          deck.NewID(),
		Label:       label,
		Explanation: "explanation of " + label,
		CreatedAt:   createdAt,
	}
}

func TestUpsertAndGetVocab(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := vocab(t, "本", 1000)
	e.PartOfSpeech = deck.PartVerb
	e.Conjugations = &deck.Conjugations{Dictionary: "読む", Masu: "読みます"}

	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}

	got, err := s.GetVocab(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetVocab: %v", err)
	}
	if got.Kanji != e.Kanji || got.Meaning != e.Meaning || got.CreatedAt != e.CreatedAt {
		t.Errorf("got %+v, want %+v", got, e)
	}
	if got.Conjugations == nil || got.Conjugations.Masu != "読みます" {
		t.Errorf("conjugations not preserved: %+v", got.Conjugations)
	}
}

func TestGetVocabNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetVocab(context.Background(), "no-such-id")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpsertVocabIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := vocab(t, "水", 1000)
	for i := 0; i < 3; i++ {
		if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
			t.Fatalf("UpsertVocab pass %d: %v", i, err)
		}
	}

	n, err := s.VocabCount(ctx)
	if err != nil {
		t.Fatalf("VocabCount: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry after repeated upserts, got %d", n)
	}
}

func TestUpsertVocabOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := vocab(t, "山", 1000)
	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}

	e.Meaning = "mountain (revised)"
	e.Saved = true
	e.Mastery = deck.MasteryMastered
	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
		t.Fatalf("UpsertVocab update: %v", err)
	}

	got, err := s.GetVocab(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetVocab: %v", err)
	}
	if got.Meaning != "mountain (revised)" || !got.Saved || got.Mastery != deck.MasteryMastered {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestUpsertVocabRejectsInvalid(t *testing.T) {
	s := testStore(t)

	bad := vocab(t, "", 1000) // missing kanji
	err := s.UpsertVocab(context.Background(), []*deck.VocabularyEntry{bad})
	if err == nil {
		t.Fatal("expected validation error")
	}
	n, _ := s.VocabCount(context.Background())
	if n != 0 {
		t.Errorf("invalid entry was stored, count = %d", n)
	}
}

func TestListVocabOrderingAndFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	oldest := vocab(t, "一", 1000)
	middle := vocab(t, "二", 2000)
	middle.PartOfSpeech = deck.PartVerb
	middle.Saved = true
	newest := vocab(t, "三", 3000)
	newest.Mastery = deck.MasteryLearning

	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{oldest, middle, newest}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}

	all, err := s.ListVocab(ctx, VocabFilter{Mastery: -1})
	if err != nil {
		t.Fatalf("ListVocab: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Kanji != "三" || all[2].Kanji != "一" {
		t.Errorf("not newest first: %s, %s, %s", all[0].Kanji, all[1].Kanji, all[2].Kanji)
	}

	tests := []struct {
		name   string
		filter VocabFilter
		want   []string
	}{
		{"by part of speech", VocabFilter{PartOfSpeech: deck.PartVerb, Mastery: -1}, []string{"二"}},
		{"saved only", VocabFilter{SavedOnly: true, Mastery: -1}, []string{"二"}},
		{"by mastery", VocabFilter{Mastery: int(deck.MasteryLearning)}, []string{"三"}},
		{"created since", VocabFilter{Mastery: -1, CreatedSince: 2000}, []string{"三", "二"}},
		{"no match", VocabFilter{PartOfSpeech: deck.PartParticle, Mastery: -1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListVocab(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListVocab: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].Kanji != w {
					t.Errorf("entry %d = %s, want %s", i, got[i].Kanji, w)
				}
			}
		})
	}
}

func TestUpdateVocab(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := vocab(t, "川", 1000)
	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}

	saved := true
	m := deck.MasteryTooHard
	if err := s.UpdateVocab(ctx, e.ID, VocabPatch{Saved: &saved, Mastery: &m}); err != nil {
		t.Fatalf("UpdateVocab: %v", err)
	}

	got, err := s.GetVocab(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetVocab: %v", err)
	}
	if !got.Saved || got.Mastery != deck.MasteryTooHard {
		t.Errorf("patch not applied: saved=%v mastery=%v", got.Saved, got.Mastery)
	}
	if got.Meaning != e.Meaning || got.CreatedAt != e.CreatedAt {
		t.Errorf("patch touched untargeted fields: %+v", got)
	}
}

func TestUpdateVocabUnknownIDIsNoop(t *testing.T) {
	s := testStore(t)

	saved := true
	if err := s.UpdateVocab(context.Background(), "no-such-id", VocabPatch{Saved: &saved}); err != nil {
		t.Errorf("update of unknown id should be silent, got %v", err)
	}
}

func TestDeleteVocabIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := vocab(t, "火", 1000)
	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{e}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.DeleteVocab(ctx, e.ID); err != nil {
			t.Fatalf("DeleteVocab pass %d: %v", i, err)
		}
	}
	if _, err := s.GetVocab(ctx, e.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("entry still present after delete: %v", err)
	}
}

func TestGrammarLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	g1 := grammar(t, "〜ながら", 1000)
	g2 := grammar(t, "〜ばかり", 2000)
	if err := s.UpsertGrammar(ctx, []*deck.GrammarEntry{g1, g2}); err != nil {
		t.Fatalf("UpsertGrammar: %v", err)
	}

	if err := s.RateGrammar(ctx, g2.ID, 4); err != nil {
		t.Fatalf("RateGrammar: %v", err)
	}

	bookmarked, err := s.ListGrammar(ctx, GrammarFilter{BookmarkedOnly: true})
	if err != nil {
		t.Fatalf("ListGrammar: %v", err)
	}
	if len(bookmarked) != 1 || bookmarked[0].ID != g2.ID || bookmarked[0].Rating != 4 {
		t.Errorf("bookmarked filter wrong: %+v", bookmarked)
	}

	all, err := s.AllGrammar(ctx)
	if err != nil {
		t.Fatalf("AllGrammar: %v", err)
	}
	if len(all) != 2 || all[0].Label != "〜ばかり" {
		t.Errorf("expected newest first, got %+v", all)
	}

	if err := s.DeleteGrammar(ctx, g1.ID); err != nil {
		t.Fatalf("DeleteGrammar: %v", err)
	}
	n, _ := s.GrammarCount(ctx)
	if n != 1 {
		t.Errorf("expected 1 entry after delete, got %d", n)
	}
}

func TestRateGrammarRange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	g := grammar(t, "〜そうだ", 1000)
	if err := s.UpsertGrammar(ctx, []*deck.GrammarEntry{g}); err != nil {
		t.Fatalf("UpsertGrammar: %v", err)
	}

	if err := s.RateGrammar(ctx, g.ID, 6); err == nil {
		t.Error("expected error for rating above 5")
	}
	if err := s.RateGrammar(ctx, g.ID, -1); err == nil {
		t.Error("expected error for negative rating")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v, err := s.GetMeta(ctx, "absent")
	if err != nil {
		t.Fatalf("GetMeta absent key: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value for absent key, got %q", v)
	}

	if err := s.SetMeta(ctx, "last_synced_at", "2026-08-30T12:00:00Z"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := s.SetMeta(ctx, "last_synced_at", "2026-08-30T13:00:00Z"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	v, err = s.GetMeta(ctx, "last_synced_at")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "2026-08-30T13:00:00Z" {
		t.Errorf("GetMeta = %q, want overwritten value", v)
	}
}

func TestWriteExport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertVocab(ctx, []*deck.VocabularyEntry{vocab(t, "木", 1000)}); err != nil {
		t.Fatalf("UpsertVocab: %v", err)
	}
	if err := s.UpsertGrammar(ctx, []*deck.GrammarEntry{grammar(t, "〜かもしれない", 2000)}); err != nil {
		t.Fatalf("UpsertGrammar: %v", err)
	}

	dir := t.TempDir()
	path, err := s.WriteExport(ctx, dir)
	if err != nil {
		t.Fatalf("WriteExport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var doc ExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(doc.Vocabulary) != 1 || len(doc.Grammar) != 1 {
		t.Errorf("export contents wrong: %d vocab, %d grammar", len(doc.Vocabulary), len(doc.Grammar))
	}
	if doc.ExportedAt.IsZero() {
		t.Error("exportedAt not set")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "karuta.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}
