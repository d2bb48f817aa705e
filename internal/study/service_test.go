package study

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"

	"github.com/karuta-app/karuta/internal/deck"
	"github.com/karuta-app/karuta/internal/events"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/store"
)

// fakeMirror records mirror calls and can fail on demand.
type fakeMirror struct {
	mu       sync.Mutex
	account  string
	upserts  []string
	deletes  []string
	failWith error
}

func (f *fakeMirror) CurrentUser() (string, bool) {
	return f.account, f.account != ""
}

func (f *fakeMirror) UpsertVocab(ctx context.Context, e *deck.VocabularyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.upserts = append(f.upserts, "vocab:"+e.ID)
	return nil
}

func (f *fakeMirror) UpsertGrammar(ctx context.Context, g *deck.GrammarEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.upserts = append(f.upserts, "grammar:"+g.ID)
	return nil
}

func (f *fakeMirror) DeleteVocab(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.deletes = append(f.deletes, "vocab:"+id)
	return nil
}

func (f *fakeMirror) DeleteGrammar(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.deletes = append(f.deletes, "grammar:"+id)
	return nil
}

func (f *fakeMirror) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeMirror) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

// fakeNotifier collects published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Publish(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func testService(t *testing.T, mirror Mirror, notify Notifier) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "karuta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return New(st, mirror, notify, log.New(io.Discard, "", 0))
}

func extraction() *gateway.Extraction {
	return &gateway.Extraction{
		Vocabulary: []*deck.VocabularyEntry{{
			ID:           "v1",
			Kanji:        "犬",
			Reading:      "いぬ",
			Meaning:      "dog",
			PartOfSpeech: deck.PartNoun,
			CreatedAt:    1000,
		}},
		Grammar: []*deck.GrammarEntry{{
			ID:          "g1",
			Label:       "〜たい",
			Explanation: "desire",
			CreatedAt:   1000,
		}},
	}
}

func TestAddExtractionLocalFirst(t *testing.T) {
	mirror := &fakeMirror{account: "acct-1"}
	notify := &fakeNotifier{}
	svc := testService(t, mirror, notify)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}

	if _, err := svc.Store().GetVocab(ctx, "v1"); err != nil {
		t.Errorf("vocab not stored locally: %v", err)
	}
	if _, err := svc.Store().GetGrammar(ctx, "g1"); err != nil {
		t.Errorf("grammar not stored locally: %v", err)
	}
	if !notify.has(events.EventEntriesAdded) {
		t.Error("entries_added not published")
	}

	svc.Wait()
	if mirror.upsertCount() != 2 {
		t.Errorf("expected 2 mirror upserts, got %d", mirror.upsertCount())
	}
}

func TestAddExtractionEmpty(t *testing.T) {
	notify := &fakeNotifier{}
	svc := testService(t, nil, notify)

	if err := svc.AddExtraction(context.Background(), &gateway.Extraction{}); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}
	if err := svc.AddExtraction(context.Background(), nil); err != nil {
		t.Fatalf("AddExtraction(nil): %v", err)
	}
	if len(notify.events) != 0 {
		t.Errorf("empty extraction published events: %v", notify.events)
	}
}

func TestMirrorFailureNeverSurfaces(t *testing.T) {
	mirror := &fakeMirror{account: "acct-1", failWith: errors.New("i/o timeout")}
	notify := &fakeNotifier{}
	svc := testService(t, mirror, notify)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("mirror failure leaked to caller: %v", err)
	}
	svc.Wait()

	// Local commit stands.
	if _, err := svc.Store().GetVocab(ctx, "v1"); err != nil {
		t.Errorf("local entry lost on mirror failure: %v", err)
	}
	if !notify.has(events.EventMirrorFailed) {
		t.Error("mirror failure not published to the event sink")
	}
}

func TestNoSessionSkipsMirror(t *testing.T) {
	mirror := &fakeMirror{} // connected, not logged in
	svc := testService(t, mirror, nil)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}
	if err := svc.DeleteVocab(ctx, "v1"); err != nil {
		t.Fatalf("DeleteVocab: %v", err)
	}
	svc.Wait()

	if mirror.upsertCount() != 0 || mirror.deleteCount() != 0 {
		t.Errorf("mirror called without a session: %d upserts, %d deletes",
			mirror.upsertCount(), mirror.deleteCount())
	}
}

func TestNilMirrorIsOffline(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}
	if err := svc.SetSaved(ctx, "v1", true); err != nil {
		t.Fatalf("SetSaved: %v", err)
	}
	svc.Wait()

	e, err := svc.Store().GetVocab(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVocab: %v", err)
	}
	if !e.Saved {
		t.Error("saved flag not set")
	}
}

func TestSetMasteryMirrorsCurrentState(t *testing.T) {
	mirror := &fakeMirror{account: "acct-1"}
	svc := testService(t, mirror, nil)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}
	svc.Wait()

	if err := svc.SetMastery(ctx, "v1", deck.MasteryMastered); err != nil {
		t.Fatalf("SetMastery: %v", err)
	}
	svc.Wait()

	// Initial add plus the post-update reread.
	if mirror.upsertCount() != 3 {
		t.Errorf("expected 3 mirror upserts, got %d", mirror.upsertCount())
	}
	e, err := svc.Store().GetVocab(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVocab: %v", err)
	}
	if e.Mastery != deck.MasteryMastered {
		t.Errorf("mastery = %v", e.Mastery)
	}
}

func TestRateGrammarUnknownID(t *testing.T) {
	mirror := &fakeMirror{account: "acct-1"}
	svc := testService(t, mirror, nil)

	// Rating an id that does not exist is a silent no-op; nothing to mirror.
	if err := svc.RateGrammar(context.Background(), "ghost", 3); err != nil {
		t.Fatalf("RateGrammar: %v", err)
	}
	svc.Wait()
	if mirror.upsertCount() != 0 {
		t.Errorf("no-op rating mirrored %d entries", mirror.upsertCount())
	}
}

func TestDeleteMirrors(t *testing.T) {
	mirror := &fakeMirror{account: "acct-1"}
	notify := &fakeNotifier{}
	svc := testService(t, mirror, notify)
	ctx := context.Background()

	if err := svc.AddExtraction(ctx, extraction()); err != nil {
		t.Fatalf("AddExtraction: %v", err)
	}
	svc.Wait()

	if err := svc.DeleteVocab(ctx, "v1"); err != nil {
		t.Fatalf("DeleteVocab: %v", err)
	}
	if err := svc.DeleteGrammar(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGrammar: %v", err)
	}
	svc.Wait()

	if mirror.deleteCount() != 2 {
		t.Errorf("expected 2 mirror deletes, got %d", mirror.deleteCount())
	}
	if !notify.has(events.EventEntryDeleted) {
		t.Error("entry_deleted not published")
	}
	if _, err := svc.Store().GetVocab(ctx, "v1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("entry still present locally: %v", err)
	}
}
