// Package study is the mutation service sitting between the surfaces (CLI,
// HTTP API, inbox daemon) and the stores.
//
// Every mutation is local-first: the on-device store commits before anything
// else happens. When an account session is active the change is mirrored to
// the hosted backend in the background, best effort - a mirror failure never
// blocks or fails the user's action, it is logged and published to the event
// sink instead.
package study

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/karuta-app/karuta/internal/deck"
	"github.com/karuta-app/karuta/internal/events"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/store"
)

// Mirror is the slice of the remote adapter the service needs. All methods
// are silent no-ops when no account session is attached.
type Mirror interface {
	CurrentUser() (string, bool)
	UpsertVocab(ctx context.Context, e *deck.VocabularyEntry) error
	UpsertGrammar(ctx context.Context, g *deck.GrammarEntry) error
	DeleteVocab(ctx context.Context, id string) error
	DeleteGrammar(ctx context.Context, id string) error
}

// Notifier receives service events. *events.Hub satisfies it.
type Notifier interface {
	Publish(event string, payload any)
}

// Service coordinates the local store, the remote mirror and the event sink.
type Service struct {
	store  *store.Store
	mirror Mirror
	notify Notifier
	logger *log.Logger

	wg sync.WaitGroup
}

// New creates a Service. mirror and notify may be nil (offline mode, no
// observers). If logger is nil, a default stderr logger is used.
func New(st *store.Store, mirror Mirror, notify Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[study] ", log.LstdFlags)
	}
	return &Service{store: st, mirror: mirror, notify: notify, logger: logger}
}

// Store exposes the underlying local store for read-only surfaces.
func (s *Service) Store() *store.Store {
	return s.store
}

// Wait blocks until all background mirror calls have finished. Called on
// shutdown and by tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// AddExtraction persists a gateway extraction: local store first, then a
// best-effort background mirror of each new entry.
func (s *Service) AddExtraction(ctx context.Context, ex *gateway.Extraction) error {
	if ex == nil || ex.Empty() {
		return nil
	}

	if err := s.store.UpsertVocab(ctx, ex.Vocabulary); err != nil {
		return fmt.Errorf("failed to store vocabulary: %w", err)
	}
	if err := s.store.UpsertGrammar(ctx, ex.Grammar); err != nil {
		return fmt.Errorf("failed to store grammar: %w", err)
	}

	s.publish(events.EventEntriesAdded, map[string]int{
		"vocabulary": len(ex.Vocabulary),
		"grammar":    len(ex.Grammar),
	})

	for _, e := range ex.Vocabulary {
		s.mirrorVocab(e)
	}
	for _, g := range ex.Grammar {
		s.mirrorGrammar(g)
	}
	return nil
}

// SetSaved toggles the bookmark flag on a vocabulary entry.
func (s *Service) SetSaved(ctx context.Context, id string, saved bool) error {
	if err := s.store.UpdateVocab(ctx, id, store.VocabPatch{Saved: &saved}); err != nil {
		return err
	}
	s.publish(events.EventEntryUpdated, map[string]any{"collection": "vocabulary", "id": id, "saved": saved})
	s.mirrorVocabByID(ctx, id)
	return nil
}

// SetMastery sets the mastery level on a vocabulary entry.
func (s *Service) SetMastery(ctx context.Context, id string, m deck.Mastery) error {
	if err := s.store.UpdateVocab(ctx, id, store.VocabPatch{Mastery: &m}); err != nil {
		return err
	}
	s.publish(events.EventEntryUpdated, map[string]any{"collection": "vocabulary", "id": id, "mastery": int(m)})
	s.mirrorVocabByID(ctx, id)
	return nil
}

// RateGrammar sets the star rating on a grammar entry.
func (s *Service) RateGrammar(ctx context.Context, id string, rating int) error {
	if err := s.store.RateGrammar(ctx, id, rating); err != nil {
		return err
	}
	s.publish(events.EventEntryUpdated, map[string]any{"collection": "grammar", "id": id, "rating": rating})

	g, err := s.store.GetGrammar(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Printf("WARNING: failed to reread grammar entry %s: %v", id, err)
		}
		return nil
	}
	s.mirrorGrammar(g)
	return nil
}

// DeleteVocab removes a vocabulary entry locally and, best effort, from the
// mirror. Deletion only ever happens through this explicit path, never as a
// side effect of sync.
func (s *Service) DeleteVocab(ctx context.Context, id string) error {
	if err := s.store.DeleteVocab(ctx, id); err != nil {
		return err
	}
	s.publish(events.EventEntryDeleted, map[string]string{"collection": "vocabulary", "id": id})
	s.background("delete", "vocabulary", id, func(ctx context.Context) error {
		return s.mirror.DeleteVocab(ctx, id)
	})
	return nil
}

// DeleteGrammar removes a grammar entry locally and, best effort, from the
// mirror.
func (s *Service) DeleteGrammar(ctx context.Context, id string) error {
	if err := s.store.DeleteGrammar(ctx, id); err != nil {
		return err
	}
	s.publish(events.EventEntryDeleted, map[string]string{"collection": "grammar", "id": id})
	s.background("delete", "grammar", id, func(ctx context.Context) error {
		return s.mirror.DeleteGrammar(ctx, id)
	})
	return nil
}

// mirrorVocabByID rereads the entry and mirrors its current state.
func (s *Service) mirrorVocabByID(ctx context.Context, id string) {
	e, err := s.store.GetVocab(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Printf("WARNING: failed to reread vocabulary entry %s: %v", id, err)
		}
		return
	}
	s.mirrorVocab(e)
}

func (s *Service) mirrorVocab(e *deck.VocabularyEntry) {
	s.background("upsert", "vocabulary", e.ID, func(ctx context.Context) error {
		return s.mirror.UpsertVocab(ctx, e)
	})
}

func (s *Service) mirrorGrammar(g *deck.GrammarEntry) {
	s.background("upsert", "grammar", g.ID, func(ctx context.Context) error {
		return s.mirror.UpsertGrammar(ctx, g)
	})
}

// background runs a mirror call without blocking the caller. Failures are
// logged and published on the event sink; they are never surfaced to the
// user.
func (s *Service) background(op, collection, id string, fn func(ctx context.Context) error) {
	if s.mirror == nil {
		return
	}
	if _, ok := s.mirror.CurrentUser(); !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the mirror call should finish
		// even if the triggering request has already returned. The remote
		// adapter applies its own timeout.
		if err := fn(context.Background()); err != nil {
			s.logger.Printf("mirror %s %s %s failed: %v", op, collection, id, err)
			s.publish(events.EventMirrorFailed, events.MirrorFailure{
				Collection: collection,
				ID:         id,
				Op:         op,
				Error:      err.Error(),
			})
		}
	}()
}

func (s *Service) publish(event string, payload any) {
	if s.notify != nil {
		s.notify.Publish(event, payload)
	}
}
