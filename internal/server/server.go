// Package server exposes the HTTP API the single-page client consumes:
// store snapshots, entry mutations, image scans, sync control, the export
// document and the websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/karuta-app/karuta/internal/deck"
	"github.com/karuta-app/karuta/internal/events"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/store"
	"github.com/karuta-app/karuta/internal/study"
	"github.com/karuta-app/karuta/internal/syncer"
)

// maxScanBytes bounds uploaded images. The vision endpoint rejects larger
// payloads anyway.
const maxScanBytes = 10 << 20

// Server wires the study service, sync coordinator, analyzer and event hub
// behind a chi router.
type Server struct {
	svc      *study.Service
	sync     syncer.Syncer
	analyzer gateway.Analyzer
	hub      *events.Hub
	logger   *log.Logger

	http *http.Server
}

// Options configures a Server. Sync, Analyzer and Hub may each be nil, which
// disables the corresponding routes.
type Options struct {
	Addr     string
	Sync     syncer.Syncer
	Analyzer gateway.Analyzer
	Hub      *events.Hub
	Logger   *log.Logger
}

// New creates a Server listening on opts.Addr.
func New(svc *study.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	s := &Server{
		svc:      svc,
		sync:     opts.Sync,
		analyzer: opts.Analyzer,
		hub:      opts.Hub,
		logger:   opts.Logger,
	}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Router returns the HTTP handler, exposed for tests.
func (s *Server) Router() http.Handler {
	return s.http.Handler
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.hub != nil {
		r.Get("/ws", s.hub.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/vocab", s.handleListVocab)
		r.Patch("/vocab/{id}", s.handlePatchVocab)
		r.Delete("/vocab/{id}", s.handleDeleteVocab)

		r.Get("/grammar", s.handleListGrammar)
		r.Patch("/grammar/{id}", s.handlePatchGrammar)
		r.Delete("/grammar/{id}", s.handleDeleteGrammar)

		r.Get("/export", s.handleExport)

		if s.analyzer != nil {
			r.Post("/scan", s.handleScan)
		}
		if s.sync != nil {
			r.Post("/sync", s.handleSync)
			r.Get("/sync/status", s.handleSyncStatus)
		}
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": clients})
}

func (s *Server) handleListVocab(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.VocabFilter{Mastery: -1}
	filter.PartOfSpeech = deck.PartOfSpeech(q.Get("pos"))
	if v := q.Get("mastery"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || !deck.Mastery(m).Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid mastery level"))
			return
		}
		filter.Mastery = m
	}
	filter.SavedOnly = q.Get("saved") == "true"

	entries, err := s.svc.Store().ListVocab(r.Context(), filter)
	if err != nil {
		s.logger.Printf("list vocab failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vocabulary": entries, "total": len(entries)})
}

func (s *Server) handlePatchVocab(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Saved   *bool `json:"saved"`
		Mastery *int  `json:"masteryLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	if body.Saved != nil {
		if err := s.svc.SetSaved(r.Context(), id, *body.Saved); err != nil {
			s.logger.Printf("set saved failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	if body.Mastery != nil {
		m := deck.Mastery(*body.Mastery)
		if !m.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid mastery level"))
			return
		}
		if err := s.svc.SetMastery(r.Context(), id, m); err != nil {
			s.logger.Printf("set mastery failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteVocab(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteVocab(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.logger.Printf("delete vocab failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGrammar(w http.ResponseWriter, r *http.Request) {
	filter := store.GrammarFilter{
		BookmarkedOnly: r.URL.Query().Get("bookmarked") == "true",
	}
	entries, err := s.svc.Store().ListGrammar(r.Context(), filter)
	if err != nil {
		s.logger.Printf("list grammar failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grammar": entries, "total": len(entries)})
}

func (s *Server) handlePatchGrammar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Rating *int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Rating == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("rating is required"))
		return
	}
	if *body.Rating < 0 || *body.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, errorBody("rating must be between 0 and 5"))
		return
	}

	if err := s.svc.RateGrammar(r.Context(), id, *body.Rating); err != nil {
		s.logger.Printf("rate grammar failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteGrammar(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteGrammar(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.logger.Printf("delete grammar failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Store().Export(r.Context())
	if err != nil {
		s.logger.Printf("export failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", store.ExportFilename(doc.ExportedAt)))
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxScanBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("image file is required"))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxScanBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read image"))
		return
	}

	mediaType := header.Header.Get("Content-Type")
	extraction, err := s.analyzer.Analyze(r.Context(), image, mediaType)
	if err != nil {
		s.logger.Printf("scan failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorBody(fmt.Sprintf("analysis failed: %v", err)))
		return
	}

	if err := s.svc.AddExtraction(r.Context(), extraction); err != nil {
		s.logger.Printf("failed to store extraction: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vocabulary": extraction.Vocabulary,
		"grammar":    extraction.Grammar,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.Sync(r.Context())
	if err != nil {
		// Configuration-class failure: the one case worth a blocking alert.
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	}
	if result == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "skipped"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"state": s.sync.State().String()}
	if t, ok := s.sync.LastSynced(); ok {
		status["lastSynced"] = t
	}
	if err := s.sync.LastError(); err != nil {
		status["lastError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
