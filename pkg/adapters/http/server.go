// Package http exposes running documents over a JSON API. The render tree is
// the wire format: hosts render it however they like and post interactions
// back.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/session"
)

// Server routes document interactions to the session manager.
type Server struct {
	sessions *session.Manager
	streams  *StreamManager
	logger   *slog.Logger
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported by GET /info.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// NewServer creates a server over a session manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Streams exposes the SSE broadcast hub so the engine can push wakeup
// notifications when a wait fires.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/documents", s.listDocuments)
	r.Route("/documents/{documentID}", func(r chi.Router) {
		r.Get("/render", s.render)
		r.Post("/forms/{blockID}", s.submitForm)
		r.Post("/nav/{blockID}", s.choose)
		r.Get("/events", s.subscribeEvents)
		r.Delete("/", s.closeDocument)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "stanza-http",
		"version": s.version,
	})
}

func (s *Server) listDocuments(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{
		"documents": s.sessions.Documents(),
	})
}

type renderResponse struct {
	DocumentID string            `json:"document_id"`
	Fragments  domain.RenderTree `json:"fragments"`
}

// chooseResponse additionally reports where the selected choice navigates.
type chooseResponse struct {
	renderResponse
	Target string `json:"target"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	tree, err := s.sessions.Render(r.Context(), documentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderResponse{DocumentID: documentID, Fragments: tree})
}

func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	blockID := chi.URLParam(r, "blockID")

	var values map[string]any
	if err := decodeBody(r, &values); err != nil {
		s.logger.Warn("invalid form body", "document", documentID, "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tree, err := s.sessions.Submit(r.Context(), documentID, blockID, values)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderResponse{DocumentID: documentID, Fragments: tree})
}

func (s *Server) choose(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	blockID := chi.URLParam(r, "blockID")

	var body struct {
		Label string `json:"label"`
	}
	if err := decodeBody(r, &body); err != nil || body.Label == "" {
		http.Error(w, "invalid request body: label is required", http.StatusBadRequest)
		return
	}

	tree, target, err := s.sessions.Choose(r.Context(), documentID, blockID, body.Label)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chooseResponse{
		renderResponse: renderResponse{DocumentID: documentID, Fragments: tree},
		Target:         target,
	})
}

func (s *Server) closeDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if err := s.sessions.Close(r.Context(), documentID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subscribeEvents streams wakeup notifications for one document over SSE.
// A client re-renders when it receives an event.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	documentID := chi.URLParam(r, "documentID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(documentID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Validation failures carry
// their field list so clients can annotate the form.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		fields := make([]map[string]string, 0, len(validation.Fields))
		for _, f := range validation.Fields {
			fields = append(fields, map[string]string{"field": f.Field, "reason": f.Reason})
		}
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}
	if errors.Is(err, domain.ErrDocumentNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var authoring *domain.AuthoringError
	if errors.As(err, &authoring) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("request failed", "err", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // documentID -> set of channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(documentID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[documentID]; !ok {
		sm.subscribers[documentID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[documentID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[documentID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, documentID)
			}
		}
	}
}

// Broadcast fans a message out to a document's subscribers. Slow clients
// drop messages rather than blocking the engine.
func (sm *StreamManager) Broadcast(documentID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[documentID] {
		select {
		case ch <- msg:
		default:
		}
	}
}
