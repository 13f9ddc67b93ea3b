// Package chi is the HTTP API surface: note capture, retrieval, and search.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	domsearch "github.com/noterag/noterag/internal/domain/search"
	notesuc "github.com/noterag/noterag/internal/usecase/notes"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the note service over HTTP.
type Server struct {
	notes         *notesuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(notes *notesuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		notes:  notes,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNoteNotFound, http.StatusNotFound, "note_not_found"),
		sentinelHandler(domain.ErrNotInitialized, http.StatusServiceUnavailable, "not_initialized"),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrConnectivity, http.StatusServiceUnavailable, "store_unavailable"),
	}
	return s
}

// Register mounts the API routes on the given router. Middleware is wired by
// the caller (composition root).
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", s.ListNotes)
			r.Post("/", s.CreateNote)
			r.Post("/refresh-embeddings", s.RefreshEmbeddings)
			r.Get("/{id}", s.GetNote)
			r.Put("/{id}", s.UpdateNote)
			r.Delete("/{id}", s.DeleteNote)
		})
		r.Get("/search", s.SearchNotes)
	})
}

type noteResponse struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	URL       string   `json:"url,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Tags      []string `json:"tags,omitempty"`
}

type createNoteRequest struct {
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Timestamp int64    `json:"timestamp"`
	Tags      []string `json:"tags"`
}

type updateNoteRequest struct {
	Text  *string  `json:"text"`
	Title *string  `json:"title"`
	URL   *string  `json:"url"`
	Tags  []string `json:"tags"`
}

type searchResultItem struct {
	noteResponse
	Score        float64  `json:"score"`
	VectorScore  float64  `json:"vector_score"`
	KeywordScore float64  `json:"keyword_score"`
	Matched      []string `json:"matched_keywords,omitempty"`
	Boosted      bool     `json:"boosted,omitempty"`
}

// CreateNote handles POST /api/notes.
func (s *Server) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	n, reused, err := s.notes.CreateNote(r.Context(), notesuc.CreateInput{
		Text:      req.Text,
		Title:     req.Title,
		URL:       req.URL,
		Timestamp: req.Timestamp,
		Tags:      req.Tags,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if reused {
		// Duplicate within the dedup window: same note, not a new resource.
		status = http.StatusOK
	} else {
		w.Header().Set("Location", "/api/notes/"+n.ID())
	}
	writeJSON(w, status, noteToResponse(n))
}

// ListNotes handles GET /api/notes.
func (s *Server) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.ListNotes(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]noteResponse, len(notes))
	for i := range notes {
		items[i] = noteToResponse(notes[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// GetNote handles GET /api/notes/{id}.
func (s *Server) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.notes.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noteToResponse(n))
}

// UpdateNote handles PUT /api/notes/{id}.
func (s *Server) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	n, err := s.notes.UpdateNote(r.Context(), chi.URLParam(r, "id"), notesuc.UpdateInput{
		Text:  req.Text,
		Title: req.Title,
		URL:   req.URL,
		Tags:  req.Tags,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noteToResponse(n))
}

// DeleteNote handles DELETE /api/notes/{id}.
func (s *Server) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchNotes handles GET /api/search?query=...&limit=....
func (s *Server) SearchNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	results, err := s.notes.SearchNotes(r.Context(), query, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = resultToItem(&results[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
		"mode":  string(s.notes.CurrentMode()),
	})
}

// RefreshEmbeddings handles POST /api/notes/refresh-embeddings.
func (s *Server) RefreshEmbeddings(w http.ResponseWriter, r *http.Request) {
	updated, failed, err := s.notes.RefreshEmbeddings(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated": updated,
		"failed":  failed,
	})
}

// HealthCheck handles GET /health. Degraded mode is reported but still healthy:
// the service keeps working against the local backend.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := s.notes.CountNotes(r.Context())

	status := "ok"
	httpStatus := http.StatusOK
	if err != nil {
		status = "error"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":     status,
		"store_mode": string(s.notes.CurrentMode()),
		"notes":      count,
		"time":       time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, httpStatus, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func noteToResponse(n note.Note) noteResponse {
	return noteResponse{
		ID:        n.ID(),
		Text:      n.Text(),
		Title:     n.Title(),
		URL:       n.URL(),
		Timestamp: n.Timestamp(),
		Tags:      n.Tags(),
	}
}

func resultToItem(r *domsearch.Result) searchResultItem {
	d := r.Details()
	return searchResultItem{
		noteResponse: noteToResponse(r.Note()),
		Score:        r.Score(),
		VectorScore:  d.VectorScore,
		KeywordScore: d.KeywordScore,
		Matched:      d.MatchedKeywords,
		Boosted:      d.Boosted,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrNoteNotFound,
		domain.ErrNotInitialized,
		domain.ErrProvider,
		domain.ErrConnectivity,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
