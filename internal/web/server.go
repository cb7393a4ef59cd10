// Package web serves the HTTP chat API: question answering over the
// ingested collections, assessment question generation, model chain
// inspection and switching, collection listing, health probes, and a
// websocket variant of chat with status updates.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banglarag/banglarag/internal/health"
	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/rag"
	"github.com/banglarag/banglarag/pkg/docstore"
)

// Answerer answers one question against a collection. *rag.Processor
// satisfies it.
type Answerer interface {
	AnswerIn(ctx context.Context, question, collection string) (rag.Answer, error)
}

// QuestionGenerator writes assessment questions over the ingested material.
// *rag.Processor satisfies it.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req rag.QuestionRequest) ([]rag.Question, error)
}

// ModelChain exposes the LLM fallback chain for the model endpoints.
// *resilience.LLMFallback satisfies it.
type ModelChain interface {
	Entries() []string
	ActiveIndex() int
	SetPreferred(name string) error
}

// CollectionLister lists collections with document counts. Any
// docstore.Store satisfies it.
type CollectionLister interface {
	Collections(ctx context.Context) ([]docstore.CollectionInfo, error)
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithModelChain enables the /api/models endpoints.
func WithModelChain(c ModelChain) Option {
	return func(s *Server) { s.models = c }
}

// WithQuestionGenerator enables the /api/questions endpoint.
func WithQuestionGenerator(g QuestionGenerator) Option {
	return func(s *Server) { s.questions = g }
}

// WithCollections enables the /api/collections endpoint.
func WithCollections(l CollectionLister) Option {
	return func(s *Server) { s.collections = l }
}

// WithHealth mounts /healthz and /readyz from the given handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics enables the request-duration middleware and the /metrics
// endpoint.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAllowedOrigins restricts CORS and websocket origins. Default: all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// Server is the HTTP API. Build the handler with [Server.Router].
type Server struct {
	answerer    Answerer
	questions   QuestionGenerator
	models      ModelChain
	collections CollectionLister
	health      *health.Handler
	metrics     *observe.Metrics
	logger      *slog.Logger
	origins     []string
}

// New creates a Server around the answering pipeline. Everything else is
// optional: endpoints whose collaborator is absent respond 503.
func New(answerer Answerer, opts ...Option) *Server {
	s := &Server{
		answerer: answerer,
		logger:   slog.Default(),
		origins:  []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router assembles the chi router with all mounted endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", s.handleChat)
		api.Get("/chat/ws", s.handleChatWS)
		api.Post("/questions", s.handleGenerateQuestions)
		api.Get("/models", s.handleGetModels)
		api.Post("/models", s.handleSetModel)
		api.Get("/collections", s.handleCollections)
	})

	if s.health != nil {
		r.Get("/healthz", s.health.Healthz)
		r.Get("/readyz", s.health.Readyz)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	return r
}

type chatRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection"`
}

type chatResponse struct {
	rag.Answer
	Success bool `json:"success"`
}

type modelsResponse struct {
	Models  []string `json:"models"`
	Active  int      `json:"active"`
	Success bool     `json:"success"`
}

type setModelRequest struct {
	Model string `json:"model"`
}

type collectionsResponse struct {
	Collections []docstore.CollectionInfo `json:"collections"`
	Success     bool                      `json:"success"`
}

type questionsResponse struct {
	Questions []rag.Question `json:"questions"`
	Count     int            `json:"count"`
	Success   bool           `json:"success"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.answerer.AnswerIn(r.Context(), req.Question, req.Collection)
	if err != nil {
		s.logger.Error("chat request failed", "error", err, "collection", req.Collection)
		writeError(w, http.StatusInternalServerError, "failed to generate an answer")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Success: true})
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	if s.questions == nil {
		writeError(w, http.StatusServiceUnavailable, "question generation is not configured")
		return
	}
	var req rag.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	questions, err := s.questions.GenerateQuestions(r.Context(), req)
	switch {
	case errors.Is(err, rag.ErrNoContent):
		writeError(w, http.StatusNotFound, "no course content found for question generation")
		return
	case errors.Is(err, rag.ErrUnparsableQuestions):
		writeError(w, http.StatusInternalServerError,
			"the model generated an invalid format, try again with different settings")
		return
	case err != nil:
		s.logger.Error("question generation failed", "error", err, "topic", req.Topic)
		writeError(w, http.StatusInternalServerError, "failed to generate questions")
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{
		Questions: questions,
		Count:     len(questions),
		Success:   true,
	})
}

func (s *Server) handleGetModels(w http.ResponseWriter, _ *http.Request) {
	if s.models == nil {
		writeError(w, http.StatusServiceUnavailable, "model switching is not configured")
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{
		Models:  s.models.Entries(),
		Active:  s.models.ActiveIndex(),
		Success: true,
	})
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		writeError(w, http.StatusServiceUnavailable, "model switching is not configured")
		return
	}
	var req setModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model name is required")
		return
	}
	if err := s.models.SetPreferred(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("preferred model switched", "model", req.Model)
	writeJSON(w, http.StatusOK, modelsResponse{
		Models:  s.models.Entries(),
		Active:  s.models.ActiveIndex(),
		Success: true,
	})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		writeError(w, http.StatusServiceUnavailable, "document store is not configured")
		return
	}
	infos, err := s.collections.Collections(r.Context())
	if err != nil {
		s.logger.Error("collection listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list collections")
		return
	}
	writeJSON(w, http.StatusOK, collectionsResponse{Collections: infos, Success: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
