package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/cep-weather-assistant/internal/chat"
	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/session"
)

const maxRequestBytes = 16 << 10

// ChatService is the conversational backend behind the chat routes.
type ChatService interface {
	sharedobs.ReadinessChecker
	Handle(ctx context.Context, conversationID, text string) (chat.Reply, error)
	Conversation(id string) (domain.History, error)
}

// Server exposes the chat API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	chat       ChatService
	logger     *slog.Logger
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	domain.OutcomeView
}

type conversationResponse struct {
	ConversationID string         `json:"conversation_id"`
	Turns          domain.History `json:"turns"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates an HTTP server with /v1/chat, /v1/conversations/{id},
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, svc ChatService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// A turn may chain a classifier call and three provider calls.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		chat:   svc,
		logger: logger,
	}

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	start := time.Now()
	reply, err := s.chat.Handle(r.Context(), req.ConversationID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.logger.Error("chat turn failed", "conversation_id", req.ConversationID, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	s.logger.Info("chat turn handled",
		"conversation_id", reply.ConversationID,
		"action", reply.Outcome.Action,
		"duration", time.Since(start),
	)
	sharedobs.WriteJSON(w, http.StatusOK, chatResponse{
		ConversationID: reply.ConversationID,
		OutcomeView:    reply.Outcome.View(),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, err := s.chat.Conversation(id)
	if errors.Is(err, session.ErrUnknownConversation) {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
		return
	}
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, conversationResponse{ConversationID: id, Turns: turns})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
