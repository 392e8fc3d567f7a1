// Package server exposes the conversation engine over HTTP: an SSE chat
// stream, a websocket chat stream, thread history, and document ingestion.
// Authentication is out of scope; callers identify themselves with the
// X-User-ID header set by the fronting proxy.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/engine"
	"github.com/mindloop/mindloop/index"
)

const userHeader = "X-User-ID"

// Server routes chat traffic to the engine and document uploads to the index.
type Server struct {
	engine   *engine.Engine
	index    *index.Manager
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server over eng and idx.
func New(eng *engine.Engine, idx *index.Manager, log *zap.Logger) *Server {
	return &Server{
		engine: eng,
		index:  idx,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.identified(s.handleChatStream))
	mux.HandleFunc("GET /ws/chat", s.identified(s.handleChatSocket))
	mux.HandleFunc("GET /api/history", s.identified(s.handleHistory))
	mux.HandleFunc("POST /api/documents", s.identified(s.handleIngest))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// identified rejects requests without a user identity and threads the
// identity through the request context.
func (s *Server) identified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next(w, r.WithContext(core.WithUser(r.Context(), userID)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type historyMessage struct {
	Role      core.Role     `json:"role"`
	Content   string        `json:"content"`
	Citations []core.Source `json:"citations,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := core.UserFrom(r.Context())
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "missing thread_id")
		return
	}

	msgs, err := s.engine.History(userID, threadID)
	if err != nil {
		s.log.Error("history read failed",
			zap.String("user_id", userID),
			zap.String("thread_id", threadID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			continue
		}
		out = append(out, historyMessage{Role: m.Role, Content: m.Content, Citations: m.Citations})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"messages":  out,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
