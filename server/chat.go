package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/stream"
)

// doneSentinel terminates an SSE stream; websocket turns end with a done
// frame instead.
const doneSentinel = "[DONE]"

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

// normalize fills in a fresh thread id when the client did not send one.
func (c *chatRequest) normalize() {
	if c.ThreadID == "" {
		c.ThreadID = uuid.New().String()
	}
}

// handleChatStream runs one turn and streams its chunks as server-sent
// events: one `data:` line of JSON per chunk, then the [DONE] sentinel.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}
	req.normalize()

	userID, _ := core.UserFrom(r.Context())
	events, err := s.engine.RunTurn(r.Context(), userID, req.ThreadID, req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Thread-ID", req.ThreadID)
	w.WriteHeader(http.StatusOK)

	for chunk := range stream.Chunks(events, s.log) {
		payload, err := json.Marshal(chunk)
		if err != nil {
			s.log.Error("chunk marshal failed", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client is gone; the request context cancels the turn.
			s.log.Debug("sse write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
	fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
	flusher.Flush()
}

type socketFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
}

// handleChatSocket serves chat over a websocket. Each client text frame is a
// chatRequest; the server answers with the turn's chunks followed by a done
// frame, and keeps the connection open for the next turn.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userID, _ := core.UserFrom(r.Context())
	log := s.log.With(zap.String("user_id", userID))

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if req.Message == "" {
			if err := conn.WriteJSON(core.Chunk{Type: core.ChunkError, Message: "missing message"}); err != nil {
				return
			}
			continue
		}
		req.normalize()

		events, err := s.engine.RunTurn(r.Context(), userID, req.ThreadID, req.Message)
		if err != nil {
			if err := conn.WriteJSON(core.Chunk{Type: core.ChunkError, Message: err.Error()}); err != nil {
				return
			}
			continue
		}

		for chunk := range stream.Chunks(events, s.log) {
			if err := conn.WriteJSON(chunk); err != nil {
				log.Warn("websocket write failed", zap.Error(err))
				return
			}
		}
		if err := conn.WriteJSON(socketFrame{Type: "done", ThreadID: req.ThreadID}); err != nil {
			return
		}
	}
}
