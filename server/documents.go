package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
)

type ingestRequest struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// handleIngest adds a plain-text document to the caller's index. Pages are
// form-feed separated; the uploading collaborator converts PDFs to that shape
// before posting.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "filename and content are required")
		return
	}
	if req.DocID == "" {
		req.DocID = uuid.New().String()
	}

	userID, _ := core.UserFrom(r.Context())
	chunks, err := s.index.Ingest(r.Context(), userID, req.DocID, req.Filename, []byte(req.Content))
	if err != nil {
		s.log.Error("ingestion failed",
			zap.String("user_id", userID),
			zap.String("filename", req.Filename),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id": req.DocID,
		"chunks": chunks,
	})
}
