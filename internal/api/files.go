package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/figwatch/figwatch/internal/watch"
)

type FilesHandler struct {
	Watch WatchService
}

type fileListResponse struct {
	Items []watch.FileStatus `json:"items"`
	Total int                `json:"total"`
}

type resetCommentsResponse struct {
	FileKey string `json:"file_key"`
	Reset   bool   `json:"reset"`
}

// List returns every tracked file with its baselines and subscriber
// counts.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.Watch.Files()
	sendJSON(w, http.StatusOK, fileListResponse{Items: items, Total: len(items)})
}

// ResetComments clears a file's seen-comment set so the next sweep
// reports every current comment again.
func (h *FilesHandler) ResetComments(w http.ResponseWriter, r *http.Request) {
	fileKey := strings.TrimSpace(chi.URLParam(r, "fileKey"))
	if fileKey == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "file key is required"})
		return
	}

	if !h.Watch.ResetFileComments(r.Context(), fileKey) {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "file is not comment-tracked"})
		return
	}
	sendJSON(w, http.StatusOK, resetCommentsResponse{FileKey: fileKey, Reset: true})
}
