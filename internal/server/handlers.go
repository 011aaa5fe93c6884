package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/sokinpui/sitepatch/internal/render"
	"github.com/sokinpui/sitepatch/model"
)

type handler struct {
	project Project
	logger  *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Files  int    `json:"files"`
}

type fileEntry struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

type turnResponse struct {
	model.Summary
	MessageHTML string           `json:"message_html,omitempty"`
	Snippets    []render.Snippet `json:"snippets,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Health handles GET /health
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Files: len(h.project.Files())})
}

// ListFiles handles GET /files
func (h *handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files := h.project.Files()
	entries := make([]fileEntry, len(files))
	for i, f := range files {
		entries[i] = fileEntry{Path: f.Path, Bytes: len(f.Content)}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetFile handles GET /files/*. The current content is served with a content
// type guessed from the extension, so an index page can be previewed in a
// browser with its relative assets.
func (h *handler) GetFile(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	f, ok := h.project.File(p)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found: "+p)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(f.Path))
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(f.Content))
}

// RunTurn handles POST /turns. The request body is the model response stream;
// it is consumed as it arrives and the turn summary is returned when it ends.
func (h *handler) RunTurn(w http.ResponseWriter, r *http.Request) {
	summary, err := h.project.RunTurn(r.Context(), r.Body)
	resp := turnResponse{Summary: summary}

	if summary.Message != "" {
		if html, rerr := render.MessageHTML(summary.Message); rerr == nil {
			resp.MessageHTML = html
		} else {
			h.logger.Warn("render message", "turn", summary.TurnID, "error", rerr)
		}
		if snippets, rerr := render.Snippets(summary.Message); rerr == nil {
			resp.Snippets = snippets
		}
	}

	var streamErr *model.StreamError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &streamErr):
		resp.Error = streamErr.MessageError
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// Undo handles POST /undo
func (h *handler) Undo(w http.ResponseWriter, r *http.Request) {
	summary, err := h.project.Undo()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Redo handles POST /redo
func (h *handler) Redo(w http.ResponseWriter, r *http.Request) {
	summary, err := h.project.Redo()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
