package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/flow"
)

const maxPostLimit = 100

type handlers struct {
	engine *quill.Engine
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.engine.GetUser(r.Context(), externalIDFromContext(r.Context()))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handlers) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.engine.ListChannels(r.Context(), externalIDFromContext(r.Context()))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if channels == nil {
		channels = []quill.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (h *handlers) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.engine.ResolveChannel(r.Context(), externalIDFromContext(r.Context()), r.PathValue("channelID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handlers) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 0)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPostLimit {
		limit = maxPostLimit
	}
	posts, err := h.engine.RecentPosts(r.Context(), externalIDFromContext(r.Context()), r.PathValue("channelID"), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if posts == nil {
		posts = []quill.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *handlers) handlePost(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(r.PathValue("postID"), 10, 64)
	if err != nil || postID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	post, err := h.engine.GetPost(r.Context(), externalIDFromContext(r.Context()), postID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// parseIntParam parses a query parameter as int, returning def when absent
// and -1 when malformed.
func parseIntParam(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return -1
	}
	return v
}

func writeEngineError(w http.ResponseWriter, err error) {
	var nf *flow.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
