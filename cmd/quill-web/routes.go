package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/auth"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *quill.Engine, issuer *auth.Issuer, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	h := &handlers{engine: engine}

	mux.HandleFunc("GET /healthz", h.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/me", h.handleMe)
	api.HandleFunc("GET /api/channels", h.handleChannels)
	api.HandleFunc("GET /api/channels/{channelID}", h.handleChannel)
	api.HandleFunc("GET /api/channels/{channelID}/posts", h.handlePosts)
	api.HandleFunc("GET /api/posts/{postID}", h.handlePost)
	mux.Handle("/api/", requireToken(issuer, api))

	return logging(logger, recovery(logger, mux))
}
