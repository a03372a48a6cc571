/*
Package handler provides the HTTP handlers and routing setup for the chat server's admin surface.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
)

const (
	APIRate  = 5
	APIBurst = 20
)

// Router sets up the main HTTP routing table (chi.Router) for the admin surface.
// The returned stop function ends the API rate limiter's cleanup goroutine.
func Router(deps *AppDeps) (http.Handler, func()) {
	apiLimiter := limiter.NewIPRateLimiter(rate.Limit(APIRate), APIBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  protocol.FrameSize,
		WriteBufferSize: protocol.FrameSize,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	// proxy headers are client-controlled unless a trusted proxy rewrites them
	if deps.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "relaychat",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware)

		api.Get("/stats", HandleStats(deps))
		api.Get("/channels", HandleListChannels(deps))
		api.Get("/channels/{id}", HandleGetChannel(deps))
		api.Get("/users", HandleListUsers(deps))
		api.Post("/users/{id}/kick", HandleKickUser(deps))
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r, apiLimiter.Stop
}
