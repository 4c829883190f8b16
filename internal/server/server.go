// Package server provides HTTP server initialization and lifecycle
// management for the Facet API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/facetlabs/facet/internal/agent"
	"github.com/facetlabs/facet/internal/config"
	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/sessions"
	"github.com/facetlabs/facet/web/handlers"
)

// Deps carries the wired application services the server exposes.
// Similarity and Agent may be nil; the matching endpoints then respond
// 501 and 404 respectively.
type Deps struct {
	Entities   *engine.Manager
	Similarity *engine.SimilarityService
	Agent      *agent.Agent
	Sessions   *sessions.Manager
}

// Start initializes and starts the HTTP server. Returns the actual
// listen address (useful for tests with port 0) and the websocket hub
// for wiring event broadcasts. The server shuts down gracefully when ctx
// is cancelled.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub, error) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	rateLimiter := handlers.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)

	entityHandlers := handlers.NewEntityHandlers(deps.Entities, deps.Similarity, wsHub)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entityHandlers.ReadEntities(w, r)
		case http.MethodPost:
			entityHandlers.CreateEntities(w, r)
		case http.MethodPut:
			entityHandlers.UpdateEntity(w, r)
		case http.MethodDelete:
			entityHandlers.DeleteEntities(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/entities/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entityHandlers.DetectRelationships(w, r)
	})
	apiMux.HandleFunc("/api/entities/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entityHandlers.RelationshipSummary(w, r)
	})
	apiMux.HandleFunc("/api/entities/similar", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entityHandlers.SimilarEntities(w, r)
	})

	if deps.Agent != nil {
		chatHandlers := handlers.NewChatHandlers(deps.Agent, deps.Sessions)
		apiMux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			chatHandlers.Chat(w, r)
		})
		apiMux.HandleFunc("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				chatHandlers.GetSession(w, r)
			case http.MethodDelete:
				chatHandlers.DeleteSession(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		})
	}

	// Health endpoint stays outside auth; monitors probe it unauthenticated.
	mux.HandleFunc("/api/health", handlers.Health)
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg.Security.APIToken))
	mux.Handle("/ws", wsHub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeaders(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	log.Printf("server: listening on %s", actualAddr)
	return actualAddr, wsHub, nil
}
