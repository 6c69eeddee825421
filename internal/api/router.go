// Package api is the HTTP surface: health, status, subscription CRUD,
// tracked-file listing, manual poll triggering, and the WebSocket
// upgrade. Everything speaks JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/figwatch/figwatch/internal/poller"
	"github.com/figwatch/figwatch/internal/watch"
	"github.com/figwatch/figwatch/internal/ws"
)

var startTime = time.Now()

// WatchService is the command layer the API fronts.
type WatchService interface {
	Subscribe(ctx context.Context, subscriber, fileKey string) (*watch.SubscribeResult, error)
	Unsubscribe(ctx context.Context, subscriber, fileKey string) bool
	SubscribeComments(ctx context.Context, subscriber, fileKey string) (*watch.CommentSubscribeResult, error)
	UnsubscribeComments(ctx context.Context, subscriber, fileKey string) bool
	ResetFileComments(ctx context.Context, fileKey string) bool
	List(ctx context.Context, subscriber string) []watch.Subscription
	Files() []watch.FileStatus
	Overview() watch.Overview
}

// CycleRunner triggers one poll cycle now. Cycles are serialized by the
// runner itself; a trigger during a scheduled cycle waits its turn.
type CycleRunner interface {
	RunOnce(ctx context.Context) (*poller.CycleResult, error)
}

// Deps carries what the HTTP surface serves. The hub must already be
// running; the router never starts it.
type Deps struct {
	Watch  WatchService
	Poller CycleRunner
	Hub    *ws.Hub
}

// Config carries the router knobs.
type Config struct {
	// AuthToken guards the /api routes when set. Empty means open.
	AuthToken string
	// CORSOrigins overrides the wide-open default.
	CORSOrigins []string
}

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func NewRouter(deps Deps, cfg Config) http.Handler {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot)

	// The upgrade happens before auth; browsers cannot set an
	// Authorization header on a WebSocket dial. Origin gating lives in
	// the ws package.
	if deps.Hub != nil {
		r.Handle("/api/ws", &ws.Handler{Hub: deps.Hub})
	}

	subscriptions := &SubscriptionsHandler{Watch: deps.Watch}
	files := &FilesHandler{Watch: deps.Watch}
	status := &StatusHandler{Watch: deps.Watch}
	poll := &PollHandler{Poller: deps.Poller}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.SetHeader("Content-Type", "application/json"))
		api.Use(requireToken(cfg.AuthToken))

		api.Get("/status", status.Status)
		api.Get("/subscriptions", subscriptions.List)
		api.Post("/subscriptions", subscriptions.Create)
		api.Delete("/subscriptions", subscriptions.Delete)
		api.Get("/files", files.List)
		api.Post("/files/{fileKey}/reset-comments", files.ResetComments)
		api.Post("/poll", poll.Run)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":   "figwatch",
		"health": "/health",
		"status": "/api/status",
	})
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}

type errorResponse struct {
	Error string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
