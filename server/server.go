// Package server exposes a small read-only HTTP surface over the feed
// service: health, the monitored feed set and on-demand dumps.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/feedbot/pkg/feed"
)

// FeedService is the command surface the server reads from.
type FeedService interface {
	Feeds() []*feed.Feed
	DumpFeed(ctx context.Context, feedName string, limit int) ([]feed.Entry, error)
}

// Server represents HTTP server instance
type Server struct {
	service FeedService
	listen  string
	timeout time.Duration
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// FeedInfo is the API form of a monitored feed.
type FeedInfo struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Filters []string `json:"filters"`
}

// New initializes a new server instance
func New(service FeedService, listen string, timeout time.Duration, version string, debug bool) *Server {
	s := &Server{
		service: service,
		listen:  listen,
		timeout: timeout,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] starting server on %s", s.listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      s.router,
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.lock.Lock()
		defer s.lock.Unlock()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("feedbot", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /feeds", s.feedsHandler)
		r.HandleFunc("GET /feeds/{name}/entries", s.entriesHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"feeds":   len(s.service.Feeds()),
		"time":    time.Now().UTC(),
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// feedsHandler lists the monitored feeds with their filter chains
func (s *Server) feedsHandler(w http.ResponseWriter, r *http.Request) {
	feeds := s.service.Feeds()
	infos := make([]FeedInfo, 0, len(feeds))
	for _, f := range feeds {
		filters := make([]string, 0, len(f.Filters()))
		for _, flt := range f.Filters() {
			filters = append(filters, flt.Describe())
		}
		infos = append(infos, FeedInfo{Name: f.Name, URL: f.URL, Filters: filters})
	}
	RenderJSON(w, r, http.StatusOK, infos)
}

// entriesHandler dumps new entries for one feed, optional ?limit=n
func (s *Server) entriesHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RenderError(w, r, errors.New("limit must be a non-negative number"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.service.DumpFeed(r.Context(), name, limit)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, feed.ErrUnknownFeed) {
			code = http.StatusNotFound
		}
		RenderError(w, r, err, code)
		return
	}
	RenderJSON(w, r, http.StatusOK, entries)
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
