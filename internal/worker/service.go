// Package worker runs the feels pipeline: it drains the event queue, persists
// and broadcasts thoughts, and serves the control API.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/feels/internal/config"
	gormdb "github.com/thebtf/feels/internal/db/gorm"
	"github.com/thebtf/feels/internal/worker/ws"
	"github.com/thebtf/feels/pkg/hooks"
	"github.com/thebtf/feels/pkg/models"
)

const (
	// MaxListLimit caps the limit query parameter.
	MaxListLimit = 500

	purgeMessage = "All data purged"
)

// ReactionCache is the part of the reaction cache the purge endpoint clears.
type ReactionCache interface {
	Clear() error
}

// FeedTracker is the part of the feed tailer the purge endpoint resets.
type FeedTracker interface {
	ForgetSessions()
	Reset(truncate func() error) error
}

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Version  string
	Config   *config.Config
	Store    ThoughtStore
	Hub      *ws.Hub
	Queue    *Queue
	Cache    ReactionCache
	Feed     FeedTracker
}

// Service serves the control API and the publish channel.
type Service struct {
	version   string
	config    *config.Config
	store     ThoughtStore
	hub       *ws.Hub
	queue     *Queue
	cache     ReactionCache
	feed      FeedTracker
	router    chi.Router
	startTime time.Time
	ready     atomic.Bool
}

// NewService creates a Service and its routes.
func NewService(opts ServiceOptions) *Service {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Hub == nil {
		opts.Hub = ws.NewHub()
	}
	if opts.Queue == nil {
		opts.Queue = NewQueue()
	}
	svc := &Service{
		version:   opts.Version,
		config:    opts.Config,
		store:     opts.Store,
		hub:       opts.Hub,
		queue:     opts.Queue,
		cache:     opts.Cache,
		feed:      opts.Feed,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(withCORS)

	s.router.Get("/", serveIndex)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/events", s.hub.HandleSSE)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Delete("/purge", s.handlePurge)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}/thoughts", s.handleSessionThoughts)
		r.Get("/stats", s.handleStats)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
}

// Router returns the control API handler.
func (s *Service) Router() http.Handler { return s.router }

// PublishHandler returns the handler for the publish port.
func (s *Service) PublishHandler() http.Handler {
	return s.hub.HandleWebSocket()
}

// SetReady marks the service as able to serve store-backed requests.
func (s *Service) SetReady(ready bool) { s.ready.Store(ready) }

// withCORS opens the API to any origin. OPTIONS on any path answers 200.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

// requireReady rejects store-backed requests until startup finished.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() || s.store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service not ready"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	WSPort        int    `json:"ws_port"`
	HTTPPort      int    `json:"http_port"`
	Clients       int    `json:"clients"`
	QueueDepth    int    `json:"queue_depth"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		WSPort:        s.config.WSPort,
		HTTPPort:      s.config.HTTPPort,
		Clients:       s.hub.ClientCount(),
		QueueDepth:    s.queue.Len(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// PurgeResponse is the body of DELETE /api/purge.
type PurgeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Service) handlePurge(w http.ResponseWriter, r *http.Request) {
	clearCache, _ := strconv.ParseBool(r.URL.Query().Get("cache"))
	if err := s.Purge(r.Context(), clearCache); err != nil {
		log.Error().Err(err).Msg("Purge failed")
		writeJSON(w, http.StatusInternalServerError, PurgeResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Success: true, Message: purgeMessage})
}

// Purge deletes all stored thoughts and sessions, optionally clears the
// reaction cache, truncates the feed and notifies viewers. It is best-effort:
// a failure part way leaves earlier steps applied.
func (s *Service) Purge(ctx context.Context, clearCache bool) error {
	if err := s.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge store: %w", err)
	}
	if clearCache && s.cache != nil {
		if err := s.cache.Clear(); err != nil {
			return fmt.Errorf("clear reaction cache: %w", err)
		}
	}
	dropped := s.queue.Clear()
	if err := s.resetFeed(); err != nil {
		return err
	}
	if s.feed != nil {
		s.feed.ForgetSessions()
	}

	log.Info().Bool("cache", clearCache).Int("dropped_queued", dropped).Msg("Data purged")
	s.hub.Broadcast(models.NewMessage(models.MessagePurge, map[string]string{"message": "Data purged"}))
	return nil
}

// resetFeed truncates the event feed. With a tailer attached the truncation
// runs under its read lock and the tailer restarts at offset 0.
func (s *Service) resetFeed() error {
	if s.config.FeedPath == "" {
		return nil
	}
	truncate := func() error { return hooks.TruncateFeed(s.config.FeedPath) }
	if s.feed == nil {
		return truncate()
	}
	return s.feed.Reset(truncate)
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := gormdb.ParseLimitParam(r, s.config.RecentSessionLimit, MaxListLimit)
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Service) handleSessionThoughts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := gormdb.ParseLimitParam(r, s.config.RecentSessionLimit, MaxListLimit)
	thoughts, err := s.store.RecentThoughts(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("session", id).Msg("Failed to load thoughts")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "thoughts": thoughts})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.currentStats(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// currentStats returns stats for sessionID, or for the latest active session.
func (s *Service) currentStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	if sessionID == "" {
		latest, err := s.store.LatestSessionID(ctx)
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return models.EmptyStats(models.DefaultSessionID), nil
		}
		sessionID = latest
	}
	return s.store.SessionStats(ctx, sessionID)
}

// StatsMessage builds the periodic stats frame.
func (s *Service) StatsMessage(ctx context.Context) (any, error) {
	if s.store == nil {
		return nil, errors.New("no store")
	}
	stats, err := s.currentStats(ctx, "")
	if err != nil {
		return nil, err
	}
	return models.NewMessage(models.MessageStats, stats), nil
}

// Serve binds both ports and serves until ctx is cancelled. A bind failure
// is returned immediately.
func (s *Service) Serve(ctx context.Context) error {
	host := s.config.Host
	httpLn, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.config.HTTPPort)))
	if err != nil {
		return fmt.Errorf("bind http port %d: %w", s.config.HTTPPort, err)
	}
	wsLn, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.config.WSPort)))
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("bind websocket port %d: %w", s.config.WSPort, err)
	}

	servers := []*http.Server{
		{Handler: s.router, ReadHeaderTimeout: 5 * time.Second},
		{Handler: s.PublishHandler(), ReadHeaderTimeout: 5 * time.Second},
	}
	listeners := []net.Listener{httpLn, wsLn}

	g, gctx := errgroup.WithContext(ctx)
	for i := range servers {
		srv, ln := servers[i], listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		s.hub.Heartbeat(gctx, s.config.StatsInterval(), s.StatsMessage)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	log.Info().
		Int("http_port", s.config.HTTPPort).
		Int("ws_port", s.config.WSPort).
		Msg("Serving control API and publish channel")
	return g.Wait()
}
