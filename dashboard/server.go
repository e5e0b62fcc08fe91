package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pvb-go/utils"
)

// StatsProvider is the read side of the analytics store.
type StatsProvider interface {
	CommandStats(ctx context.Context, since time.Time) ([]CommandStat, error)
	OutcomeStats(ctx context.Context, since time.Time) ([]OutcomeStat, error)
	ActivityStats(ctx context.Context, since time.Time) ([]ActivityBucket, error)
}

const (
	statsWindow   = 7 * 24 * time.Hour
	statsCacheTTL = 30 * time.Second
)

// Server exposes the dashboard endpoints. With a nil provider only /health
// is live; the stats routes answer 503.
type Server struct {
	stats StatsProvider
	log   zerolog.Logger
	cache *utils.Cache[json.RawMessage]

	httpSrv *http.Server
}

func NewServer(addr string, stats StatsProvider, log zerolog.Logger) *Server {
	s := &Server{
		stats: stats,
		log:   log.With().Str("component", "dashboard").Logger(),
		cache: utils.NewCache[json.RawMessage](statsCacheTTL),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/health", s.handleHealth)
	r.Get("/api/stats/commands", s.handleCommands)
	r.Get("/api/stats/outcomes", s.handleOutcomes)
	r.Get("/api/stats/activity", s.handleActivity)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("dashboard listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cache.Close()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"analytics": s.stats != nil,
	})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	s.serveStats(w, r, "commands", func(ctx context.Context, since time.Time) (any, error) {
		return s.stats.CommandStats(ctx, since)
	})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	s.serveStats(w, r, "outcomes", func(ctx context.Context, since time.Time) (any, error) {
		return s.stats.OutcomeStats(ctx, since)
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.serveStats(w, r, "activity", func(ctx context.Context, since time.Time) (any, error) {
		return s.stats.ActivityStats(ctx, since)
	})
}

// serveStats memoizes each aggregate briefly so dashboard polling cannot
// hammer the database.
func (s *Server) serveStats(w http.ResponseWriter, r *http.Request, key string, fetch func(context.Context, time.Time) (any, error)) {
	if s.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics store not configured"})
		return
	}

	body, err := s.cache.GetOrFill(key, func() (json.RawMessage, error) {
		data, err := fetch(r.Context(), time.Now().Add(-statsWindow))
		if err != nil {
			return nil, err
		}
		return json.Marshal(data)
	})
	if err != nil {
		s.log.Error().Err(err).Str("stat", key).Msg("stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats query failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
