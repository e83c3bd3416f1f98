package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/metrics"
	"github.com/MJE43/neon-arcade/internal/profile"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
	"github.com/MJE43/neon-arcade/internal/store"
)

// Rounds is the round manager as seen by the HTTP layer.
type Rounds interface {
	Games() []games.GameSpec
	PlaceBet(ctx context.Context, gameID string, params map[string]any, amount decimal.Decimal) (round.Snapshot, error)
	Step(ctx context.Context, roundID string, a games.Action) (round.Snapshot, error)
	Advance(ctx context.Context, roundID string) (round.Snapshot, error)
	Abandon(ctx context.Context, roundID string) (round.Snapshot, error)
	Round(roundID string) (round.Snapshot, error)
	Active() []round.Snapshot
}

type Wallet interface {
	Balance() decimal.Decimal
	Default() decimal.Decimal
	Reset(ctx context.Context) decimal.Decimal
}

// History is the persisted round log. Optional.
type History interface {
	Ping(ctx context.Context) error
	GetRound(ctx context.Context, id string) (*store.RoundRecord, error)
	ListRounds(ctx context.Context, query store.RoundsQuery) (*store.RoundsList, error)
	ListEntries(ctx context.Context, query store.EntriesQuery) (*store.EntriesPage, error)
}

type Preferences interface {
	Preferences(ctx context.Context) (profile.Preferences, error)
	SavePreferences(ctx context.Context, prefs profile.Preferences) error
}

// Autoplay is the scripting engine. Optional.
type Autoplay interface {
	Start(script string) error
	Stop() error
	GetState() scripting.EngineSnapshot
}

// Deps are the engine components the server exposes. Rounds and Wallet are
// required.
type Deps struct {
	Rounds      Rounds
	Wallet      Wallet
	History     History
	Preferences Preferences
	Autoplay    Autoplay
	Metrics     *metrics.Metrics
	Hub         *Hub
	Source      engine.Source
}

type Option func(*Server)

// WithAllowedOrigins sets the CORS and websocket origin allow-list. "*"
// allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// Server handles HTTP requests
type Server struct {
	deps         Deps
	errorHandler *ErrorHandler
	log          *zap.Logger
	origins      []string
	timeout      time.Duration
	startTime    time.Time
}

func NewServer(deps Deps, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		deps:         deps,
		errorHandler: NewErrorHandler(log),
		log:          log,
		timeout:      30 * time.Second,
		startTime:    time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.deps.Hub == nil {
		s.deps.Hub = NewHub(OriginChecker(s.origins), log)
	}

	log.Info("api server configured",
		zap.Int("games_available", len(deps.Rounds.Games())),
		zap.Bool("history_enabled", deps.History != nil),
		zap.Bool("autoplay_enabled", deps.Autoplay != nil),
	)
	return s
}

// Hub returns the websocket hub the server pushes events through.
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders: []string{"X-Engine-Version", "X-Error-Type"},
		MaxAge:         86400,
	}))

	// the websocket outlives any request timeout
	r.Get("/api/v1/ws", s.deps.Hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealthCheck)
		r.Get("/health/live", s.handleLiveness)
		if s.deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/version", s.handleVersion)
			r.Get("/games", s.handleListGames)
			r.Post("/games/{game}/rounds", s.handlePlaceBet)

			r.Get("/balance", s.handleBalance)
			r.Post("/balance/reset", s.handleResetBalance)
			r.Get("/ledger", s.handleListEntries)

			r.Get("/rounds", s.handleListRounds)
			r.Get("/rounds/{id}", s.handleGetRound)
			r.Post("/rounds/{id}/actions", s.handleStep)
			r.Post("/rounds/{id}/advance", s.handleAdvance)
			r.Post("/rounds/{id}/abandon", s.handleAbandon)

			r.Get("/preferences", s.handleGetPreferences)
			r.Put("/preferences", s.handlePutPreferences)

			r.Get("/autoplay", s.handleAutoplayState)
			r.Post("/autoplay", s.handleStartAutoplay)
			r.Delete("/autoplay", s.handleStopAutoplay)
		})
	})

	return r
}

// OriginChecker builds the websocket origin check for an allow-list. "*"
// allows any origin. Requests without an Origin header come from
// non-browser clients and are allowed, as are same-host requests.
func OriginChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// requestLogger logs each request at debug with its status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("bytes_written", ww.BytesWritten()),
		)
	})
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}
