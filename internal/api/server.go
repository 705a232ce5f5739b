package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// Options tunes a Server. Zero values are usable.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	// WelcomeBonus is granted the first time an account is seen.
	WelcomeBonus int64
	// SimWorkers sizes the simulation worker pool; 0 uses GOMAXPROCS.
	SimWorkers int
}

// Server handles HTTP requests
type Server struct {
	db           store.DB
	vault        *seedvault.Vault
	sim          *simulate.Simulator
	live         *registry
	errorHandler *ErrorHandler
	logger       zerolog.Logger
	opts         Options
	startTime    time.Time
	httpServer   *http.Server

	// startMu serialises session starts with each other and with seed
	// rotation, so neither a daily gate nor a commitment can be raced.
	startMu   sync.Mutex
	welcomeMu sync.Mutex
}

// NewServer creates a new API server
func NewServer(db store.DB, vault *seedvault.Vault, logger zerolog.Logger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	logger = logger.With().Str("component", "api").Logger()

	server := &Server{
		db:           db,
		vault:        vault,
		sim:          simulate.New(logger, opts.SimWorkers),
		live:         newRegistry(),
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		opts:         opts,
		startTime:    time.Now(),
	}

	logger.Info().
		Int("games_available", len(games.ListGames())).
		Bool("database_enabled", db != nil).
		Int64("welcome_bonus", opts.WelcomeBonus).
		Str("engine_version", EngineVersion).
		Msg("system_startup")

	return server
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(corsHandler(s.opts.CORSOrigins))

	// Health and monitoring endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Get("/games/{id}", s.handleGetGame)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleStartSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/resolve", s.handleResolve)
			r.Post("/outcome", s.handleOutcome)
			r.Post("/tick", s.handleTick)
			r.Post("/end", s.handleEnd)
			r.Get("/summary", s.handleSummary)
			r.Get("/rounds", s.handleRounds)
			r.Get("/rounds.csv", s.handleRoundsExport)
		})

		r.Get("/accounts/{id}/balance", s.handleBalance)
		r.Post("/accounts/{id}/grant", s.handleGrant)
		r.Post("/accounts/{id}/rotate", s.handleRotate)

		r.Post("/verify", s.handleVerify)
		r.Post("/simulate", s.handleSimulate)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched. It writes the error response itself and reports false on
// failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON format: "+err.Error())
	return false
}

// fail writes err, as a validation error when it names a field.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, context map[string]interface{}) {
	var fe *fieldError
	if errors.As(err, &fe) {
		s.errorHandler.HandleValidationError(w, r, fe.field, fe.message)
		return
	}
	s.errorHandler.HandleError(w, r, err, context)
}

// pageParams reads page and per_page from the query string.
func pageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage > 500 {
		perPage = 500
	}
	return page, perPage
}

// welcome grants the welcome bonus to accounts the ledger has not seen.
func (s *Server) welcome(account string) error {
	if s.opts.WelcomeBonus <= 0 {
		return nil
	}
	s.welcomeMu.Lock()
	defer s.welcomeMu.Unlock()

	seen, err := s.db.HasAccount(account)
	if err != nil || seen {
		return err
	}
	if err := store.Grant(s.db, account, s.opts.WelcomeBonus); err != nil {
		return err
	}
	s.logger.Info().Str("account", account).Int64("amount", s.opts.WelcomeBonus).Msg("welcome_bonus_granted")
	return nil
}
