package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// JWTSecret enables bearer token checks on pick submission when set.
	JWTSecret string
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewManager builds the connection manager for cfg. It is separate from
// NewService so an in-process engine can be given cm.Notifier() before the
// service exists.
func (cfg Config) NewManager() *ConnectionManager {
	return NewConnectionManager(cfg.ConnectionConfig)
}

// Service bundles the REST handlers, the websocket fan-out and the router
// that exposes them.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	authn             *auth.Authenticator
}

// NewService wires the handlers around cm. A nil cm gets a fresh manager.
func NewService(cfg Config, cm *ConnectionManager, engine Engine, clock clockwork.Clock) *Service {
	if cm == nil {
		cm = cfg.NewManager()
	}
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, engine, clock),
		stateHandler:      NewStateHandler(engine),
		authn:             auth.NewAuthenticator(cfg.JWTSecret, clock),
	}
}

// Start runs the broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Bool("auth_enabled", s.authn.Enabled()).Msg("starting draft gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("draft gateway service stopped")
}

// HandleEvent broadcasts a consumed event. It has the signature of
// outbox.EventHandler.
func (s *Service) HandleEvent(ctx context.Context, evt events.Event) error {
	return s.connectionManager.HandleEvent(ctx, evt)
}

// Notifier broadcasts events committed by an in-process engine.
func (s *Service) Notifier() session.Notifier {
	return s.connectionManager.Notifier()
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Router builds the gateway routes.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/api/drafts/{id}", func(r chi.Router) {
		r.Get("/state", s.stateHandler.HandleGetDraftState)
		r.Get("/picks", s.stateHandler.HandleListPicks)
		r.With(requireToken(s.authn)).Post("/picks", s.stateHandler.HandleSubmitPick)
	})

	r.Get("/ws/draft", s.wsHandler.HandleDraftConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)

	return r
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Debug().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
