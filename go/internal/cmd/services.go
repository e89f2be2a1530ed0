package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/dbconfig"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/draft/gateway"
	"github.com/mcdev12/leaguedraft/go/internal/draft/orchestrator"
	"github.com/mcdev12/leaguedraft/go/internal/draft/outbox"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/mcdev12/leaguedraft/go/internal/roster"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// relayRunner is an outbox Worker or Listener.
type relayRunner interface {
	outbox.RelayStats
	Start(ctx context.Context) error
	Stop() error
}

type Services struct {
	Auth         *auth.Authenticator // disabled when no JWT secret is set
	Session      *session.App
	RPC          *session.Service
	Gateway      *gateway.Service
	Orchestrator *orchestrator.Orchestrator // nil when disabled
	Relay        relayRunner                // nil when disabled
	OutboxHealth *outbox.HealthChecker      // nil when the relay is disabled

	closers []func() error
}

// Close releases publisher connections.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error().Err(err).Msg("failed to close resource")
		}
	}
}

// resources are the database handles main opened. Both are nil with the
// memory store.
type resources struct {
	db    *sql.DB
	pool  *pgxpool.Pool
	dbCfg dbconfig.Config
}

func setupServices(ctx context.Context, cfg *Config, res resources, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App → transports (connect, gateway) → background loops
	services := &Services{}

	var (
		store session.Store
		repo  outbox.Repository
	)
	switch cfg.Store.Driver {
	case storePostgres:
		pgStore := session.NewPostgresStore(res.db)
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, err
		}
		store = pgStore
		repo = outbox.NewPostgresRepository(res.db)
	default:
		memStore := session.NewMemoryStore()
		store = memStore
		repo = memStore
	}

	directory, err := setupDirectory(ctx, cfg, res)
	if err != nil {
		return nil, err
	}

	// The orchestrator and the gateway are notified in-process; the
	// orchestrator is bound after the App exists.
	gwCfg := gateway.DefaultConfig()
	gwCfg.JWTSecret = cfg.Gateway.JWTSecret
	connections := gwCfg.NewManager()

	var orch *orchestrator.Orchestrator
	wake := session.NotifierFunc(func(ctx context.Context, evts []events.Event) {
		if orch != nil {
			orch.Notifier().Notify(ctx, evts)
		}
	})

	opts := []session.Option{
		session.WithConfig(session.Config{
			LateGrace:         cfg.Engine.LateGrace,
			RecentPicksWindow: cfg.Engine.RecentPicksWindow,
			MaxCommitAttempts: cfg.Engine.MaxCommitAttempts,
		}),
		session.WithNotifier(connections.Notifier()),
		session.WithNotifier(wake),
		session.WithAutoPickStrategy(session.StrategyByName(cfg.Engine.AutoPick)),
	}

	services.Auth = auth.NewAuthenticator(cfg.Gateway.JWTSecret, clock)

	app := session.NewApp(store, directory, clock, opts...)
	services.Session = app
	services.RPC = session.NewService(app)
	services.Gateway = gateway.NewService(gwCfg, connections, app, clock)

	if cfg.Orchestrator.Enabled {
		orch = orchestrator.NewOrchestrator(app, orchestrator.Config{
			BatchSize:       cfg.Orchestrator.BatchSize,
			NumWorkers:      cfg.Orchestrator.NumWorkers,
			IdlePoll:        cfg.Orchestrator.IdlePoll,
			MaxFetchRetries: orchestrator.DefaultConfig().MaxFetchRetries,
		}, clock)
		services.Orchestrator = orch
	}

	if cfg.Outbox.Enabled {
		if err := setupRelay(ctx, cfg, res, repo, clock, services); err != nil {
			services.Close()
			return nil, err
		}
	}

	return services, nil
}

// setupDirectory picks the roster source: a YAML players file, the
// draft_players table, or none (pool membership only).
func setupDirectory(ctx context.Context, cfg *Config, res resources) (roster.Directory, error) {
	if cfg.Roster.PlayersFile != "" {
		players, err := roster.LoadPlayersFile(cfg.Roster.PlayersFile)
		if err != nil {
			return nil, err
		}
		log.Info().Int("players", len(players)).Str("file", cfg.Roster.PlayersFile).Msg("loaded static player directory")
		return roster.NewStaticDirectory(players), nil
	}
	if res.pool != nil {
		dir := roster.NewPostgresDirectory(res.pool)
		if err := dir.Migrate(ctx); err != nil {
			return nil, err
		}
		return dir, nil
	}
	return nil, nil
}

func setupRelay(ctx context.Context, cfg *Config, res resources, repo outbox.Repository, clock clockwork.Clock, services *Services) error {
	var (
		publisher outbox.Publisher = outbox.LogPublisher{}
		natsConn  *nats.Conn
	)
	if cfg.NATS.URL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsPub, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return err
		}
		services.closers = append(services.closers, jsPub.Close)
		publisher = jsPub
		natsConn = jsPub.Conn()
	}

	counters := outbox.NewCounters()
	switch cfg.Outbox.Mode {
	case relayListen:
		lcfg := outbox.DefaultListenerConfig()
		lcfg.DatabaseURL = res.dbCfg.DSN()
		lcfg.BatchSize = cfg.Outbox.BatchSize
		listener, err := outbox.NewListener(res.db, publisher, lcfg, counters)
		if err != nil {
			return fmt.Errorf("failed to create outbox listener: %w", err)
		}
		services.Relay = listener
	default:
		wcfg := outbox.DefaultConfig()
		wcfg.PollInterval = cfg.Outbox.PollInterval
		wcfg.BatchSize = cfg.Outbox.BatchSize
		services.Relay = outbox.NewWorker(repo, publisher, wcfg, counters, clock)
	}

	services.OutboxHealth = outbox.NewHealthChecker(services.Relay, repo, natsConn, counters, clock, 5*cfg.Outbox.PollInterval)
	return nil
}
