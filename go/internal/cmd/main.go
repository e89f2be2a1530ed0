package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res := resources{dbCfg: dbconfig.NewConfigFromEnv()}
	if cfg.Store.Driver == storePostgres {
		res.db, err = setupDatabase(ctx, res.dbCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to setup database")
		}
		defer res.db.Close()

		var pool *pgxpool.Pool
		pool, err = setupPool(ctx, res.dbCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to setup pgx pool")
		}
		defer pool.Close()
		res.pool = pool
	}

	services, err := setupServices(ctx, cfg, res, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Close()

	var wg sync.WaitGroup
	runBackground(ctx, &wg, services)

	server := setupServer(cfg, services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Driver).
			Bool("orchestrator", services.Orchestrator != nil).
			Bool("outbox", services.Relay != nil).
			Msg("draft server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down draft server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	if services.Relay != nil {
		if err := services.Relay.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop outbox relay")
		}
	}
	wg.Wait()
	log.Info().Msg("draft server stopped")
}

// runBackground starts the gateway broadcaster, the expiry scheduler and
// the outbox relay. Each stops when ctx is cancelled.
func runBackground(ctx context.Context, wg *sync.WaitGroup, services *Services) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Gateway.Start(ctx)
	}()

	if services.Orchestrator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := services.Orchestrator.RunScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("orchestrator scheduler stopped")
			}
		}()
	}

	// Worker.Start returns at once; Listener.Start blocks until ctx ends.
	if services.Relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := services.Relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay failed")
			}
		}()
	}
}
