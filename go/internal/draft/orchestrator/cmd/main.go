package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/draft/orchestrator"
	"github.com/mcdev12/leaguedraft/go/internal/draft/outbox"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const consumerName = "draft-orchestrator"

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	draftServiceURL := getEnv("DRAFT_SERVICE_URL", "http://localhost:8080")
	natsURL := os.Getenv("NATS_URL")

	log.Info().
		Str("draft_service_url", draftServiceURL).
		Str("nats_url", natsURL).
		Msg("starting draft orchestrator")

	// The engine lives in the draft server; expiries go over connect.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	authn := auth.NewAuthenticator(os.Getenv("JWT_SECRET"), nil)
	engine := session.NewClient(httpClient, draftServiceURL, session.WithServiceAuth(authn, consumerName))

	cfg := orchestrator.DefaultConfig()
	cfg.BatchSize = getEnvAsInt("ORCHESTRATOR_BATCH_SIZE", cfg.BatchSize)
	cfg.NumWorkers = getEnvAsInt("ORCHESTRATOR_WORKERS", cfg.NumWorkers)
	if d, err := time.ParseDuration(os.Getenv("ORCHESTRATOR_IDLE_POLL")); err == nil {
		cfg.IdlePoll = d
	}
	orch := orchestrator.NewOrchestrator(engine, cfg, clockwork.NewRealClock())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- orch.RunScheduler(ctx)
	}()

	// Without NATS the scheduler still finds new deadlines on its idle poll.
	if natsURL != "" {
		if err := startEventConsumer(ctx, natsURL, orch); err != nil {
			log.Fatal().Err(err).Msg("failed to setup event consumer")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	server := &http.Server{
		Addr:         ":" + getEnv("ORCHESTRATOR_HEALTH_PORT", "8082"),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-schedulerDone:
		log.Error().Err(err).Msg("orchestrator scheduler failed")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}
	log.Info().Msg("draft orchestrator stopped")
}

// startEventConsumer wakes the scheduler from the shared durable consumer
// whenever a pick timer is armed.
func startEventConsumer(ctx context.Context, natsURL string, orch *orchestrator.Orchestrator) error {
	jsCfg := outbox.DefaultJetStreamConfig()
	nc, err := outbox.Connect(natsURL, jsCfg.MaxReconnects, jsCfg.ReconnectWait, consumerName)
	if err != nil {
		return err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return err
	}

	consumer, err := outbox.NewEventConsumer(ctx, js, outbox.DefaultConsumerConfig(consumerName), orch.HandleEvent)
	if err != nil {
		nc.Close()
		return err
	}

	go func() {
		defer nc.Close()
		log.Info().Msg("starting NATS event consumer")
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("NATS event consumer failed")
		}
	}()
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
