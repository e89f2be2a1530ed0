package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/draft/gateway"
	"github.com/mcdev12/leaguedraft/go/internal/draft/outbox"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("GATEWAY_PORT", "8081")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	draftServiceURL := getEnv("DRAFT_SERVICE_URL", "http://localhost:8080")

	log.Info().
		Str("draft_service_url", draftServiceURL).
		Str("nats_url", natsURL).
		Str("port", port).
		Msg("starting draft gateway")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	authn := auth.NewAuthenticator(os.Getenv("JWT_SECRET"), nil)
	engine := session.NewClient(&http.Client{Timeout: 10 * time.Second}, draftServiceURL, session.WithServiceAuth(authn, "draft-gateway"))

	gwCfg := gateway.DefaultConfig()
	gwCfg.JWTSecret = os.Getenv("JWT_SECRET")
	gw := gateway.NewService(gwCfg, nil, engine, clockwork.NewRealClock())
	go gw.Start(ctx)

	// Each gateway replica needs every event, so the consumer is ephemeral.
	jsCfg := outbox.DefaultJetStreamConfig()
	nc, err := outbox.Connect(natsURL, jsCfg.MaxReconnects, jsCfg.ReconnectWait, "draft-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}
	consumer, err := outbox.NewEventConsumer(ctx, js, outbox.DefaultConsumerConfig(""), gw.HandleEvent)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	router := gw.Router()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down draft gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway server shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
