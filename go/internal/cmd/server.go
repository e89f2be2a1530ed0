package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Draft-Error-Kind", "Connect-Protocol-Version"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// connect RPC surface, guarded by the same tokens as the gateway
	sessionPath, sessionHandler := services.RPC.Handler(
		connect.WithInterceptors(session.NewAuthInterceptor(services.Auth)),
	)
	mux.Handle(sessionPath, sessionHandler)

	// REST polling, pick submission and websockets
	gatewayRouter := services.Gateway.Router()
	mux.Handle("/api/", gatewayRouter)
	mux.Handle("/ws/", gatewayRouter)
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	if services.OutboxHealth != nil {
		mux.Handle("/outbox/health", services.OutboxHealth)
		mux.Handle("/outbox/metrics", services.OutboxHealth.MetricsHandler())
	}
}
