package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/outbox"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerWiring(t *testing.T) {
	ctx := context.Background()
	cfg, err := loadConfig("")
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC))
	services, err := setupServices(ctx, cfg, resources{}, clock)
	require.NoError(t, err)
	defer services.Close()

	require.NotNil(t, services.Orchestrator)
	require.IsType(t, &outbox.Worker{}, services.Relay)
	require.NotNil(t, services.OutboxHealth)

	srv := httptest.NewServer(setupServer(cfg, services).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	client := session.NewClient(srv.Client(), srv.URL)
	teams := []uuid.UUID{uuid.New(), uuid.New()}
	created, err := client.CreateSession(ctx, session.CreateSessionRequest{
		LeagueID:         uuid.New(),
		SeasonID:         uuid.New(),
		Teams:            teams,
		TotalRounds:      2,
		PickTimerSeconds: 45,
		PlayerPool:       []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()},
	})
	require.NoError(t, err)
	_, err = client.StartSession(ctx, created.ID)
	require.NoError(t, err)

	stateResp, err := http.Get(srv.URL + "/api/drafts/" + created.ID.String() + "/state")
	require.NoError(t, err)
	defer stateResp.Body.Close()
	require.Equal(t, http.StatusOK, stateResp.StatusCode)

	var status session.Status
	require.NoError(t, json.NewDecoder(stateResp.Body).Decode(&status))
	assert.Equal(t, created.ID, status.SessionID)
	assert.Equal(t, 4, status.TotalPicks)
	assert.Equal(t, int64(45_000), status.TimeRemainingMs)

	// draft_created, draft_started and pick_started are waiting in the outbox
	n, err := services.Relay.(*outbox.Worker).ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	metrics, err := http.Get(srv.URL + "/outbox/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestSetupServicesRespectsToggles(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	cfg.Orchestrator.Enabled = false
	cfg.Outbox.Enabled = false

	services, err := setupServices(context.Background(), cfg, resources{}, clockwork.NewFakeClock())
	require.NoError(t, err)
	defer services.Close()

	assert.Nil(t, services.Orchestrator)
	assert.Nil(t, services.Relay)
	assert.Nil(t, services.OutboxHealth)
}

func TestServerRequiresTokensWhenSecretSet(t *testing.T) {
	ctx := context.Background()
	cfg, err := loadConfig("")
	require.NoError(t, err)
	cfg.Gateway.JWTSecret = "server-secret"
	cfg.Outbox.Enabled = false

	clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC))
	services, err := setupServices(ctx, cfg, resources{}, clock)
	require.NoError(t, err)
	defer services.Close()
	require.True(t, services.Auth.Enabled())

	srv := httptest.NewServer(setupServer(cfg, services).Handler)
	defer srv.Close()

	req := session.CreateSessionRequest{
		LeagueID:         uuid.New(),
		SeasonID:         uuid.New(),
		Teams:            []uuid.UUID{uuid.New(), uuid.New()},
		TotalRounds:      1,
		PickTimerSeconds: 30,
		PlayerPool:       []uuid.UUID{uuid.New(), uuid.New()},
	}

	_, err = session.NewClient(srv.Client(), srv.URL).CreateSession(ctx, req)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	trusted := session.NewClient(srv.Client(), srv.URL, session.WithServiceAuth(services.Auth, "test"))
	created, err := trusted.CreateSession(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
}
