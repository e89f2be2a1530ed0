package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/mcdev12/leaguedraft/go/internal/draft/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app    *session.App
	clock  *clockwork.FakeClock
	svc    *Service
	server *httptest.Server
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.JWTSecret = secret
	cm := cfg.NewManager()
	app := session.NewApp(session.NewMemoryStore(), nil, clock, session.WithNotifier(cm.Notifier()))
	svc := NewService(cfg, cm, app, clock)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testEnv{app: app, clock: clock, svc: svc, server: srv}
}

// startDraft creates and starts a one-round draft for two teams.
func (e *testEnv) startDraft(t *testing.T) (*session.Session, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	pool := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	s, err := e.app.CreateSession(ctx, session.CreateSessionRequest{
		LeagueID:         uuid.New(),
		SeasonID:         uuid.New(),
		Teams:            []uuid.UUID{uuid.New(), uuid.New()},
		TotalRounds:      1,
		PickTimerSeconds: 60,
		PlayerPool:       pool,
	})
	require.NoError(t, err)
	s, err = e.app.StartSession(ctx, s.ID)
	require.NoError(t, err)
	return s, pool
}

func (e *testEnv) submit(t *testing.T, draftID, teamID, playerID uuid.UUID, token string) (*http.Response, ErrorResponse) {
	t.Helper()
	body, err := json.Marshal(submitPickBody{TeamID: teamID.String(), PlayerID: playerID.String()})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/drafts/"+draftID.String()+"/picks", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var errResp ErrorResponse
	if resp.StatusCode >= 400 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	}
	return resp, errResp
}

func TestGetDraftState(t *testing.T) {
	env := newTestEnv(t, "")
	s, pool := env.startDraft(t)

	resp, err := http.Get(env.server.URL + "/api/drafts/" + s.ID.String() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status session.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, s.ID, status.SessionID)
	assert.Equal(t, 1, status.CurrentPick)
	assert.Equal(t, int64(60_000), status.TimeRemainingMs)
	assert.ElementsMatch(t, pool, status.AvailablePlayers)
	require.NotNil(t, status.CurrentTeamID)
	assert.Equal(t, s.Order[0], *status.CurrentTeamID)
}

func TestGetDraftStateErrors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown draft", "/api/drafts/" + uuid.NewString() + "/state", http.StatusNotFound, "session_not_found"},
		{"malformed id", "/api/drafts/not-a-uuid/state", http.StatusBadRequest, codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(env.server.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestSubmitPick(t *testing.T) {
	env := newTestEnv(t, "")
	s, pool := env.startDraft(t)
	first, second := s.Order[0], s.Order[1]

	resp, body := env.submit(t, s.ID, second, pool[0], "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_your_turn", body.Code)

	resp, _ = env.submit(t, s.ID, first, pool[0], "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = env.submit(t, s.ID, second, pool[0], "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "player_already_picked", body.Code)

	resp, body = env.submit(t, s.ID, second, uuid.New(), "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "player_not_eligible", body.Code)

	resp, _ = env.submit(t, s.ID, second, pool[1], "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// draft is complete after two picks
	resp, body = env.submit(t, s.ID, first, pool[2], "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "session_not_active", body.Code)

	picksResp, err := http.Get(env.server.URL + "/api/drafts/" + s.ID.String() + "/picks")
	require.NoError(t, err)
	defer picksResp.Body.Close()
	var picks []map[string]interface{}
	require.NoError(t, json.NewDecoder(picksResp.Body).Decode(&picks))
	assert.Len(t, picks, 2)
}

func TestSubmitPickExpiredWindow(t *testing.T) {
	env := newTestEnv(t, "")
	s, pool := env.startDraft(t)

	env.clock.Advance(61 * time.Second)

	resp, body := env.submit(t, s.ID, s.Order[0], pool[0], "")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "pick_window_expired", body.Code)
}

func TestSubmitPickRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, "")
	s, _ := env.startDraft(t)

	resp, err := http.Post(env.server.URL+"/api/drafts/"+s.ID.String()+"/picks", "application/json", strings.NewReader(`{"teamId":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitPickAuth(t *testing.T) {
	env := newTestEnv(t, "test-secret")
	s, pool := env.startDraft(t)
	first, second := s.Order[0], s.Order[1]
	authn := auth.NewAuthenticator("test-secret", env.clock)

	resp, body := env.submit(t, s.ID, first, pool[0], "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeUnauthorized, body.Code)

	forged, err := auth.NewAuthenticator("other-secret", env.clock).IssueToken(first.String(), time.Hour)
	require.NoError(t, err)
	resp, _ = env.submit(t, s.ID, first, pool[0], forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	secondToken, err := authn.IssueToken(second.String(), time.Hour)
	require.NoError(t, err)
	resp, body = env.submit(t, s.ID, first, pool[0], secondToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, codeTeamMismatch, body.Code)

	firstToken, err := authn.IssueToken(first.String(), time.Hour)
	require.NoError(t, err)
	resp, _ = env.submit(t, s.ID, first, pool[0], firstToken)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	serviceToken, err := authn.IssueServiceToken("draft-gateway", time.Hour)
	require.NoError(t, err)
	resp, _ = env.submit(t, s.ID, second, pool[1], serviceToken)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// reads stay public
	stateResp, err := http.Get(env.server.URL + "/api/drafts/" + s.ID.String() + "/state")
	require.NoError(t, err)
	stateResp.Body.Close()
	assert.Equal(t, http.StatusOK, stateResp.StatusCode)
}

func TestStatusForKind(t *testing.T) {
	tests := map[string]int{
		"session_not_found":           http.StatusNotFound,
		"invalid_draft_configuration": http.StatusBadRequest,
		"not_your_turn":               http.StatusForbidden,
		"player_already_picked":       http.StatusConflict,
		"player_not_eligible":         http.StatusUnprocessableEntity,
		"pick_window_expired":         http.StatusGone,
		"session_not_active":          http.StatusConflict,
		"invalid_transition":          http.StatusConflict,
		"storage_unavailable":         http.StatusServiceUnavailable,
		"internal":                    http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, StatusForKind(kind), kind)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) DraftEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame DraftEvent
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketStreamsEvents(t *testing.T) {
	env := newTestEnv(t, "")
	s, pool := env.startDraft(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/draft?draft_id=" + s.ID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	sync := readFrame(t, conn)
	assert.Equal(t, MessageTypeStateSync, sync.Type)
	payload, err := ParseEventPayload(&sync)
	require.NoError(t, err)
	status := payload.(*session.Status)
	assert.Equal(t, s.ID, status.SessionID)
	assert.Equal(t, 1, status.CurrentPick)

	require.Eventually(t, func() bool {
		return env.svc.Stats().TotalConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := env.submit(t, s.ID, s.Order[0], pool[0], "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	made := readFrame(t, conn)
	assert.Equal(t, string(events.EventTypePickMade), made.Type)
	assert.Equal(t, s.ID.String(), made.DraftID)
	payload, err = ParseEventPayload(&made)
	require.NoError(t, err)
	pick := payload.(*events.PickMadePayload)
	assert.Equal(t, pool[0].String(), pick.PlayerID)

	started := readFrame(t, conn)
	assert.Equal(t, string(events.EventTypePickStarted), started.Type)
}

func TestWebSocketRejectsUnknownDraft(t *testing.T) {
	env := newTestEnv(t, "")

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/draft?draft_id=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws/draft", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEventTargetsDraft(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	draftID := uuid.New()
	other := &Connection{ID: "other", DraftID: uuid.New(), Send: make(chan []byte, 1), Manager: cm}
	mine := &Connection{ID: "mine", DraftID: draftID, Send: make(chan []byte, 1), Manager: cm}
	cm.registerConnection(other)
	cm.registerConnection(mine)

	evt, err := events.New(draftID, events.EventTypeDraftPaused, events.DraftPausedPayload{Reason: "commissioner"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, cm.HandleEvent(context.Background(), evt))

	msg := <-cm.broadcastCh
	cm.handleBroadcast(msg)

	require.Len(t, mine.Send, 1)
	assert.Empty(t, other.Send)

	var frame DraftEvent
	require.NoError(t, json.Unmarshal(<-mine.Send, &frame))
	assert.Equal(t, evt.ID.String(), frame.ID)
	assert.Equal(t, string(events.EventTypeDraftPaused), frame.Type)

	stats := cm.GetConnectionStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveDrafts)
}

func TestPickStartedNotifiesTeamOnClock(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	draftID := uuid.New()
	onClock, waiting := uuid.NewString(), uuid.NewString()
	mine := &Connection{ID: "mine", TeamID: onClock, DraftID: draftID, Send: make(chan []byte, 2), Manager: cm}
	theirs := &Connection{ID: "theirs", TeamID: waiting, DraftID: draftID, Send: make(chan []byte, 2), Manager: cm}
	cm.registerConnection(mine)
	cm.registerConnection(theirs)

	evt, err := events.New(draftID, events.EventTypePickStarted, events.PickStartedPayload{TeamID: onClock, OverallPick: 3}, time.Now())
	require.NoError(t, err)
	require.NoError(t, cm.HandleEvent(context.Background(), evt))

	require.Len(t, cm.broadcastCh, 2)
	cm.handleBroadcast(<-cm.broadcastCh)
	cm.handleBroadcast(<-cm.broadcastCh)

	require.Len(t, mine.Send, 2)
	require.Len(t, theirs.Send, 1)

	var frame DraftEvent
	require.NoError(t, json.Unmarshal(<-theirs.Send, &frame))
	assert.Equal(t, string(events.EventTypePickStarted), frame.Type)

	<-mine.Send
	require.NoError(t, json.Unmarshal(<-mine.Send, &frame))
	assert.Equal(t, MessageTypeYourTurn, frame.Type)
	payload, err := ParseEventPayload(&frame)
	require.NoError(t, err)
	assert.Equal(t, 3, payload.(*events.PickStartedPayload).OverallPick)
}

func TestConnectionStatsForDraft(t *testing.T) {
	env := newTestEnv(t, "")
	s, _ := env.startDraft(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/draft?draft_id=" + s.ID.String() + "&team_id=" + s.Order[0].String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	var stats DraftConnectionStats
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/ws/stats?draft_id=" + s.ID.String())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&stats) == nil && stats.Connections == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, s.ID.String(), stats.DraftID)

	resp, err := http.Get(env.server.URL + "/ws/stats?draft_id=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
