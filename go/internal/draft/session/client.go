package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/mcdev12/leaguedraft/go/internal/rpcutil"
)

// Client talks to a remote Service. Errors carrying a known kind are
// converted back into the package sentinels so callers can use errors.Is
// the same way they would against an in-process App.
type Client struct {
	createSession *connect.Client[CreateSessionInput, SessionOutput]
	getSession    *connect.Client[SessionRef, SessionOutput]
	listPicks     *connect.Client[SessionRef, PicksOutput]
	getStatus     *connect.Client[SessionRef, Status]
	startSession  *connect.Client[SessionRef, SessionOutput]
	pauseSession  *connect.Client[SessionReasonInput, SessionOutput]
	resumeSession *connect.Client[SessionRef, SessionOutput]
	cancelSession *connect.Client[SessionReasonInput, SessionOutput]
	submitPick    *connect.Client[SubmitPickInput, PickOutput]
	expirePick    *connect.Client[ExpirePickInput, PickOutput]
	nextDeadline  *connect.Client[Empty, DeadlineOutput]
	duePicks      *connect.Client[DuePicksInput, DuePicksOutput]
}

// NewClient builds a client for the service hosted at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = rpcutil.ClientOptions(opts...)
	return &Client{
		createSession: connect.NewClient[CreateSessionInput, SessionOutput](httpClient, baseURL+CreateSessionProcedure, opts...),
		getSession:    connect.NewClient[SessionRef, SessionOutput](httpClient, baseURL+GetSessionProcedure, opts...),
		listPicks:     connect.NewClient[SessionRef, PicksOutput](httpClient, baseURL+ListPicksProcedure, opts...),
		getStatus:     connect.NewClient[SessionRef, Status](httpClient, baseURL+GetStatusProcedure, opts...),
		startSession:  connect.NewClient[SessionRef, SessionOutput](httpClient, baseURL+StartSessionProcedure, opts...),
		pauseSession:  connect.NewClient[SessionReasonInput, SessionOutput](httpClient, baseURL+PauseSessionProcedure, opts...),
		resumeSession: connect.NewClient[SessionRef, SessionOutput](httpClient, baseURL+ResumeSessionProcedure, opts...),
		cancelSession: connect.NewClient[SessionReasonInput, SessionOutput](httpClient, baseURL+CancelSessionProcedure, opts...),
		submitPick:    connect.NewClient[SubmitPickInput, PickOutput](httpClient, baseURL+SubmitPickProcedure, opts...),
		expirePick:    connect.NewClient[ExpirePickInput, PickOutput](httpClient, baseURL+ExpirePickProcedure, opts...),
		nextDeadline:  connect.NewClient[Empty, DeadlineOutput](httpClient, baseURL+NextDeadlineProcedure, opts...),
		duePicks:      connect.NewClient[DuePicksInput, DuePicksOutput](httpClient, baseURL+DuePicksProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	res, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionInput{
		LeagueID:         req.LeagueID,
		SeasonID:         req.SeasonID,
		Teams:            req.Teams,
		TotalRounds:      req.TotalRounds,
		PickTimerSeconds: req.PickTimerSeconds,
		PlayerPool:       req.PlayerPool,
		Metadata:         req.Metadata,
	}))
	return sessionFromResponse(res, err)
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return sessionFromResponse(c.getSession.CallUnary(ctx, connect.NewRequest(&SessionRef{SessionID: id})))
}

func (c *Client) ListPicks(ctx context.Context, id uuid.UUID) ([]models.DraftPick, error) {
	res, err := c.listPicks.CallUnary(ctx, connect.NewRequest(&SessionRef{SessionID: id}))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return res.Msg.Picks, nil
}

func (c *Client) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	res, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&SessionRef{SessionID: id}))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return res.Msg, nil
}

func (c *Client) StartSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return sessionFromResponse(c.startSession.CallUnary(ctx, connect.NewRequest(&SessionRef{SessionID: id})))
}

func (c *Client) PauseSession(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	return sessionFromResponse(c.pauseSession.CallUnary(ctx, connect.NewRequest(&SessionReasonInput{SessionID: id, Reason: reason})))
}

func (c *Client) ResumeSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return sessionFromResponse(c.resumeSession.CallUnary(ctx, connect.NewRequest(&SessionRef{SessionID: id})))
}

func (c *Client) CancelSession(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	return sessionFromResponse(c.cancelSession.CallUnary(ctx, connect.NewRequest(&SessionReasonInput{SessionID: id, Reason: reason})))
}

// SubmitPick ignores req.RequestedAt; the server stamps the pick on arrival.
func (c *Client) SubmitPick(ctx context.Context, req SubmitPickRequest) (*models.DraftPick, error) {
	in := &SubmitPickInput{SessionID: req.SessionID, TeamID: req.TeamID, PlayerID: req.PlayerID}
	res, err := c.submitPick.CallUnary(ctx, connect.NewRequest(in))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return &res.Msg.Pick, nil
}

func (c *Client) ExpirePick(ctx context.Context, id uuid.UUID, expectedPickIndex int) (*models.DraftPick, error) {
	res, err := c.expirePick.CallUnary(ctx, connect.NewRequest(&ExpirePickInput{SessionID: id, PickIndex: expectedPickIndex}))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return &res.Msg.Pick, nil
}

func (c *Client) NextDeadline(ctx context.Context) (*time.Time, error) {
	res, err := c.nextDeadline.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return res.Msg.Deadline, nil
}

func (c *Client) DuePicks(ctx context.Context, limit int) ([]DuePick, error) {
	res, err := c.duePicks.CallUnary(ctx, connect.NewRequest(&DuePicksInput{Limit: limit}))
	if err != nil {
		return nil, FromConnectError(err)
	}
	return res.Msg.Due, nil
}

func sessionFromResponse(res *connect.Response[SessionOutput], err error) (*Session, error) {
	if err != nil {
		return nil, FromConnectError(err)
	}
	s, err := FromRecord(res.Msg.Session, res.Msg.Picks)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}

// FromConnectError restores the sentinel named by the error kind header.
// Errors without a known kind are returned unchanged.
func FromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if sentinel := ErrorForKind(cerr.Meta().Get(ErrorKindHeader)); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, cerr.Message())
	}
	return err
}
