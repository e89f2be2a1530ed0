package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/leaguedraft/go/internal/models"
	"github.com/mcdev12/leaguedraft/go/internal/rpcutil"
)

// ServiceName is the fully qualified name of the session RPC service.
const ServiceName = "draft.session.v1.SessionService"

// ErrorKindHeader carries Kind(err) on every error response.
const ErrorKindHeader = "Draft-Error-Kind"

const (
	CreateSessionProcedure = "/" + ServiceName + "/CreateSession"
	GetSessionProcedure    = "/" + ServiceName + "/GetSession"
	ListPicksProcedure     = "/" + ServiceName + "/ListPicks"
	GetStatusProcedure     = "/" + ServiceName + "/GetStatus"
	StartSessionProcedure  = "/" + ServiceName + "/StartSession"
	PauseSessionProcedure  = "/" + ServiceName + "/PauseSession"
	ResumeSessionProcedure = "/" + ServiceName + "/ResumeSession"
	CancelSessionProcedure = "/" + ServiceName + "/CancelSession"
	SubmitPickProcedure    = "/" + ServiceName + "/SubmitPick"
	ExpirePickProcedure    = "/" + ServiceName + "/ExpirePick"
	NextDeadlineProcedure  = "/" + ServiceName + "/NextDeadline"
	DuePicksProcedure      = "/" + ServiceName + "/DuePicks"
)

type CreateSessionInput struct {
	LeagueID         uuid.UUID       `json:"leagueId"`
	SeasonID         uuid.UUID       `json:"seasonId"`
	Teams            []uuid.UUID     `json:"teams"`
	TotalRounds      int             `json:"totalRounds"`
	PickTimerSeconds int             `json:"pickTimerSeconds"`
	PlayerPool       []uuid.UUID     `json:"playerPool,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type SessionRef struct {
	SessionID uuid.UUID `json:"sessionId"`
}

type SessionReasonInput struct {
	SessionID uuid.UUID `json:"sessionId"`
	Reason    string    `json:"reason,omitempty"`
}

type SubmitPickInput struct {
	SessionID uuid.UUID `json:"sessionId"`
	TeamID    uuid.UUID `json:"teamId"`
	PlayerID  uuid.UUID `json:"playerId"`
}

type ExpirePickInput struct {
	SessionID uuid.UUID `json:"sessionId"`
	PickIndex int       `json:"pickIndex"`
}

type DuePicksInput struct {
	Limit int `json:"limit"`
}

type Empty struct{}

type SessionOutput struct {
	Session models.DraftSession `json:"session"`
	Picks   []models.DraftPick  `json:"picks"`
}

type PickOutput struct {
	Pick models.DraftPick `json:"pick"`
}

type PicksOutput struct {
	Picks []models.DraftPick `json:"picks"`
}

type DeadlineOutput struct {
	Deadline *time.Time `json:"deadline,omitempty"`
}

type DuePicksOutput struct {
	Due []DuePick `json:"due"`
}

// Service exposes App over connect.
type Service struct {
	app *App
}

// NewService creates the session RPC service.
func NewService(app *App) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for every session procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpcutil.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, unary(s.CreateSession), opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, unary(s.GetSession), opts...))
	mux.Handle(ListPicksProcedure, connect.NewUnaryHandler(ListPicksProcedure, unary(s.ListPicks), opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, unary(s.GetStatus), opts...))
	mux.Handle(StartSessionProcedure, connect.NewUnaryHandler(StartSessionProcedure, unary(s.StartSession), opts...))
	mux.Handle(PauseSessionProcedure, connect.NewUnaryHandler(PauseSessionProcedure, unary(s.PauseSession), opts...))
	mux.Handle(ResumeSessionProcedure, connect.NewUnaryHandler(ResumeSessionProcedure, unary(s.ResumeSession), opts...))
	mux.Handle(CancelSessionProcedure, connect.NewUnaryHandler(CancelSessionProcedure, unary(s.CancelSession), opts...))
	mux.Handle(SubmitPickProcedure, connect.NewUnaryHandler(SubmitPickProcedure, unary(s.SubmitPick), opts...))
	mux.Handle(ExpirePickProcedure, connect.NewUnaryHandler(ExpirePickProcedure, unary(s.ExpirePick), opts...))
	mux.Handle(NextDeadlineProcedure, connect.NewUnaryHandler(NextDeadlineProcedure, unary(s.NextDeadline), opts...))
	mux.Handle(DuePicksProcedure, connect.NewUnaryHandler(DuePicksProcedure, unary(s.DuePicks), opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) CreateSession(ctx context.Context, in *CreateSessionInput) (*SessionOutput, error) {
	sess, err := s.app.CreateSession(ctx, CreateSessionRequest{
		LeagueID:         in.LeagueID,
		SeasonID:         in.SeasonID,
		Teams:            in.Teams,
		TotalRounds:      in.TotalRounds,
		PickTimerSeconds: in.PickTimerSeconds,
		PlayerPool:       in.PlayerPool,
		Metadata:         in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func (s *Service) GetSession(ctx context.Context, in *SessionRef) (*SessionOutput, error) {
	sess, err := s.app.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func (s *Service) ListPicks(ctx context.Context, in *SessionRef) (*PicksOutput, error) {
	picks, err := s.app.ListPicks(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return &PicksOutput{Picks: picks}, nil
}

func (s *Service) GetStatus(ctx context.Context, in *SessionRef) (*Status, error) {
	return s.app.GetStatus(ctx, in.SessionID)
}

func (s *Service) StartSession(ctx context.Context, in *SessionRef) (*SessionOutput, error) {
	sess, err := s.app.StartSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func (s *Service) PauseSession(ctx context.Context, in *SessionReasonInput) (*SessionOutput, error) {
	sess, err := s.app.PauseSession(ctx, in.SessionID, in.Reason)
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func (s *Service) ResumeSession(ctx context.Context, in *SessionRef) (*SessionOutput, error) {
	sess, err := s.app.ResumeSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func (s *Service) CancelSession(ctx context.Context, in *SessionReasonInput) (*SessionOutput, error) {
	sess, err := s.app.CancelSession(ctx, in.SessionID, in.Reason)
	if err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

// SubmitPick stamps the request with the server clock on arrival. Remote
// callers cannot choose the time a pick is judged against.
func (s *Service) SubmitPick(ctx context.Context, in *SubmitPickInput) (*PickOutput, error) {
	pick, err := s.app.SubmitPick(ctx, SubmitPickRequest{
		SessionID:   in.SessionID,
		TeamID:      in.TeamID,
		PlayerID:    in.PlayerID,
		RequestedAt: s.app.Clock().Now(),
	})
	if err != nil {
		return nil, err
	}
	return &PickOutput{Pick: *pick}, nil
}

func (s *Service) ExpirePick(ctx context.Context, in *ExpirePickInput) (*PickOutput, error) {
	pick, err := s.app.ExpirePick(ctx, in.SessionID, in.PickIndex)
	if err != nil {
		return nil, err
	}
	return &PickOutput{Pick: *pick}, nil
}

func (s *Service) NextDeadline(ctx context.Context, _ *Empty) (*DeadlineOutput, error) {
	next, err := s.app.NextDeadline(ctx)
	if err != nil {
		return nil, err
	}
	return &DeadlineOutput{Deadline: next}, nil
}

func (s *Service) DuePicks(ctx context.Context, in *DuePicksInput) (*DuePicksOutput, error) {
	due, err := s.app.DuePicks(ctx, in.Limit)
	if err != nil {
		return nil, err
	}
	return &DuePicksOutput{Due: due}, nil
}

func sessionOutput(s *Session) *SessionOutput {
	return &SessionOutput{Session: s.Record(), Picks: s.Picks}
}

func unary[Req, Res any](fn func(context.Context, *Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, ToConnectError(err)
		}
		return connect.NewResponse(res), nil
	}
}

// ToConnectError maps an engine error to a connect error carrying its kind.
func ToConnectError(err error) *connect.Error {
	kind := Kind(err)
	cerr := connect.NewError(CodeForKind(kind, err), err)
	cerr.Meta().Set(ErrorKindHeader, kind)
	return cerr
}

// CodeForKind picks the connect code for an error kind.
func CodeForKind(kind string, err error) connect.Code {
	switch kind {
	case "session_not_found":
		return connect.CodeNotFound
	case "invalid_draft_configuration":
		return connect.CodeInvalidArgument
	case "version_conflict":
		return connect.CodeAborted
	case "storage_unavailable":
		return connect.CodeUnavailable
	case "internal":
		switch {
		case errors.Is(err, context.Canceled):
			return connect.CodeCanceled
		case errors.Is(err, context.DeadlineExceeded):
			return connect.CodeDeadlineExceeded
		}
		return connect.CodeInternal
	default:
		return connect.CodeFailedPrecondition
	}
}
