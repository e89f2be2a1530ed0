package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/leaguedraft/go/internal/auth"
)

const serviceTokenTTL = time.Minute

var errTeamMismatch = errors.New("token does not belong to team")

// NewAuthInterceptor guards the session RPC with bearer tokens. Service
// tokens may call every procedure. Team tokens may read and may submit
// picks for their own team only. A disabled authenticator lets every call
// through.
func NewAuthInterceptor(a *auth.Authenticator) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !a.Enabled() || req.Spec().IsClient {
				return next(ctx, req)
			}
			claims, err := a.ParseHeader(req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			if !claims.IsService() {
				if err := authorizeTeam(claims, req); err != nil {
					return nil, err
				}
			}
			return next(auth.WithClaims(ctx, claims), req)
		}
	}
}

func authorizeTeam(claims *auth.Claims, req connect.AnyRequest) error {
	switch procedure := req.Spec().Procedure; procedure {
	case GetSessionProcedure, ListPicksProcedure, GetStatusProcedure:
		return nil
	case SubmitPickProcedure:
		in, ok := req.Any().(*SubmitPickInput)
		if !ok || in.TeamID.String() != claims.TeamID {
			return connect.NewError(connect.CodePermissionDenied, errTeamMismatch)
		}
		return nil
	default:
		return connect.NewError(connect.CodePermissionDenied, fmt.Errorf("team tokens may not call %s", procedure))
	}
}

// WithServiceAuth signs every outgoing call with a short-lived service
// token named after the calling process.
func WithServiceAuth(a *auth.Authenticator, name string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if a.Enabled() && req.Spec().IsClient {
				token, err := a.IssueServiceToken(name, serviceTokenTTL)
				if err != nil {
					return nil, fmt.Errorf("failed to sign service token: %w", err)
				}
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}))
}

// WithBearerToken sends a fixed token, typically a team token.
func WithBearerToken(token string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}))
}
