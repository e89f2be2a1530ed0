package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Token roles. A team token may act for its own team only; a service token
// is held by the orchestrator and gateway processes.
const (
	RoleTeam    = "team"
	RoleService = "service"
)

var (
	ErrMissingToken     = errors.New("authorization header required")
	ErrMalformedHeader  = errors.New("invalid authorization header")
	ErrMissingTeamClaim = errors.New("token has no team_id claim")
	ErrUnknownRole      = errors.New("token has an unknown role")
)

// Claims are the claims of every draft bearer token.
type Claims struct {
	TeamID string `json:"team_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IsService reports whether the token belongs to a trusted process.
func (c *Claims) IsService() bool {
	return c != nil && c.Role == RoleService
}

// Authenticator issues and validates HS256 tokens. A nil Authenticator or
// one with an empty secret lets every request through.
type Authenticator struct {
	secret []byte
	clock  clockwork.Clock
}

func NewAuthenticator(secret string, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{secret: []byte(secret), clock: clock}
}

// Enabled reports whether requests must carry a bearer token.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// IssueToken signs a team token for teamID valid for ttl.
func (a *Authenticator) IssueToken(teamID string, ttl time.Duration) (string, error) {
	return a.sign(Claims{TeamID: teamID, Role: RoleTeam}, teamID, ttl)
}

// IssueServiceToken signs a token for an internal process.
func (a *Authenticator) IssueServiceToken(name string, ttl time.Duration) (string, error) {
	return a.sign(Claims{Role: RoleService}, name, ttl)
}

func (a *Authenticator) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates tokenStr and returns its claims.
func (a *Authenticator) ParseToken(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.clock.Now))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	switch c.Role {
	case RoleService:
	case RoleTeam:
		if c.TeamID == "" {
			return nil, ErrMissingTeamClaim
		}
	default:
		return nil, ErrUnknownRole
	}
	return c, nil
}

// ParseHeader validates an Authorization header value of the form
// "Bearer <token>".
func (a *Authenticator) ParseHeader(header string) (*Claims, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrMalformedHeader
	}
	return a.ParseToken(parts[1])
}

type contextKey struct{}

// WithClaims stores validated claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ClaimsFromContext returns the claims stored by WithClaims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}
