package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"

	"github.com/xenking/voucher-engine/internal/domain/fault"
)

var (
	// ErrUnauthorized is returned when the caller identity is missing or invalid.
	ErrUnauthorized = fault.New(fault.Unauthorized, "UNAUTHORIZED", "missing or invalid credentials")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = fault.New(fault.Forbidden, "FORBIDDEN", "insufficient role")
)

// Role is the permission level of a caller.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Caller is an authenticated identity.
type Caller struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the caller has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Claims are the JWT claims of an access token. The subject is the caller ID.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a Tokens signer for the given secret.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for c.
func (t *Tokens) Issue(c Caller) (string, error) {
	now := t.now()
	claims := Claims{
		Role: c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse verifies raw and returns the caller it identifies.
func (t *Tokens) Parse(raw string) (Caller, error) {
	claims := &Claims{}
	token, err := t.parser().ParseWithClaims(raw, claims, t.key)
	return t.caller(token, claims, err)
}

// ParseRequest verifies the bearer token of r.
func (t *Tokens) ParseRequest(r *http.Request) (Caller, error) {
	claims := &Claims{}
	token, err := request.ParseFromRequest(r, request.BearerExtractor{}, t.key,
		request.WithClaims(claims),
		request.WithParser(t.parser()),
	)
	return t.caller(token, claims, err)
}

func (t *Tokens) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
}

func (t *Tokens) key(*jwt.Token) (any, error) {
	return t.secret, nil
}

func (t *Tokens) caller(token *jwt.Token, claims *Claims, err error) (Caller, error) {
	if err != nil || !token.Valid || claims.Subject == "" {
		return Caller{}, ErrUnauthorized
	}
	switch claims.Role {
	case RoleAdmin, RoleCustomer:
	default:
		return Caller{}, ErrUnauthorized
	}
	return Caller{ID: claims.Subject, Role: claims.Role}, nil
}
