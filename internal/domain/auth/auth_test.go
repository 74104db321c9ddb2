package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	raw, err := tokens.Issue(Caller{ID: "user-1", Role: RoleAdmin})
	require.NoError(t, err)

	c, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.ID)
	assert.True(t, c.IsAdmin())
}

func TestTokens_Parse_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	other := NewTokens("other", time.Hour)

	expired := NewTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signedByOther, err := other.Issue(Caller{ID: "u", Role: RoleCustomer})
	require.NoError(t, err)
	expiredToken, err := expired.Issue(Caller{ID: "u", Role: RoleCustomer})
	require.NoError(t, err)
	unknownRole, err := tokens.Issue(Caller{ID: "u", Role: "ROOT"})
	require.NoError(t, err)
	noSubject, err := tokens.Issue(Caller{Role: RoleCustomer})
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: signedByOther},
		{name: "expired", token: expiredToken},
		{name: "unknown role", token: unknownRole},
		{name: "missing subject", token: noSubject},
		{name: "none algorithm", token: noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Parse(tt.token)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{ID: "c1", Role: RoleCustomer})
	c, ok := CallerFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "c1", c.ID)
	assert.False(t, c.IsAdmin())
}

func TestTokens_ParseRequest(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue(Caller{ID: "user-1", Role: RoleCustomer})
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer " + raw},
		{name: "lowercase scheme", header: "bearer " + raw},
		{name: "missing header", wantErr: true},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "bare token", header: raw, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c, err := tokens.ParseRequest(req)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Caller{ID: "user-1", Role: RoleCustomer}, c)
		})
	}
}
