package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

const testSecret = "s3cret"

func TestVerifierRoundTrip(t *testing.T) {
	tok, err := Sign(testSecret, Principal{ID: "u1", Role: RoleAdmin, Name: "Ana", Email: "ana@x.io"}, time.Hour)
	require.NoError(t, err)

	p, err := NewVerifier(testSecret).Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, p.IsAdmin())
	assert.Equal(t, "ana@x.io", p.Email)
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier(testSecret)

	expired, err := Sign(testSecret, Principal{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired)
	assert.Error(t, err)

	wrongKey, err := Sign("other", Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(wrongKey)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Parse(none)
	assert.Error(t, err)

	_, err = NewVerifier("").Parse(expired)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-tok"})
	tok, err := TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "cookie-tok", tok)

	r.Header.Set("Authorization", "Bearer header-tok")
	tok, err = TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "header-tok", tok)

	r.Header.Set("Authorization", "Basic abc")
	_, err = TokenFromRequest(r)
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(RequireAdmin(Principal{})))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(RequireAdmin(Principal{ID: "u1", Role: "user"})))
	assert.NoError(t, RequireAdmin(Principal{ID: "u1", Role: RoleAdmin}))
}
