package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no token")

type Claims struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens issued by the auth service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Parse(tokenStr string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, fmt.Errorf("JWT secret not configured")
	}
	var c Claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid or expired token: %w", err)
	}
	id := c.ID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return Principal{}, fmt.Errorf("token has no subject")
	}
	return Principal{ID: id, Role: c.Role, Name: c.Name, Email: c.Email}, nil
}

// TokenFromRequest reads a bearer header, falling back to the access_token cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return strings.TrimSpace(tok), nil
		}
		return "", fmt.Errorf("malformed authorization header")
	}
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", ErrNoToken
}

// Sign mints a token for p. Used by storectl for local development only;
// production tokens come from the auth service.
func Sign(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		ID:    p.ID,
		Role:  p.Role,
		Name:  p.Name,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(strings.TrimSpace(secret)))
}
