// Package auth resolves the identity behind a connection. Tokens are
// issued elsewhere; this side only verifies the signature and reads the
// claims.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is the (user, display name) pair attached to a session.
type Identity struct {
	UserID string
	Name   string
}

// Verifier checks HMAC-signed tokens carrying "sub" and "name" claims.
type Verifier struct {
	secret []byte
	log    zerolog.Logger
}

func NewVerifier(secret string, log zerolog.Logger) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// Verify parses and validates a token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("no signing secret configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	var identity Identity
	if sub, ok := claims["sub"].(string); ok {
		identity.UserID = sub
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if identity.UserID == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	if identity.Name == "" {
		identity.Name = identity.UserID
	}
	return identity, nil
}

// FromRequest resolves the identity for an upgrade request from the
// "token" query parameter or an Authorization bearer header. Requests
// without a verifiable token get a guest identity instead of a rejection:
// anonymous viewers still count as presence.
func (v *Verifier) FromRequest(r *http.Request) Identity {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token != "" {
		identity, err := v.Verify(token)
		if err == nil {
			return identity
		}
		v.log.Warn().Err(err).Msg("rejecting presented token, continuing as guest")
	}
	suffix := uuid.NewString()[:8]
	return Identity{
		UserID: "guest-" + suffix,
		Name:   "Guest " + suffix,
	}
}
