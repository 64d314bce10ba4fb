package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionToken   = errors.New("session validator: token required")
	ErrInvalidSessionToken   = errors.New("session validator: invalid token")
	ErrExpiredSessionToken   = errors.New("session validator: token expired")
	ErrMissingSessionSubject = errors.New("session validator: subject required")
)

// SessionValidatorConfig configures cookie validation. An empty Issuer accepts
// tokens minted with the default issuer.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator turns a session cookie into SessionClaims.
type SessionValidator struct {
	keys   sessionKeys
	parser *jwt.Parser
}

// NewSessionValidator builds a validator that only accepts HS256 tokens from the configured issuer.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	issuer := cfg.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultSessionIssuer
	}
	keys, err := newSessionKeys(cfg.SigningSecret, issuer, cfg.CookieName, cfg.Clock)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(keys.issuer),
		jwt.WithTimeFunc(keys.clock),
	)
	return &SessionValidator{keys: keys, parser: parser}, nil
}

// CookieName returns the name of the session cookie.
func (v *SessionValidator) CookieName() string {
	return v.keys.cookieName
}

// ValidateRequest reads the session cookie from r and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(v.keys.cookieName)
	if err != nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(cookie.Value)
}

// ValidateToken verifies signature, issuer and lifetime, then normalizes the claims.
// Expired tokens match both ErrExpiredSessionToken and jwt.ErrTokenExpired.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	token, err := v.parser.ParseWithClaims(raw, &claims, v.keys.keyFunc)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrExpiredSessionToken, jwt.ErrTokenExpired)
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	case !token.Valid:
		return SessionClaims{}, ErrInvalidSessionToken
	}

	claims.UserID = strings.TrimSpace(claims.UserID)
	if claims.UserID == "" || strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	claims.UserName = strings.TrimSpace(claims.UserName)
	claims.UserRoles = claims.Capabilities()
	return claims, nil
}
