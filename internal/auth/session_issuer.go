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
	errNonPositiveTTL      = errors.New("session issuer: ttl must be positive")
	errMissingSubjectClaim = errors.New("session issuer: user id must be provided")
)

// SessionIssuerConfig configures the session cookie issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionIdentity is the user data embedded into a minted session.
type SessionIdentity struct {
	UserID       string
	UserName     string
	Email        string
	DisplayName  string
	Capabilities []string
}

// SessionIssuer mints HS256 session tokens compatible with SessionValidator.
type SessionIssuer struct {
	keys sessionKeys
	ttl  time.Duration
}

// NewSessionIssuer constructs a SessionIssuer after validating its configuration.
func NewSessionIssuer(cfg SessionIssuerConfig) (*SessionIssuer, error) {
	keys, err := newSessionKeys(cfg.SigningSecret, cfg.Issuer, cfg.CookieName, cfg.Clock)
	if err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		return nil, errNonPositiveTTL
	}
	return &SessionIssuer{keys: keys, ttl: cfg.TokenTTL}, nil
}

// IssueSessionToken produces a signed session JWT and its expiry instant.
func (i *SessionIssuer) IssueSessionToken(identity SessionIdentity) (string, time.Time, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return "", time.Time{}, errMissingSubjectClaim
	}

	now := i.keys.clock().UTC()
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		UserID:          userID,
		UserName:        strings.TrimSpace(identity.UserName),
		UserEmail:       strings.TrimSpace(identity.Email),
		UserDisplayName: strings.TrimSpace(identity.DisplayName),
		UserRoles:       append([]string(nil), identity.Capabilities...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.keys.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session issuer: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueSessionCookie wraps IssueSessionToken into an HTTP-only cookie.
func (i *SessionIssuer) IssueSessionCookie(identity SessionIdentity) (*http.Cookie, error) {
	token, expiresAt, err := i.IssueSessionToken(identity)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     i.keys.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}
