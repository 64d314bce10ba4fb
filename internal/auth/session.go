package auth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionIssuer = "binaryblob-auth"

var (
	ErrMissingSessionSigningKey = errors.New("session: signing key required")
	ErrMissingSessionIssuer     = errors.New("session: issuer required")
	ErrMissingSessionCookieName = errors.New("session: cookie name required")
)

// SessionClaims is the payload of the session cookie.
// UserRoles holds capability names; "superuser" grants all of them.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// Capabilities returns the granted roles lower-cased, trimmed and deduplicated.
func (c SessionClaims) Capabilities() []string {
	capabilities := make([]string, 0, len(c.UserRoles))
	for _, role := range c.UserRoles {
		name := strings.ToLower(strings.TrimSpace(role))
		if name == "" || slices.Contains(capabilities, name) {
			continue
		}
		capabilities = append(capabilities, name)
	}
	return capabilities
}

// sessionKeys is the material shared by the issuer and the validator.
type sessionKeys struct {
	secret     []byte
	issuer     string
	cookieName string
	clock      func() time.Time
}

func newSessionKeys(secret []byte, issuer, cookieName string, clock func() time.Time) (sessionKeys, error) {
	if len(secret) == 0 {
		return sessionKeys{}, ErrMissingSessionSigningKey
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return sessionKeys{}, ErrMissingSessionIssuer
	}
	cookieName = strings.TrimSpace(cookieName)
	if cookieName == "" {
		return sessionKeys{}, ErrMissingSessionCookieName
	}
	if clock == nil {
		clock = time.Now
	}
	return sessionKeys{
		secret:     append([]byte(nil), secret...),
		issuer:     issuer,
		cookieName: cookieName,
		clock:      clock,
	}, nil
}

func (k sessionKeys) keyFunc(*jwt.Token) (interface{}, error) {
	return k.secret, nil
}
