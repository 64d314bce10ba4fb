package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/binaryblob/binaryblob/internal/auth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUserNotFound indicates that no user matches the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrUsernameTaken indicates that no free username could be derived for a new identity.
	ErrUsernameTaken = errors.New("users: username taken")
)

const maxUsernameLength = 150

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages local users and provider-specific identities.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// ResolveActor returns the acting user for the provided session claims.
// It creates the local user and identity mapping when the provider+subject pair
// has not been seen before. Capabilities come from the session roles.
func (s *Service) ResolveActor(ctx context.Context, claims auth.SessionClaims) (Actor, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return Actor{}, err
	}
	return NewActor(user, claims.Capabilities()), nil
}

func (s *Service) resolveUser(ctx context.Context, claims auth.SessionClaims) (User, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return User{}, ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.Preload("User").
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity, err = s.createIdentity(ctx, provider, subject, claims)
		if err != nil {
			return User{}, err
		}
	} else if err != nil {
		return User{}, err
	} else {
		if identity.UserID == 0 || identity.User.ID != identity.UserID {
			return User{}, fmt.Errorf("%w: identity %s has no user", ErrInvalidIdentity, cacheKey)
		}
		updates := map[string]interface{}{}
		if email := normalize(claims.UserEmail); email != "" && email != identity.User.Email {
			updates["email"] = email
			identity.User.Email = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.User.DisplayName {
			updates["display_name"] = display
			identity.User.DisplayName = display
		}
		if len(updates) > 0 {
			_ = db.Model(&User{}).Where("id = ?", identity.UserID).Updates(updates).Error
		}
		_ = db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Update("last_seen_at", s.now()).
			Error
	}

	s.cache.Store(cacheKey, identity.User)
	return identity.User, nil
}

// createIdentity inserts the user row and then the identity pointing at it.
// A username already held by another user gets a provider and subject suffix.
func (s *Service) createIdentity(ctx context.Context, provider, subject string, claims auth.SessionClaims) (Identity, error) {
	base := normalize(claims.UserName)
	if base == "" {
		base = subject
	}

	var identity Identity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		username, err := availableUsername(tx, base, provider, subject)
		if err != nil {
			return err
		}
		user := User{
			Username:    username,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if user.ID == 0 {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		identity = Identity{
			Provider:   provider,
			Subject:    subject,
			UserID:     user.ID,
			LastSeenAt: s.now(),
		}
		if err := tx.Omit(clause.Associations).Create(&identity).Error; err != nil {
			return err
		}
		identity.User = user
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func availableUsername(tx *gorm.DB, base, provider, subject string) (string, error) {
	candidates := []string{
		truncateUsername(base),
		truncateUsername(base + "-" + provider + "-" + subject),
	}
	for _, candidate := range candidates {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUsernameTaken, base)
}

func truncateUsername(value string) string {
	runes := []rune(value)
	if len(runes) > maxUsernameLength {
		return string(runes[:maxUsernameLength])
	}
	return value
}

// FindByUsername resolves a user by username.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	name := normalize(username)
	if name == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", name).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// FindByID resolves a user by primary key.
func (s *Service) FindByID(ctx context.Context, id uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Take(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
