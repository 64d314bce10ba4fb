package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/binaryblob/binaryblob/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &Identity{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveActorStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserName:        "alice",
		UserEmail:       "alice@example.com",
		UserDisplayName: "Alice",
		UserRoles:       []string{"project_manager.add_task"},
	}
	actor, err := service.ResolveActor(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if actor.Username != "alice" {
		t.Fatalf("expected username alice, got %q", actor.Username)
	}
	if actor.UserID == 0 {
		t.Fatalf("expected persisted user id")
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", "google", "12345").Take(&identity).Error; err != nil {
		t.Fatalf("expected identity for stripped subject: %v", err)
	}

	// second call should hit cache and not create a duplicate record.
	again, err := service.ResolveActor(context.Background(), claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.UserID != actor.UserID {
		t.Fatalf("expected user id to remain stable, got %d and %d", actor.UserID, again.UserID)
	}
	var count int64
	db.Model(&User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one user, got %d", count)
	}
}

func TestResolveActorFallsBackToSubjectAsUsername(t *testing.T) {
	service, _ := newTestService(t)

	actor, err := service.ResolveActor(context.Background(), auth.SessionClaims{UserID: "user-9"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if actor.Username != "user-9" {
		t.Fatalf("expected subject as username, got %q", actor.Username)
	}
}

func TestResolveActorRejectsEmptyClaims(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.ResolveActor(context.Background(), auth.SessionClaims{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity error, got %v", err)
	}
}

func TestFindByUsername(t *testing.T) {
	service, db := newTestService(t)
	if err := db.Create(&User{Username: "bob"}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	user, err := service.FindByUsername(context.Background(), " bob ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "bob" {
		t.Fatalf("unexpected user %q", user.Username)
	}

	if _, err := service.FindByUsername(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.FindByID(context.Background(), 999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found by id, got %v", err)
	}
}

func TestResolveActorSuffixesTakenUsername(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	first, err := service.ResolveActor(ctx, auth.SessionClaims{UserID: "google:1", UserName: "sam"})
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := service.ResolveActor(ctx, auth.SessionClaims{UserID: "github:9", UserName: "sam"})
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second.UserID == 0 || second.UserID == first.UserID {
		t.Fatalf("expected a distinct persisted user, got %d and %d", first.UserID, second.UserID)
	}
	if second.Username != "sam-github-9" {
		t.Fatalf("expected suffixed username, got %q", second.Username)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", "github", "9").Take(&identity).Error; err != nil {
		t.Fatalf("expected github identity: %v", err)
	}
	if identity.UserID != second.UserID {
		t.Fatalf("identity points at user %d, want %d", identity.UserID, second.UserID)
	}
	var count int64
	db.Model(&User{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected two users, got %d", count)
	}
}

func TestResolveActorRejectsExhaustedUsernames(t *testing.T) {
	service, db := newTestService(t)
	for _, name := range []string{"sam", "sam-github-9"} {
		if err := db.Create(&User{Username: name}).Error; err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}

	_, err := service.ResolveActor(context.Background(), auth.SessionClaims{UserID: "github:9", UserName: "sam"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
	var count int64
	db.Model(&Identity{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no identity to be stored, got %d", count)
	}
	if _, ok := service.cache.Load("github:9"); ok {
		t.Fatalf("expected failed resolution to stay uncached")
	}
}

func TestResolveActorRejectsIdentityWithoutUser(t *testing.T) {
	service, db := newTestService(t)
	orphan := Identity{Provider: "github", Subject: "4", LastSeenAt: time.Unix(1, 0)}
	if err := db.Omit("User").Create(&orphan).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}

	_, err := service.ResolveActor(context.Background(), auth.SessionClaims{UserID: "github:4"})
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}
