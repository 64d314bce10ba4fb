package projects

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var fixtureNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	service *Service
	alice   users.User
	bob     users.User
	actor   users.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	models := append([]any{&users.User{}, &users.Identity{}, &audit.Event{}}, Models()...)
	require.NoError(t, db.AutoMigrate(models...))

	statuses := DefaultStatuses()
	require.NoError(t, db.Create(&statuses).Error)

	alice := users.User{Username: "alice"}
	bob := users.User{Username: "bob"}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	require.NoError(t, err)

	clock := func() time.Time { return fixtureNow }
	service, err := NewService(ServiceConfig{
		Database: db,
		Recorder: audit.NewRecorder(audit.RecorderConfig{Clock: clock}),
		Users:    userService,
		Clock:    clock,
	})
	require.NoError(t, err)

	return &fixture{
		db:      db,
		service: service,
		alice:   alice,
		bob:     bob,
		actor:   users.NewActor(alice, []string{users.RoleSuperuser}),
	}
}

func (f *fixture) seedTask(t *testing.T, task Task) Task {
	t.Helper()
	require.NoError(t, f.db.Omit(clause.Associations).Create(&task).Error)
	return task
}

func (f *fixture) reload(t *testing.T, taskID uint) Task {
	t.Helper()
	task, err := loadTask(context.Background(), f.db, taskID)
	require.NoError(t, err)
	return task
}

func (f *fixture) events(t *testing.T, taskID uint) []audit.Event {
	t.Helper()
	var events []audit.Event
	require.NoError(t, f.db.Where("entity_table = ? AND record_id = ?", audit.EntityTask, taskID).Order("id ASC").Find(&events).Error)
	return events
}

func (f *fixture) eventsFor(t *testing.T, taskID uint, field string) []audit.Event {
	t.Helper()
	var matching []audit.Event
	for _, event := range f.events(t, taskID) {
		if event.Field == field {
			matching = append(matching, event)
		}
	}
	return matching
}

func rank(value int64) *int64 {
	return &value
}

func date(year int, month time.Month, day int) *time.Time {
	value := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &value
}
