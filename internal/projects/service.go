package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/serviceerror"
	"github.com/binaryblob/binaryblob/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnerNotUpdatedWarning is reported when task_owner names no known user.
const OwnerNotUpdatedWarning = "Owner was not updated: No such user!"

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingRecorder = errors.New("audit recorder is required")
	errMissingUsers    = errors.New("user directory is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew     = "projects.service.new"
	opCreateTask     = "projects.create_task"
	opUpdateTask     = "projects.update_task"
	opAdvanceStatus  = "projects.advance_status"
	opRollbackStatus = "projects.rollback_status"
	opAddNote        = "projects.add_note"
	opListTasks      = "projects.list_tasks"
	opTaskDetails    = "projects.task_details"
)

// UserDirectory resolves users for ownership changes and history display.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
	FindByID(ctx context.Context, id uint) (users.User, error)
}

// ServiceConfig describes the dependencies of the task tracker service.
type ServiceConfig struct {
	Database *gorm.DB
	Recorder *audit.Recorder
	Users    UserDirectory
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service implements task mutations, status transitions, notes and dependencies.
type Service struct {
	db       *gorm.DB
	recorder *audit.Recorder
	users    UserDirectory
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Recorder == nil {
		return nil, serviceerror.New(opServiceNew, "missing_recorder", errMissingRecorder)
	}
	if cfg.Users == nil {
		return nil, serviceerror.New(opServiceNew, "missing_users", errMissingUsers)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		recorder: cfg.Recorder,
		users:    cfg.Users,
		clock:    clock,
		logger:   logger,
	}, nil
}

// UpdateResult is the outcome of a create or update submission.
// Warnings carry non-fatal problems such as an unknown owner.
type UpdateResult struct {
	Task     Task
	Warnings []string
}

// CreateTask inserts a task from a submitted form and runs the update pipeline on it.
func (s *Service) CreateTask(ctx context.Context, actor users.Actor, values FieldValues) (UpdateResult, error) {
	if err := s.ready(opCreateTask); err != nil {
		return UpdateResult{}, err
	}
	if err := actor.Require(users.CapabilityAddTask); err != nil {
		return UpdateResult{}, serviceerror.New(opCreateTask, "permission_denied", err)
	}
	title := strings.TrimSpace(values[KeyTitle])
	if title == "" {
		return UpdateResult{}, serviceerror.New(opCreateTask, "invalid_task", fmt.Errorf("%w: title required", ErrInvalidTask))
	}
	if !titleFits(values[KeyTitle]) {
		return UpdateResult{}, serviceerror.New(opCreateTask, "invalid_task", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidTask, maxTitleLength))
	}

	task := Task{Title: values[KeyTitle]}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&task).Error; err != nil {
			return serviceerror.New(opCreateTask, "insert_failed", err)
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Entity:     audit.EntityTask,
			RecordID:   task.ID,
			NewValue:   audit.CreatedMarker,
			ActorID:    actor.UserID,
			OccurredAt: s.clock(),
		})
		return err
	})
	if err != nil {
		s.logError(opCreateTask, "create_failed", err, zap.Uint("actor_id", actor.UserID))
		return UpdateResult{}, err
	}

	return s.applyUpdate(ctx, opCreateTask, actor, task.ID, values)
}

// UpdateTask applies a submitted form to an existing task.
func (s *Service) UpdateTask(ctx context.Context, actor users.Actor, taskID uint, values FieldValues) (UpdateResult, error) {
	if err := s.ready(opUpdateTask); err != nil {
		return UpdateResult{}, err
	}
	if err := actor.Require(users.CapabilityChangeTask); err != nil {
		return UpdateResult{}, serviceerror.New(opUpdateTask, "permission_denied", err)
	}
	return s.applyUpdate(ctx, opUpdateTask, actor, taskID, values)
}

// applyUpdate runs the mutation pipeline. The core fields, dependency removal,
// dependency addition and owner change are separate units of work: a failure in a
// later unit leaves the earlier ones applied.
func (s *Service) applyUpdate(ctx context.Context, operation string, actor users.Actor, taskID uint, values FieldValues) (UpdateResult, error) {
	result := UpdateResult{}
	fields := []zap.Field{zap.Uint("task_id", taskID), zap.Uint("actor_id", actor.UserID)}

	if err := s.applyCoreFields(ctx, operation, actor, taskID, values); err != nil {
		s.logError(operation, "core_fields_failed", err, fields...)
		return result, err
	}
	if raw := values[KeyDependencyDrop]; raw != "" {
		if err := s.removeDependencyFromForm(ctx, operation, actor, taskID, raw); err != nil {
			s.logError(operation, "dependency_remove_failed", err, fields...)
			return result, err
		}
	}
	if raw := values[KeyDependencyAdd]; raw != "" {
		if err := s.addDependencyFromForm(ctx, operation, actor, taskID, raw); err != nil {
			s.logError(operation, "dependency_add_failed", err, fields...)
			return result, err
		}
	}
	if username := strings.TrimSpace(values[KeyOwner]); username != "" {
		warning, err := s.changeOwner(ctx, operation, actor, taskID, username)
		if err != nil {
			s.logError(operation, "owner_change_failed", err, fields...)
			return result, err
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return result, serviceerror.New(operation, "task_reload_failed", err)
	}
	result.Task = task
	return result, nil
}

func (s *Service) applyCoreFields(ctx context.Context, operation string, actor users.Actor, taskID uint, values FieldValues) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return serviceerror.New(operation, "task_lookup_failed", err)
		}
		storedRank := task.StatusRank

		at := s.clock()
		diffs := stageTaskChanges(&task, values)

		if task.StatusRank != nil && (storedRank == nil || *storedRank != *task.StatusRank) {
			if _, err := StatusByRank(ctx, tx, *task.StatusRank); err != nil {
				return serviceerror.New(operation, "status_lookup_failed", err)
			}
		}

		var forced *audit.Diff
		if task.StatusRank == nil {
			initial, err := InitialStatus(ctx, tx)
			if err != nil {
				return serviceerror.New(operation, "status_lookup_failed", err)
			}
			diff := assignInitialStatus(&task, initial)
			forced = &diff
		}

		if _, err := s.recorder.RecordBatch(ctx, tx, audit.Entries(audit.EntityTask, task.ID, actor.UserID, at, diffs)); err != nil {
			return err
		}
		if forced != nil {
			if _, err := s.recorder.Record(ctx, tx, audit.Entries(audit.EntityTask, task.ID, actor.UserID, at, []audit.Diff{*forced})[0]); err != nil {
				return err
			}
		}

		if parentID, ok := parseID(values[KeyParent]); ok {
			if _, err := loadTask(ctx, tx, parentID); err != nil {
				return serviceerror.New(operation, "parent_lookup_failed", err)
			}
			if task.ParentTaskID == nil || *task.ParentTaskID != parentID {
				diff := audit.Diff{Field: fieldParent, Old: formatID(task.ParentTaskID), New: formatID(&parentID)}
				if _, err := s.recorder.Record(ctx, tx, audit.Entries(audit.EntityTask, task.ID, actor.UserID, at, []audit.Diff{diff})[0]); err != nil {
					return err
				}
				task.ParentTaskID = &parentID
			}
		}

		if err := tx.Omit(clause.Associations).Save(&task).Error; err != nil {
			return serviceerror.New(operation, "task_save_failed", err)
		}
		return nil
	})
}

func (s *Service) removeDependencyFromForm(ctx context.Context, operation string, actor users.Actor, taskID uint, raw string) error {
	dependsOnID, ok := parseID(raw)
	if !ok {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := removeDependency(ctx, tx, taskID, dependsOnID)
		if err != nil {
			return serviceerror.New(operation, "dependency_delete_failed", err)
		}
		if removed == 0 {
			return nil
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			Entity:     audit.EntityTask,
			RecordID:   taskID,
			Field:      fieldDependency,
			OldValue:   formatID(&dependsOnID),
			ActorID:    actor.UserID,
			OccurredAt: s.clock(),
		})
		return err
	})
}

func (s *Service) addDependencyFromForm(ctx context.Context, operation string, actor users.Actor, taskID uint, raw string) error {
	dependsOnID, ok := parseID(raw)
	if !ok {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := addDependency(ctx, tx, taskID, dependsOnID); err != nil {
			return serviceerror.New(operation, "dependency_insert_failed", err)
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Entity:     audit.EntityTask,
			RecordID:   taskID,
			Field:      fieldDependency,
			NewValue:   formatID(&dependsOnID),
			ActorID:    actor.UserID,
			OccurredAt: s.clock(),
		})
		return err
	})
}

// changeOwner returns a warning instead of an error when the username is unknown.
func (s *Service) changeOwner(ctx context.Context, operation string, actor users.Actor, taskID uint, username string) (string, error) {
	owner, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, users.ErrUserNotFound) {
		return OwnerNotUpdatedWarning, nil
	}
	if err != nil {
		return "", serviceerror.New(operation, "owner_lookup_failed", err)
	}

	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return "", serviceerror.New(operation, "task_lookup_failed", err)
	}
	if task.OwnerID != nil && *task.OwnerID == owner.ID {
		return "", nil
	}
	previous := ""
	if task.OwnerID != nil {
		previous = formatID(task.OwnerID)
		if current, err := s.users.FindByID(ctx, *task.OwnerID); err == nil {
			previous = current.Username
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Entity:     audit.EntityTask,
			RecordID:   taskID,
			Field:      fieldOwner,
			OldValue:   previous,
			NewValue:   owner.Username,
			ActorID:    actor.UserID,
			OccurredAt: s.clock(),
		})
		if err != nil {
			return err
		}
		if err := tx.Model(&Task{}).Where("id = ?", taskID).Update("owner_id", owner.ID).Error; err != nil {
			return serviceerror.New(operation, "owner_save_failed", err)
		}
		return nil
	})
	return "", err
}

// AdvanceStatus moves the task to the next rank. A task without status is set to rank 0.
// On the last rank it is a no-op.
func (s *Service) AdvanceStatus(ctx context.Context, actor users.Actor, taskID uint) (Task, error) {
	return s.transition(ctx, opAdvanceStatus, actor, taskID, func(tx *gorm.DB, task *Task, now time.Time) ([]audit.Diff, error) {
		next, ok, err := NextStatus(ctx, tx, *task.StatusRank)
		if err != nil || !ok {
			return nil, err
		}
		return advanceTo(task, next, now), nil
	})
}

// RollbackStatus moves the task to the previous rank. A task without status is set to
// rank 0. On rank 0 it is a no-op.
func (s *Service) RollbackStatus(ctx context.Context, actor users.Actor, taskID uint) (Task, error) {
	return s.transition(ctx, opRollbackStatus, actor, taskID, func(tx *gorm.DB, task *Task, _ time.Time) ([]audit.Diff, error) {
		previous, ok, err := PreviousStatus(ctx, tx, *task.StatusRank)
		if err != nil || !ok {
			return nil, err
		}
		return rollbackTo(task, previous), nil
	})
}

type transitionFunc func(tx *gorm.DB, task *Task, now time.Time) ([]audit.Diff, error)

func (s *Service) transition(ctx context.Context, operation string, actor users.Actor, taskID uint, apply transitionFunc) (Task, error) {
	if err := s.ready(operation); err != nil {
		return Task{}, err
	}
	if err := actor.Require(users.CapabilityChangeTask); err != nil {
		return Task{}, serviceerror.New(operation, "permission_denied", err)
	}

	var task Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return serviceerror.New(operation, "task_lookup_failed", err)
		}
		task = loaded

		now := s.clock().UTC()
		var diffs []audit.Diff
		if task.StatusRank == nil {
			initial, err := InitialStatus(ctx, tx)
			if err != nil {
				return serviceerror.New(operation, "status_lookup_failed", err)
			}
			diffs = []audit.Diff{assignInitialStatus(&task, initial)}
		} else {
			diffs, err = apply(tx, &task, now)
			if err != nil {
				return serviceerror.New(operation, "status_lookup_failed", err)
			}
		}
		if len(diffs) == 0 {
			return nil
		}

		if _, err := s.recorder.RecordBatch(ctx, tx, audit.Entries(audit.EntityTask, task.ID, actor.UserID, now, diffs)); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&task).Error; err != nil {
			return serviceerror.New(operation, "task_save_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(operation, "transition_failed", err, zap.Uint("task_id", taskID), zap.Uint("actor_id", actor.UserID))
		return Task{}, err
	}
	return task, nil
}

// AddNote attaches a note written by actor to the task.
func (s *Service) AddNote(ctx context.Context, actor users.Actor, taskID uint, text string) (TaskNote, error) {
	if err := s.ready(opAddNote); err != nil {
		return TaskNote{}, err
	}
	if err := actor.Require(users.CapabilityAddTaskNote); err != nil {
		return TaskNote{}, serviceerror.New(opAddNote, "permission_denied", err)
	}
	if strings.TrimSpace(text) == "" {
		return TaskNote{}, serviceerror.New(opAddNote, "invalid_note", ErrInvalidNote)
	}
	if _, err := loadTask(ctx, s.db, taskID); err != nil {
		return TaskNote{}, serviceerror.New(opAddNote, "task_lookup_failed", err)
	}

	note := TaskNote{
		TaskID:  taskID,
		OwnerID: actor.UserID,
		Date:    s.clock().UTC(),
		Text:    text,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&note).Error; err != nil {
		s.logError(opAddNote, "insert_failed", err, zap.Uint("task_id", taskID))
		return TaskNote{}, serviceerror.New(opAddNote, "insert_failed", err)
	}
	return note, nil
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		return serviceerror.New(operation, "missing_database", errMissingDatabase)
	}
	if s.recorder == nil {
		return serviceerror.New(operation, "missing_recorder", errMissingRecorder)
	}
	return nil
}

func loadTask(ctx context.Context, db *gorm.DB, taskID uint) (Task, error) {
	var task Task
	err := db.WithContext(ctx).Take(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, fmt.Errorf("%w: id %d", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("projects service error", attrs...)
}
