package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/serviceerror"
	"github.com/binaryblob/binaryblob/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recognized form keys.
const (
	KeyTitle   = "blog_title"
	KeyBody    = "blog_body"
	KeyComment = "comment_body"
)

const (
	fieldTitle = "title"
	fieldBody  = "body"
)

const (
	opServiceNew   = "blog.service.new"
	opCreateEntry  = "blog.create_entry"
	opEditEntry    = "blog.edit_entry"
	opAddComment   = "blog.add_comment"
	opEditComment  = "blog.edit_comment"
	opListEntries  = "blog.list_entries"
	opEntryDetails = "blog.entry_details"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingRecorder = errors.New("audit recorder is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the blog service.
type ServiceConfig struct {
	Database *gorm.DB
	Recorder *audit.Recorder
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service publishes entries and comments and keeps both edit histories.
type Service struct {
	db       *gorm.DB
	recorder *audit.Recorder
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
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, recorder: cfg.Recorder, clock: clock, logger: logger}, nil
}

// EntryDetails bundles an entry with its comments and both edit histories.
type EntryDetails struct {
	Entry    Entry
	Comments []Comment
	Edits    []EntryEdit
	History  []audit.Event
}

// CreateEntry publishes a new entry authored by actor.
func (s *Service) CreateEntry(ctx context.Context, actor users.Actor, values map[string]string) (Entry, error) {
	if err := actor.Require(users.CapabilityAddEntry); err != nil {
		return Entry{}, serviceerror.New(opCreateEntry, "permission_denied", err)
	}
	entry := Entry{AuthorID: actor.UserID, Title: values[KeyTitle], Body: values[KeyBody]}
	if err := validateEntry(entry); err != nil {
		return Entry{}, serviceerror.New(opCreateEntry, "invalid_entry", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&entry).Error; err != nil {
			return serviceerror.New(opCreateEntry, "insert_failed", err)
		}
		return s.recordCreated(ctx, tx, audit.EntityBlogEntry, entry.ID, actor)
	})
	if err != nil {
		s.logError(opCreateEntry, "create_failed", err, zap.Uint("actor_id", actor.UserID))
		return Entry{}, err
	}
	return entry, nil
}

// EditEntry applies blog_title and blog_body. When anything changed it stores a
// snapshot of the previous entry and one audit event per changed field.
func (s *Service) EditEntry(ctx context.Context, actor users.Actor, entryID uint, values map[string]string) (Entry, error) {
	if err := actor.Require(users.CapabilityChangeEntry); err != nil {
		return Entry{}, serviceerror.New(opEditEntry, "permission_denied", err)
	}

	var entry Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadEntry(ctx, tx, entryID)
		if err != nil {
			return serviceerror.New(opEditEntry, "entry_lookup_failed", err)
		}
		entry = loaded
		snapshot := EntryEdit{
			EntryID:     entry.ID,
			EditorID:    actor.UserID,
			DateChanged: s.clock().UTC(),
			OldTitle:    entry.Title,
			OldBody:     entry.Body,
		}

		var diffs []audit.Diff
		if title, ok := values[KeyTitle]; ok && title != entry.Title {
			diffs = append(diffs, audit.Diff{Field: fieldTitle, Old: entry.Title, New: title})
			entry.Title = title
		}
		if body, ok := values[KeyBody]; ok && body != entry.Body {
			diffs = append(diffs, audit.Diff{Field: fieldBody, Old: entry.Body, New: body})
			entry.Body = body
		}
		if len(diffs) == 0 {
			return nil
		}
		if err := validateEntry(entry); err != nil {
			return serviceerror.New(opEditEntry, "invalid_entry", err)
		}

		if err := tx.Omit(clause.Associations).Create(&snapshot).Error; err != nil {
			return serviceerror.New(opEditEntry, "snapshot_failed", err)
		}
		entries := audit.Entries(audit.EntityBlogEntry, entry.ID, actor.UserID, snapshot.DateChanged, diffs)
		if _, err := s.recorder.RecordBatch(ctx, tx, entries); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&entry).Error; err != nil {
			return serviceerror.New(opEditEntry, "entry_save_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opEditEntry, "edit_failed", err, zap.Uint("entry_id", entryID), zap.Uint("actor_id", actor.UserID))
		return Entry{}, err
	}
	return entry, nil
}

// AddComment attaches a new comment by actor to the entry.
func (s *Service) AddComment(ctx context.Context, actor users.Actor, entryID uint, values map[string]string) (Comment, error) {
	if err := actor.Require(users.CapabilityAddComment); err != nil {
		return Comment{}, serviceerror.New(opAddComment, "permission_denied", err)
	}
	authorID := actor.UserID
	comment := Comment{AuthorID: &authorID, Body: values[KeyComment]}
	if err := validateComment(comment); err != nil {
		return Comment{}, serviceerror.New(opAddComment, "invalid_comment", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadEntry(ctx, tx, entryID); err != nil {
			return serviceerror.New(opAddComment, "entry_lookup_failed", err)
		}
		if err := tx.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return serviceerror.New(opAddComment, "insert_failed", err)
		}
		link := EntryComment{EntryID: entryID, CommentID: comment.ID}
		if err := tx.Omit(clause.Associations).Create(&link).Error; err != nil {
			return serviceerror.New(opAddComment, "link_failed", err)
		}
		return s.recordCreated(ctx, tx, audit.EntityComment, comment.ID, actor)
	})
	if err != nil {
		s.logError(opAddComment, "create_failed", err, zap.Uint("entry_id", entryID), zap.Uint("actor_id", actor.UserID))
		return Comment{}, err
	}
	return comment, nil
}

// EditComment applies comment_body, snapshotting the previous body when it changed.
func (s *Service) EditComment(ctx context.Context, actor users.Actor, commentID uint, values map[string]string) (Comment, error) {
	if err := actor.Require(users.CapabilityChangeComment); err != nil {
		return Comment{}, serviceerror.New(opEditComment, "permission_denied", err)
	}

	var comment Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadComment(ctx, tx, commentID)
		if err != nil {
			return serviceerror.New(opEditComment, "comment_lookup_failed", err)
		}
		comment = loaded

		body, ok := values[KeyComment]
		if !ok || body == comment.Body {
			return nil
		}
		snapshot := CommentEdit{
			CommentID:   comment.ID,
			EditorID:    actor.UserID,
			DateChanged: s.clock().UTC(),
			OldBody:     comment.Body,
		}
		diff := audit.Diff{Field: fieldBody, Old: comment.Body, New: body}
		comment.Body = body
		if err := validateComment(comment); err != nil {
			return serviceerror.New(opEditComment, "invalid_comment", err)
		}

		if err := tx.Omit(clause.Associations).Create(&snapshot).Error; err != nil {
			return serviceerror.New(opEditComment, "snapshot_failed", err)
		}
		entries := audit.Entries(audit.EntityComment, comment.ID, actor.UserID, snapshot.DateChanged, []audit.Diff{diff})
		if _, err := s.recorder.RecordBatch(ctx, tx, entries); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&comment).Error; err != nil {
			return serviceerror.New(opEditComment, "comment_save_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opEditComment, "edit_failed", err, zap.Uint("comment_id", commentID), zap.Uint("actor_id", actor.UserID))
		return Comment{}, err
	}
	return comment, nil
}

// ListEntries returns every entry, newest first.
func (s *Service) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).Order("created_on DESC").Order("id DESC").Find(&entries).Error; err != nil {
		s.logError(opListEntries, "query_failed", err)
		return nil, serviceerror.New(opListEntries, "query_failed", err)
	}
	return entries, nil
}

// EntryDetails loads one entry with its comments, snapshots and audit events.
func (s *Service) EntryDetails(ctx context.Context, entryID uint) (EntryDetails, error) {
	entry, err := loadEntry(ctx, s.db, entryID)
	if err != nil {
		return EntryDetails{}, serviceerror.New(opEntryDetails, "entry_lookup_failed", err)
	}
	details := EntryDetails{Entry: entry}

	if err := s.db.WithContext(ctx).
		Joins("JOIN blog_comments ON blog_comments.comment_id = comments.id").
		Where("blog_comments.entry_id = ?", entryID).
		Order("comments.id ASC").
		Find(&details.Comments).Error; err != nil {
		return EntryDetails{}, serviceerror.New(opEntryDetails, "comments_query_failed", err)
	}
	if err := s.db.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Order("date_changed ASC").Order("id ASC").
		Find(&details.Edits).Error; err != nil {
		return EntryDetails{}, serviceerror.New(opEntryDetails, "edits_query_failed", err)
	}
	if details.History, err = s.recorder.History(ctx, s.db, audit.EntityBlogEntry, entryID); err != nil {
		return EntryDetails{}, err
	}
	return details, nil
}

// CommentEdits returns the snapshots of one comment, oldest first.
func (s *Service) CommentEdits(ctx context.Context, commentID uint) ([]CommentEdit, error) {
	var edits []CommentEdit
	err := s.db.WithContext(ctx).
		Where("comment_id = ?", commentID).
		Order("date_changed ASC").Order("id ASC").
		Find(&edits).Error
	return edits, err
}

func (s *Service) recordCreated(ctx context.Context, tx *gorm.DB, entity audit.EntityKind, recordID uint, actor users.Actor) error {
	_, err := s.recorder.Record(ctx, tx, audit.Entry{
		Entity:     entity,
		RecordID:   recordID,
		NewValue:   audit.CreatedMarker,
		ActorID:    actor.UserID,
		OccurredAt: s.clock(),
	})
	return err
}

func validateEntry(entry Entry) error {
	switch {
	case strings.TrimSpace(entry.Title) == "":
		return fmt.Errorf("%w: title required", ErrInvalidEntry)
	case utf8.RuneCountInString(entry.Title) > maxTitleLength:
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidEntry, maxTitleLength)
	case utf8.RuneCountInString(entry.Body) > maxBodyLength:
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidEntry, maxBodyLength)
	}
	return nil
}

func validateComment(comment Comment) error {
	switch {
	case strings.TrimSpace(comment.Body) == "":
		return fmt.Errorf("%w: body required", ErrInvalidComment)
	case utf8.RuneCountInString(comment.Body) > maxCommentLength:
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidComment, maxCommentLength)
	}
	return nil
}

func loadEntry(ctx context.Context, db *gorm.DB, entryID uint) (Entry, error) {
	var entry Entry
	err := db.WithContext(ctx).Take(&entry, entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, fmt.Errorf("%w: id %d", ErrEntryNotFound, entryID)
	}
	return entry, err
}

func loadComment(ctx context.Context, db *gorm.DB, commentID uint) (Comment, error) {
	var comment Comment
	err := db.WithContext(ctx).Take(&comment, commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, fmt.Errorf("%w: id %d", ErrCommentNotFound, commentID)
	}
	return comment, err
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
	s.logger.Error("blog service error", attrs...)
}
