package blog

import (
	"errors"
	"time"

	"github.com/binaryblob/binaryblob/internal/users"
)

var (
	// ErrEntryNotFound indicates that a blog entry id does not resolve.
	ErrEntryNotFound = errors.New("blog: entry not found")
	// ErrCommentNotFound indicates that a comment id does not resolve.
	ErrCommentNotFound = errors.New("blog: comment not found")
	// ErrInvalidEntry indicates a missing or oversized title or body.
	ErrInvalidEntry = errors.New("blog: invalid entry")
	// ErrInvalidComment indicates a missing or oversized comment body.
	ErrInvalidComment = errors.New("blog: invalid comment")
)

const (
	maxTitleLength   = 80
	maxBodyLength    = 65536
	maxCommentLength = 4096
)

// Entry is a published blog post.
type Entry struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement"`
	AuthorID   uint       `gorm:"column:author_id;not null;index"`
	Author     users.User `gorm:"foreignKey:AuthorID;constraint:OnDelete:RESTRICT"`
	CreatedOn  time.Time  `gorm:"column:created_on;not null;autoCreateTime"`
	LastEdited time.Time  `gorm:"column:last_edited;not null;autoUpdateTime"`
	Title      string     `gorm:"column:title;size:80;not null"`
	Body       string     `gorm:"column:body;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "blog_entries"
}

// Comment is a reader comment. AuthorID is nil for anonymous comments.
type Comment struct {
	ID         uint        `gorm:"column:id;primaryKey;autoIncrement"`
	AuthorID   *uint       `gorm:"column:author_id;index"`
	Author     *users.User `gorm:"foreignKey:AuthorID;constraint:OnDelete:RESTRICT"`
	CreatedOn  time.Time   `gorm:"column:created_on;not null;autoCreateTime"`
	LastEdited time.Time   `gorm:"column:last_edited;not null;autoUpdateTime"`
	Body       string      `gorm:"column:body;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// EntryComment attaches a comment to an entry.
type EntryComment struct {
	ID        uint    `gorm:"column:id;primaryKey;autoIncrement"`
	EntryID   uint    `gorm:"column:entry_id;not null;index"`
	Entry     Entry   `gorm:"foreignKey:EntryID;constraint:OnDelete:RESTRICT"`
	CommentID uint    `gorm:"column:comment_id;not null;uniqueIndex"`
	Comment   Comment `gorm:"foreignKey:CommentID;constraint:OnDelete:RESTRICT"`
}

// TableName provides the explicit table binding for GORM.
func (EntryComment) TableName() string {
	return "blog_comments"
}

// EntryEdit snapshots an entry's title and body as they were before one edit.
type EntryEdit struct {
	ID          uint       `gorm:"column:id;primaryKey;autoIncrement"`
	EntryID     uint       `gorm:"column:entry_id;not null;index"`
	Entry       Entry      `gorm:"foreignKey:EntryID;constraint:OnDelete:RESTRICT"`
	EditorID    uint       `gorm:"column:editor_id;not null"`
	Editor      users.User `gorm:"foreignKey:EditorID;constraint:OnDelete:RESTRICT"`
	DateChanged time.Time  `gorm:"column:date_changed;not null"`
	OldTitle    string     `gorm:"column:old_title;size:80;not null;default:''"`
	OldBody     string     `gorm:"column:old_body;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EntryEdit) TableName() string {
	return "blog_edits"
}

// CommentEdit snapshots a comment body as it was before one edit.
type CommentEdit struct {
	ID          uint       `gorm:"column:id;primaryKey;autoIncrement"`
	CommentID   uint       `gorm:"column:comment_id;not null;index"`
	Comment     Comment    `gorm:"foreignKey:CommentID;constraint:OnDelete:RESTRICT"`
	EditorID    uint       `gorm:"column:editor_id;not null"`
	Editor      users.User `gorm:"foreignKey:EditorID;constraint:OnDelete:RESTRICT"`
	DateChanged time.Time  `gorm:"column:date_changed;not null"`
	OldBody     string     `gorm:"column:old_body;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CommentEdit) TableName() string {
	return "comment_edits"
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Entry{}, &Comment{}, &EntryComment{}, &EntryEdit{}, &CommentEdit{}}
}
