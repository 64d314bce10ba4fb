package audit

import (
	"errors"
	"time"
)

// EntityKind names a loggable table. Only the kinds below are accepted.
type EntityKind string

const (
	EntityTask      EntityKind = "tasks"
	EntityBlogEntry EntityKind = "blog_entries"
	EntityComment   EntityKind = "comments"
)

// Valid reports whether the kind is one of the known loggable tables.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityTask, EntityBlogEntry, EntityComment:
		return true
	default:
		return false
	}
}

// CreatedMarker is the new value logged when a record is first created.
const CreatedMarker = "Created object"

var (
	// ErrUnknownEntity indicates an entry targets a table that is not loggable.
	ErrUnknownEntity = errors.New("audit: unknown entity kind")
	// ErrMissingRecordID indicates an entry has no target record.
	ErrMissingRecordID = errors.New("audit: record id required")
	// ErrMissingActor indicates an entry has no acting user.
	ErrMissingActor = errors.New("audit: actor required")
)

// Event is one immutable audit row.
type Event struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID    string     `gorm:"column:event_id;size:64;not null;uniqueIndex"`
	Entity     EntityKind `gorm:"column:entity_table;size:64;not null;index:idx_audit_target,priority:1"`
	RecordID   uint       `gorm:"column:record_id;not null;index:idx_audit_target,priority:2"`
	Field      string     `gorm:"column:field;size:64;not null;default:''"`
	OldValue   string     `gorm:"column:old_value;type:text;not null;default:''"`
	NewValue   string     `gorm:"column:new_value;type:text;not null;default:''"`
	ActorID    uint       `gorm:"column:actor_id;not null;index"`
	OccurredAt time.Time  `gorm:"column:occurred_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "audit_events"
}

// Diff is a staged (field, old, new) change.
type Diff struct {
	Field string
	Old   string
	New   string
}

// Entry is the input for one audit row.
type Entry struct {
	Entity     EntityKind
	RecordID   uint
	Field      string
	OldValue   string
	NewValue   string
	ActorID    uint
	OccurredAt time.Time
}

func (e Entry) validate() error {
	if !e.Entity.Valid() {
		return ErrUnknownEntity
	}
	if e.RecordID == 0 {
		return ErrMissingRecordID
	}
	if e.ActorID == 0 {
		return ErrMissingActor
	}
	return nil
}

// Entries expands staged diffs into entries sharing target, actor and timestamp.
func Entries(entity EntityKind, recordID, actorID uint, at time.Time, diffs []Diff) []Entry {
	entries := make([]Entry, 0, len(diffs))
	for _, diff := range diffs {
		entries = append(entries, Entry{
			Entity:     entity,
			RecordID:   recordID,
			Field:      diff.Field,
			OldValue:   diff.Old,
			NewValue:   diff.New,
			ActorID:    actorID,
			OccurredAt: at,
		})
	}
	return entries
}
