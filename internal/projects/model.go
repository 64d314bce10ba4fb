package projects

import (
	"errors"
	"time"

	"github.com/binaryblob/binaryblob/internal/users"
)

var (
	// ErrTaskNotFound indicates that a task id does not resolve.
	ErrTaskNotFound = errors.New("projects: task not found")
	// ErrStatusNotFound indicates that a status rank does not resolve.
	ErrStatusNotFound = errors.New("projects: status not found")
	// ErrInvalidTask indicates that a new task lacks required fields.
	ErrInvalidTask = errors.New("projects: invalid task")
	// ErrInvalidNote indicates that a note has no text.
	ErrInvalidNote = errors.New("projects: invalid note")
)

const maxTitleLength = 200

// Status is one progress state. ProgressID is its rank: unique, totally ordered,
// and 0 means "not started".
type Status struct {
	ProgressID int64  `gorm:"column:progress_id;primaryKey;autoIncrement:false"`
	Name       string `gorm:"column:name;size:64;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Status) TableName() string {
	return "task_statuses"
}

// Task is the mutable tracker record. It is never deleted.
type Task struct {
	ID             uint        `gorm:"column:id;primaryKey;autoIncrement"`
	Title          string      `gorm:"column:title;size:200;not null"`
	Description    string      `gorm:"column:description;type:text;not null;default:''"`
	Priority       int         `gorm:"column:priority;not null;default:0"`
	StatusRank     *int64      `gorm:"column:status_progress_id;index"`
	Status         *Status     `gorm:"foreignKey:StatusRank;references:ProgressID;constraint:OnDelete:RESTRICT"`
	ScheduledStart *time.Time  `gorm:"column:scheduled_start"`
	StartedOn      *time.Time  `gorm:"column:started_on"`
	Deadline       *time.Time  `gorm:"column:deadline;index"`
	CompletedOn    *time.Time  `gorm:"column:completed_on"`
	ParentTaskID   *uint       `gorm:"column:parent_task_id;index"`
	ParentTask     *Task       `gorm:"foreignKey:ParentTaskID;constraint:OnDelete:RESTRICT"`
	OwnerID        *uint       `gorm:"column:owner_id;index"`
	Owner          *users.User `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}

// TaskNote is a free-text note attached to a task.
type TaskNote struct {
	ID      uint       `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID  uint       `gorm:"column:task_id;not null;index"`
	Task    Task       `gorm:"foreignKey:TaskID;constraint:OnDelete:RESTRICT"`
	OwnerID uint       `gorm:"column:owner_id;not null"`
	Owner   users.User `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT"`
	Date    time.Time  `gorm:"column:date;not null"`
	Text    string     `gorm:"column:text;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TaskNote) TableName() string {
	return "task_notes"
}

// TaskDependency is a directed edge: TaskID depends on DependsOnID.
// Duplicates and cycles are not rejected.
type TaskDependency struct {
	ID          uint `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID      uint `gorm:"column:task_id;not null;index"`
	Task        Task `gorm:"foreignKey:TaskID;constraint:OnDelete:RESTRICT"`
	DependsOnID uint `gorm:"column:depends_on_id;not null;index"`
	DependsOn   Task `gorm:"foreignKey:DependsOnID;constraint:OnDelete:RESTRICT"`
}

// TableName provides the explicit table binding for GORM.
func (TaskDependency) TableName() string {
	return "task_dependencies"
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Status{}, &Task{}, &TaskNote{}, &TaskDependency{}}
}
