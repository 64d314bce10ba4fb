package projects

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/binaryblob/binaryblob/internal/audit"
)

// FieldValues is a submitted form: string keys to string values.
type FieldValues map[string]string

// Recognized form keys.
const (
	KeyStatus         = "task_status"
	KeyTitle          = "task_title"
	KeyDescription    = "task_desc"
	KeyPriority       = "task_priority"
	KeyScheduledStart = "task_scheduled_start"
	KeyStartedOn      = "task_started_on"
	KeyDeadline       = "task_deadline"
	KeyCompletedOn    = "task_completed_on"
	KeyParent         = "task_parent"
	KeyDependencyAdd  = "task_deps"
	KeyDependencyDrop = "task_deps_remove"
	KeyOwner          = "task_owner"
	KeyNote           = "task_note"
)

const (
	fieldTitle       = "title"
	fieldDescription = "desc"
	fieldPriority    = "priority"
	fieldParent      = "parent_task"
	fieldDependency  = "dependencies"
	fieldOwner       = "owner"
)

// Lookup returns the submitted value for key and whether the key was present.
func (v FieldValues) Lookup(key string) (string, bool) {
	value, ok := v[key]
	return value, ok
}

// dateField binds a date/time form key to its task column.
type dateField struct {
	key    string
	name   string
	column func(*Task) **time.Time
}

var taskDateFields = []dateField{
	{key: KeyScheduledStart, name: "scheduled_start", column: func(t *Task) **time.Time { return &t.ScheduledStart }},
	{key: KeyStartedOn, name: fieldStartedOn, column: func(t *Task) **time.Time { return &t.StartedOn }},
	{key: KeyDeadline, name: "deadline", column: func(t *Task) **time.Time { return &t.Deadline }},
	{key: KeyCompletedOn, name: "completed_on", column: func(t *Task) **time.Time { return &t.CompletedOn }},
}

// titleFits reports whether title fits the title column, counted in characters.
func titleFits(title string) bool {
	return utf8.RuneCountInString(title) <= maxTitleLength
}

// stageTaskChanges diffs the recognized plain and date/time fields against task and
// applies the submitted values to it. Unchanged, malformed or over-long values
// stage nothing.
func stageTaskChanges(task *Task, values FieldValues) []audit.Diff {
	var diffs []audit.Diff

	if raw, ok := values.Lookup(KeyStatus); ok {
		if rank, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && rank >= 0 {
			if task.StatusRank == nil || *task.StatusRank != rank {
				diffs = append(diffs, audit.Diff{Field: fieldStatus, Old: formatRank(task.StatusRank), New: formatRank(&rank)})
				task.StatusRank = rankPointer(rank)
			}
		}
	}
	if raw, ok := values.Lookup(KeyTitle); ok && raw != task.Title && titleFits(raw) {
		diffs = append(diffs, audit.Diff{Field: fieldTitle, Old: task.Title, New: raw})
		task.Title = raw
	}
	if raw, ok := values.Lookup(KeyDescription); ok && raw != task.Description {
		diffs = append(diffs, audit.Diff{Field: fieldDescription, Old: task.Description, New: raw})
		task.Description = raw
	}
	if raw, ok := values.Lookup(KeyPriority); ok {
		if priority, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && priority != task.Priority {
			diffs = append(diffs, audit.Diff{
				Field: fieldPriority,
				Old:   strconv.Itoa(task.Priority),
				New:   strconv.Itoa(priority),
			})
			task.Priority = priority
		}
	}

	for _, field := range taskDateFields {
		raw, ok := values.Lookup(field.key)
		if !ok || raw == "" {
			continue
		}
		submitted, ok := parseDateTime(raw)
		if !ok {
			continue
		}
		stored := field.column(task)
		if sameInstant(*stored, submitted) {
			continue
		}
		diffs = append(diffs, audit.Diff{Field: field.name, Old: formatTime(*stored), New: formatTime(&submitted)})
		*stored = &submitted
	}

	return diffs
}
