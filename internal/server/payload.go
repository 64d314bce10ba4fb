package server

import (
	"time"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/blog"
	"github.com/binaryblob/binaryblob/internal/projects"
)

type taskPayload struct {
	ID             uint       `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       int        `json:"priority"`
	Status         *int64     `json:"status"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	StartedOn      *time.Time `json:"started_on,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	CompletedOn    *time.Time `json:"completed_on,omitempty"`
	ParentTaskID   *uint      `json:"parent_task_id,omitempty"`
	OwnerID        *uint      `json:"owner_id,omitempty"`
}

type statusPayload struct {
	Rank int64  `json:"rank"`
	Name string `json:"name"`
}

type notePayload struct {
	ID      uint      `json:"id"`
	OwnerID uint      `json:"owner_id"`
	Date    time.Time `json:"date"`
	Text    string    `json:"text"`
}

type eventPayload struct {
	EventID    string    `json:"event_id"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	ActorID    uint      `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type taskUpdatePayload struct {
	Task     taskPayload `json:"task"`
	Warnings []string    `json:"warnings"`
}

type taskIndexPayload struct {
	Tasks           []taskPayload `json:"tasks"`
	MostPressing    []taskPayload `json:"most_pressing"`
	HighestPriority []taskPayload `json:"highest_priority"`
	NeedsPolish     []taskPayload `json:"needs_polish"`
	Incomplete      []taskPayload `json:"incomplete"`
	Complete        []taskPayload `json:"complete"`
}

type taskDetailsPayload struct {
	Task         taskPayload    `json:"task"`
	Status       *statusPayload `json:"status"`
	Notes        []notePayload  `json:"notes"`
	Dependencies []taskPayload  `json:"dependencies"`
	Dependents   []taskPayload  `json:"dependents"`
	History      []eventPayload `json:"history"`
}

type entryPayload struct {
	ID         uint      `json:"id"`
	AuthorID   uint      `json:"author_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedOn  time.Time `json:"created_on"`
	LastEdited time.Time `json:"last_edited"`
}

type commentPayload struct {
	ID         uint      `json:"id"`
	AuthorID   *uint     `json:"author_id"`
	Body       string    `json:"body"`
	CreatedOn  time.Time `json:"created_on"`
	LastEdited time.Time `json:"last_edited"`
}

type entryEditPayload struct {
	EditorID    uint      `json:"editor_id"`
	DateChanged time.Time `json:"date_changed"`
	OldTitle    string    `json:"old_title"`
	OldBody     string    `json:"old_body"`
}

type entryDetailsPayload struct {
	Entry    entryPayload       `json:"entry"`
	Comments []commentPayload   `json:"comments"`
	Edits    []entryEditPayload `json:"edits"`
	History  []eventPayload     `json:"history"`
}

func newTaskPayload(task projects.Task) taskPayload {
	return taskPayload{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Priority:       task.Priority,
		Status:         task.StatusRank,
		ScheduledStart: task.ScheduledStart,
		StartedOn:      task.StartedOn,
		Deadline:       task.Deadline,
		CompletedOn:    task.CompletedOn,
		ParentTaskID:   task.ParentTaskID,
		OwnerID:        task.OwnerID,
	}
}

func newTaskPayloads(tasks []projects.Task) []taskPayload {
	payloads := make([]taskPayload, 0, len(tasks))
	for _, task := range tasks {
		payloads = append(payloads, newTaskPayload(task))
	}
	return payloads
}

func newNotePayload(note projects.TaskNote) notePayload {
	return notePayload{ID: note.ID, OwnerID: note.OwnerID, Date: note.Date, Text: note.Text}
}

func newEventPayloads(events []audit.Event) []eventPayload {
	payloads := make([]eventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, eventPayload{
			EventID:    event.EventID,
			Field:      event.Field,
			OldValue:   event.OldValue,
			NewValue:   event.NewValue,
			ActorID:    event.ActorID,
			OccurredAt: event.OccurredAt,
		})
	}
	return payloads
}

func newTaskDetailsPayload(details projects.TaskDetails) taskDetailsPayload {
	payload := taskDetailsPayload{
		Task:         newTaskPayload(details.Task),
		Notes:        make([]notePayload, 0, len(details.Notes)),
		Dependencies: newTaskPayloads(details.Dependencies),
		Dependents:   newTaskPayloads(details.Dependents),
		History:      newEventPayloads(details.History),
	}
	if details.Status != nil {
		payload.Status = &statusPayload{Rank: details.Status.ProgressID, Name: details.Status.Name}
	}
	for _, note := range details.Notes {
		payload.Notes = append(payload.Notes, newNotePayload(note))
	}
	return payload
}

func newEntryPayload(entry blog.Entry) entryPayload {
	return entryPayload{
		ID:         entry.ID,
		AuthorID:   entry.AuthorID,
		Title:      entry.Title,
		Body:       entry.Body,
		CreatedOn:  entry.CreatedOn,
		LastEdited: entry.LastEdited,
	}
}

func newCommentPayload(comment blog.Comment) commentPayload {
	return commentPayload{
		ID:         comment.ID,
		AuthorID:   comment.AuthorID,
		Body:       comment.Body,
		CreatedOn:  comment.CreatedOn,
		LastEdited: comment.LastEdited,
	}
}

func newEntryDetailsPayload(details blog.EntryDetails) entryDetailsPayload {
	payload := entryDetailsPayload{
		Entry:    newEntryPayload(details.Entry),
		Comments: make([]commentPayload, 0, len(details.Comments)),
		Edits:    make([]entryEditPayload, 0, len(details.Edits)),
		History:  newEventPayloads(details.History),
	}
	for _, comment := range details.Comments {
		payload.Comments = append(payload.Comments, newCommentPayload(comment))
	}
	for _, edit := range details.Edits {
		payload.Edits = append(payload.Edits, entryEditPayload{
			EditorID:    edit.EditorID,
			DateChanged: edit.DateChanged,
			OldTitle:    edit.OldTitle,
			OldBody:     edit.OldBody,
		})
	}
	return payload
}
