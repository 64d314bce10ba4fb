package projects

import (
	"cmp"
	"context"
	"slices"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/serviceerror"
	"github.com/binaryblob/binaryblob/internal/users"
	"go.uber.org/zap"
)

const summaryLimit = 5

// TaskIndex is the task overview visible to one user.
type TaskIndex struct {
	Tasks           []Task
	MostPressing    []Task
	HighestPriority []Task
	NeedsPolish     []Task
	Incomplete      []Task
	Complete        []Task
}

// TaskDetails bundles a task with everything its detail view shows.
type TaskDetails struct {
	Task         Task
	Status       *Status
	Notes        []TaskNote
	Dependencies []Task
	Dependents   []Task
	History      []audit.Event
}

// ListTasks returns the tasks owned by actor or by nobody, with summaries.
// NeedsPolish holds incomplete tasks at the status just before the final one.
func (s *Service) ListTasks(ctx context.Context, actor users.Actor) (TaskIndex, error) {
	if err := s.ready(opListTasks); err != nil {
		return TaskIndex{}, err
	}

	var tasks []Task
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? OR owner_id IS NULL", actor.UserID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		s.logError(opListTasks, "query_failed", err, zap.Uint("actor_id", actor.UserID))
		return TaskIndex{}, serviceerror.New(opListTasks, "query_failed", err)
	}

	finalRank, hasStatuses, err := HighestRank(ctx, s.db)
	if err != nil {
		return TaskIndex{}, serviceerror.New(opListTasks, "status_query_failed", err)
	}

	index := TaskIndex{Tasks: tasks}
	for _, task := range tasks {
		if isComplete(task, finalRank, hasStatuses) {
			index.Complete = append(index.Complete, task)
		} else {
			index.Incomplete = append(index.Incomplete, task)
		}
	}

	for _, task := range index.Incomplete {
		if task.Deadline != nil {
			index.MostPressing = append(index.MostPressing, task)
		}
	}
	slices.SortStableFunc(index.MostPressing, func(a, b Task) int {
		return a.Deadline.Compare(*b.Deadline)
	})
	index.MostPressing = limit(index.MostPressing)

	index.HighestPriority = slices.Clone(index.Incomplete)
	slices.SortStableFunc(index.HighestPriority, func(a, b Task) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	index.HighestPriority = limit(index.HighestPriority)

	if hasStatuses {
		review, ok, err := PreviousStatus(ctx, s.db, finalRank)
		if err != nil {
			return TaskIndex{}, serviceerror.New(opListTasks, "status_query_failed", err)
		}
		if ok {
			index.NeedsPolish = limit(tasksAtRank(index.Incomplete, review.ProgressID))
		}
	}

	return index, nil
}

// TaskDetails loads one task with its notes, dependency edges and audit history.
func (s *Service) TaskDetails(ctx context.Context, actor users.Actor, taskID uint) (TaskDetails, error) {
	if err := s.ready(opTaskDetails); err != nil {
		return TaskDetails{}, err
	}
	if err := actor.Require(users.CapabilityViewTask); err != nil {
		return TaskDetails{}, serviceerror.New(opTaskDetails, "permission_denied", err)
	}

	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return TaskDetails{}, serviceerror.New(opTaskDetails, "task_lookup_failed", err)
	}
	details := TaskDetails{Task: task}

	if task.StatusRank != nil {
		status, err := StatusByRank(ctx, s.db, *task.StatusRank)
		if err != nil {
			return TaskDetails{}, serviceerror.New(opTaskDetails, "status_lookup_failed", err)
		}
		details.Status = &status
	}
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("date ASC").Find(&details.Notes).Error; err != nil {
		return TaskDetails{}, serviceerror.New(opTaskDetails, "notes_query_failed", err)
	}
	if details.Dependencies, err = s.Dependencies(ctx, taskID); err != nil {
		return TaskDetails{}, serviceerror.New(opTaskDetails, "dependencies_query_failed", err)
	}
	if details.Dependents, err = s.Dependents(ctx, taskID); err != nil {
		return TaskDetails{}, serviceerror.New(opTaskDetails, "dependents_query_failed", err)
	}
	if details.History, err = s.recorder.History(ctx, s.db, audit.EntityTask, taskID); err != nil {
		return TaskDetails{}, err
	}
	return details, nil
}

func isComplete(task Task, finalRank int64, hasStatuses bool) bool {
	if task.CompletedOn != nil {
		return true
	}
	return hasStatuses && task.StatusRank != nil && *task.StatusRank == finalRank
}

// tasksAtRank keeps the tasks whose status has the given rank.
func tasksAtRank(tasks []Task, rank int64) []Task {
	var matching []Task
	for _, task := range tasks {
		if task.StatusRank != nil && *task.StatusRank == rank {
			matching = append(matching, task)
		}
	}
	return matching
}

func limit(tasks []Task) []Task {
	if len(tasks) > summaryLimit {
		return tasks[:summaryLimit]
	}
	return tasks
}
