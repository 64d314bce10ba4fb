package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/binaryblob/binaryblob/internal/audit"
	"gorm.io/gorm"
)

// InitialRank is the rank of the "not started" status.
const InitialRank int64 = 0

const (
	fieldStatus    = "status"
	fieldStartedOn = "started_on"
)

// DefaultStatuses is the progression seeded into a fresh database.
func DefaultStatuses() []Status {
	return []Status{
		{ProgressID: 0, Name: "Not started"},
		{ProgressID: 1, Name: "In progress"},
		{ProgressID: 2, Name: "In review"},
		{ProgressID: 3, Name: "Done"},
	}
}

// ListStatuses returns every status in rank order.
func ListStatuses(ctx context.Context, db *gorm.DB) ([]Status, error) {
	var statuses []Status
	if err := db.WithContext(ctx).Order("progress_id ASC").Find(&statuses).Error; err != nil {
		return nil, err
	}
	return statuses, nil
}

// StatusByRank resolves the status with exactly the given rank.
func StatusByRank(ctx context.Context, db *gorm.DB, rank int64) (Status, error) {
	var status Status
	err := db.WithContext(ctx).Where("progress_id = ?", rank).Take(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, fmt.Errorf("%w: rank %d", ErrStatusNotFound, rank)
	}
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

// InitialStatus resolves rank 0.
func InitialStatus(ctx context.Context, db *gorm.DB) (Status, error) {
	return StatusByRank(ctx, db, InitialRank)
}

// NextStatus returns the status with the smallest rank strictly greater than rank.
// The boolean is false when rank is already the last one.
func NextStatus(ctx context.Context, db *gorm.DB, rank int64) (Status, bool, error) {
	return adjacentStatus(db.WithContext(ctx).Where("progress_id > ?", rank).Order("progress_id ASC"))
}

// PreviousStatus returns the status with the largest rank strictly less than rank.
// The boolean is false when rank is already the first one.
func PreviousStatus(ctx context.Context, db *gorm.DB, rank int64) (Status, bool, error) {
	return adjacentStatus(db.WithContext(ctx).Where("progress_id < ?", rank).Order("progress_id DESC"))
}

// HighestRank returns the rank of the final status, false when no statuses exist.
func HighestRank(ctx context.Context, db *gorm.DB) (int64, bool, error) {
	status, ok, err := adjacentStatus(db.WithContext(ctx).Order("progress_id DESC"))
	return status.ProgressID, ok, err
}

func adjacentStatus(query *gorm.DB) (Status, bool, error) {
	var statuses []Status
	if err := query.Limit(1).Find(&statuses).Error; err != nil {
		return Status{}, false, err
	}
	if len(statuses) == 0 {
		return Status{}, false, nil
	}
	return statuses[0], true, nil
}

// assignInitialStatus force-sets rank 0 on a task that has no status yet.
func assignInitialStatus(task *Task, initial Status) audit.Diff {
	diff := audit.Diff{Field: fieldStatus, Old: formatRank(task.StatusRank), New: formatRank(&initial.ProgressID)}
	task.StatusRank = rankPointer(initial.ProgressID)
	return diff
}

// advanceTo moves the task onto next. Leaving rank 0 stamps started_on.
func advanceTo(task *Task, next Status, now time.Time) []audit.Diff {
	diffs := make([]audit.Diff, 0, 2)
	if task.StatusRank != nil && *task.StatusRank == InitialRank {
		started := now
		diffs = append(diffs, audit.Diff{Field: fieldStartedOn, Old: formatTime(task.StartedOn), New: formatTime(&started)})
		task.StartedOn = &started
	}
	diffs = append(diffs, audit.Diff{Field: fieldStatus, Old: formatRank(task.StatusRank), New: formatRank(&next.ProgressID)})
	task.StatusRank = rankPointer(next.ProgressID)
	return diffs
}

// rollbackTo moves the task onto previous. Landing on rank 0 clears started_on.
func rollbackTo(task *Task, previous Status) []audit.Diff {
	diffs := make([]audit.Diff, 0, 2)
	if previous.ProgressID == InitialRank && task.StartedOn != nil {
		diffs = append(diffs, audit.Diff{Field: fieldStartedOn, Old: formatTime(task.StartedOn), New: ""})
		task.StartedOn = nil
	}
	diffs = append(diffs, audit.Diff{Field: fieldStatus, Old: formatRank(task.StatusRank), New: formatRank(&previous.ProgressID)})
	task.StatusRank = rankPointer(previous.ProgressID)
	return diffs
}

func rankPointer(rank int64) *int64 {
	value := rank
	return &value
}
