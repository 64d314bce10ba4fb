package projects

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// addDependency inserts one edge after verifying the target exists.
// Neither duplicates nor cycles are rejected.
func addDependency(ctx context.Context, db *gorm.DB, taskID, dependsOnID uint) (TaskDependency, error) {
	if _, err := loadTask(ctx, db, taskID); err != nil {
		return TaskDependency{}, err
	}
	if _, err := loadTask(ctx, db, dependsOnID); err != nil {
		return TaskDependency{}, err
	}
	edge := TaskDependency{TaskID: taskID, DependsOnID: dependsOnID}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(&edge).Error; err != nil {
		return TaskDependency{}, err
	}
	return edge, nil
}

// removeDependency deletes every (taskID, dependsOnID) edge and reports how many went.
func removeDependency(ctx context.Context, db *gorm.DB, taskID, dependsOnID uint) (int64, error) {
	result := db.WithContext(ctx).
		Where("task_id = ? AND depends_on_id = ?", taskID, dependsOnID).
		Delete(&TaskDependency{})
	return result.RowsAffected, result.Error
}

// Dependencies returns the tasks that taskID depends on.
func (s *Service) Dependencies(ctx context.Context, taskID uint) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Joins("JOIN task_dependencies ON task_dependencies.depends_on_id = tasks.id").
		Where("task_dependencies.task_id = ?", taskID).
		Order("tasks.id ASC").
		Find(&tasks).Error
	return tasks, err
}

// Dependents returns the tasks that depend on taskID.
func (s *Service) Dependents(ctx context.Context, taskID uint) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Joins("JOIN task_dependencies ON task_dependencies.task_id = tasks.id").
		Where("task_dependencies.depends_on_id = ?", taskID).
		Order("tasks.id ASC").
		Find(&tasks).Error
	return tasks, err
}

// Edges returns every edge leaving taskID, duplicates included.
func (s *Service) Edges(ctx context.Context, taskID uint) ([]TaskDependency, error) {
	var edges []TaskDependency
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&edges).Error
	return edges, err
}
