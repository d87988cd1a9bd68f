package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/google/uuid"
)

// ErrDuplicateOccurrence signals that the unique (parent_id, scheduled_date)
// index rejected a create. Callers are expected to re-read and update.
var ErrDuplicateOccurrence = errors.New("occurrence already materialized for this date")

type TaskFilter struct {
	ObjectID     *string
	ObjectIDs    []string
	AssignedToID *string
	Statuses     []models.TaskStatus
}

type TaskRepository interface {
	FindByID(ctx context.Context, id string) (models.Task, error)
	FindTemplates(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	FindOneOffs(ctx context.Context, filter TaskFilter, from, to time.Time) ([]models.Task, error)
	FindOccurrences(ctx context.Context, filter TaskFilter, from, to time.Time) ([]models.Task, error)
	FindOccurrenceByTemplateAndDate(ctx context.Context, templateID string, date time.Time) (models.Task, error)
	Create(ctx context.Context, task models.Task) (models.Task, error)
	Update(ctx context.Context, task models.Task) error
	Delete(ctx context.Context, id string) error
	CountOccurrencesByStatus(ctx context.Context, status models.TaskStatus, assignedToID string) (int, error)
}

type SQLiteTaskRepository struct {
	database *sql.DB
}

func NewTaskRepository(database *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{database: database}
}

const taskColumns = `id, parent_id, title, description, priority,
	object_id, created_by_id, assigned_to_id,
	recurrence, week_day, stopped_at,
	scheduled_date, status, completed_at, completed_by_id, completion_comment, photos,
	created_at, updated_at`

func (repository *SQLiteTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	row := repository.database.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id,
	)
	task, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("finding task by id: %w", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) FindTemplates(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE parent_id IS NULL AND recurrence != 'NONE'"
	query, args := applyTaskFilter(query, nil, filter)
	query += " ORDER BY created_at"

	return repository.queryTasks(ctx, "finding templates", query, args)
}

func (repository *SQLiteTaskRepository) FindOneOffs(ctx context.Context, filter TaskFilter, from, to time.Time) ([]models.Task, error) {
	query := "SELECT " + taskColumns + ` FROM tasks
		WHERE parent_id IS NULL AND recurrence = 'NONE'
		AND scheduled_date >= ? AND scheduled_date <= ?`
	args := []interface{}{from, to}
	query, args = applyTaskFilter(query, args, filter)
	query += " ORDER BY scheduled_date"

	return repository.queryTasks(ctx, "finding one-off tasks", query, args)
}

func (repository *SQLiteTaskRepository) FindOccurrences(ctx context.Context, filter TaskFilter, from, to time.Time) ([]models.Task, error) {
	query := "SELECT " + taskColumns + ` FROM tasks
		WHERE parent_id IS NOT NULL
		AND scheduled_date >= ? AND scheduled_date <= ?`
	args := []interface{}{from, to}
	query, args = applyTaskFilter(query, args, filter)
	query += " ORDER BY scheduled_date"

	return repository.queryTasks(ctx, "finding occurrences", query, args)
}

func (repository *SQLiteTaskRepository) FindOccurrenceByTemplateAndDate(ctx context.Context, templateID string, date time.Time) (models.Task, error) {
	row := repository.database.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE parent_id = ? AND scheduled_date = ?",
		templateID, date,
	)
	task, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("finding occurrence by template and date: %w", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusNew
	}
	if task.Recurrence == "" {
		task.Recurrence = models.RecurrenceNone
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	photosJSON, err := json.Marshal(task.Photos)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshaling photos: %w", err)
	}

	_, err = repository.database.ExecContext(ctx,
		`INSERT INTO tasks (id, parent_id, title, description, priority,
			object_id, created_by_id, assigned_to_id,
			recurrence, week_day, stopped_at,
			scheduled_date, status, completed_at, completed_by_id, completion_comment, photos,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ParentID, task.Title, task.Description, task.Priority,
		task.ObjectID, task.CreatedByID, task.AssignedToID,
		task.Recurrence, task.WeekDay, task.StoppedAt,
		task.ScheduledDate, task.Status, task.CompletedAt, task.CompletedByID, task.CompletionComment, string(photosJSON),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Task{}, fmt.Errorf("creating task: %w", ErrDuplicateOccurrence)
		}
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) Update(ctx context.Context, task models.Task) error {
	task.UpdatedAt = time.Now()

	photosJSON, err := json.Marshal(task.Photos)
	if err != nil {
		return fmt.Errorf("marshaling photos: %w", err)
	}

	_, err = repository.database.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, priority = ?,
			assigned_to_id = ?, stopped_at = ?,
			status = ?, completed_at = ?, completed_by_id = ?, completion_comment = ?, photos = ?,
			updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Priority,
		task.AssignedToID, task.StoppedAt,
		task.Status, task.CompletedAt, task.CompletedByID, task.CompletionComment, string(photosJSON),
		task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return nil
}

// Delete removes the task and, for a recurring template, every occurrence
// materialized from it. Occurrences go first to satisfy the parent_id
// foreign key.
func (repository *SQLiteTaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := repository.database.ExecContext(ctx, "DELETE FROM tasks WHERE parent_id = ?", id); err != nil {
		return fmt.Errorf("deleting task occurrences: %w", err)
	}
	if _, err := repository.database.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

func (repository *SQLiteTaskRepository) CountOccurrencesByStatus(ctx context.Context, status models.TaskStatus, assignedToID string) (int, error) {
	var count int
	err := repository.database.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE parent_id IS NOT NULL AND status = ? AND assigned_to_id = ?",
		status, assignedToID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting occurrences: %w", err)
	}
	return count, nil
}

func (repository *SQLiteTaskRepository) queryTasks(ctx context.Context, action, query string, args []interface{}) ([]models.Task, error) {
	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", action, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func applyTaskFilter(query string, args []interface{}, filter TaskFilter) (string, []interface{}) {
	if filter.ObjectID != nil {
		query += " AND object_id = ?"
		args = append(args, *filter.ObjectID)
	}
	if len(filter.ObjectIDs) > 0 {
		placeholders := make([]string, len(filter.ObjectIDs))
		for i, id := range filter.ObjectIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " AND object_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.AssignedToID != nil {
		query += " AND assigned_to_id = ?"
		args = append(args, *filter.AssignedToID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += " AND status IN (" + strings.Join(placeholders, ",") + ")"
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var task models.Task
	var photosJSON string
	if err := row.Scan(
		&task.ID, &task.ParentID, &task.Title, &task.Description, &task.Priority,
		&task.ObjectID, &task.CreatedByID, &task.AssignedToID,
		&task.Recurrence, &task.WeekDay, &task.StoppedAt,
		&task.ScheduledDate, &task.Status, &task.CompletedAt, &task.CompletedByID, &task.CompletionComment, &photosJSON,
		&task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return models.Task{}, err
	}
	if photosJSON != "" {
		if err := json.Unmarshal([]byte(photosJSON), &task.Photos); err != nil {
			return models.Task{}, fmt.Errorf("unmarshaling photos: %w", err)
		}
	}
	return task, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
