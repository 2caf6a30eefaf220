package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-shop-bot/internal/model"
)

// Task errors.
var (
	ErrTaskNotFound = errors.New("task not found")
)

// TaskRepository handles micro-tasks and their one-shot completion records.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository instance.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// Create inserts a task and returns it.
func (r *TaskRepository) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	const query = `
		INSERT INTO tasks (description, link, reward)
		VALUES ($1, $2, $3)
		RETURNING id, description, link, reward
	`

	var created model.Task
	err := r.pool.QueryRow(ctx, query, t.Description, t.Link, t.Reward).Scan(
		&created.ID, &created.Description, &created.Link, &created.Reward,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &created, nil
}

// Delete removes a task and its completion rows.
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Get retrieves a task by ID on the caller's Querier.
func (r *TaskRepository) Get(ctx context.Context, q Querier, id int64) (*model.Task, error) {
	const query = `SELECT id, description, link, reward FROM tasks WHERE id = $1`

	var t model.Task
	err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Description, &t.Link, &t.Reward)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

// List returns all tasks ordered by ID.
func (r *TaskRepository) List(ctx context.Context) ([]*model.Task, error) {
	const query = `SELECT id, description, link, reward FROM tasks ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Description, &t.Link, &t.Reward); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// MarkCompleted records the account's completion of a task. Returns false
// when a completion row already exists, so the reward pays out once.
func (r *TaskRepository) MarkCompleted(ctx context.Context, q Querier, taskID, accountID int64) (bool, error) {
	const query = `
		INSERT INTO task_completions (task_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, account_id) DO NOTHING
	`

	tag, err := q.Exec(ctx, query, taskID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to mark task completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompletedIDs returns the IDs of tasks the account has completed.
func (r *TaskRepository) CompletedIDs(ctx context.Context, accountID int64) (map[int64]bool, error) {
	const query = `SELECT task_id FROM task_completions WHERE account_id = $1`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return done, nil
}
