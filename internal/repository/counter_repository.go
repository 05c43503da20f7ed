package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
)

// CounterRepository manages counter persistence.
type CounterRepository interface {
	Create(ctx context.Context, counter *domain.Counter) error
	Update(ctx context.Context, counter *domain.Counter) error
	GetByID(ctx context.Context, id string) (*domain.Counter, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]domain.Counter, error)
	// ClearToken releases the counter's current token assignment.
	ClearToken(ctx context.Context, id string) error
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository builds the repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Create(ctx context.Context, counter *domain.Counter) error {
	const query = `
        INSERT INTO counters (id, department_id, name, status, min_priority)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		counter.ID,
		counter.DepartmentID,
		counter.Name,
		counter.Status,
		counter.MinPriority,
	).Scan(&counter.CreatedAt, &counter.UpdatedAt)
}

func (r *counterRepository) Update(ctx context.Context, counter *domain.Counter) error {
	const query = `
        UPDATE counters SET name=$1, status=$2, current_token_id=$3, min_priority=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		counter.Name,
		counter.Status,
		counter.CurrentTokenID,
		counter.MinPriority,
		counter.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return queue.ErrCounterNotFound
	}
	return nil
}

func (r *counterRepository) GetByID(ctx context.Context, id string) (*domain.Counter, error) {
	const query = `
        SELECT id, department_id, name, status, current_token_id, min_priority, created_at, updated_at
        FROM counters WHERE id=$1`
	var counter domain.Counter
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&counter.ID,
		&counter.DepartmentID,
		&counter.Name,
		&counter.Status,
		&counter.CurrentTokenID,
		&counter.MinPriority,
		&counter.CreatedAt,
		&counter.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrCounterNotFound
		}
		return nil, err
	}
	return &counter, nil
}

func (r *counterRepository) ListByDepartment(ctx context.Context, departmentID string) ([]domain.Counter, error) {
	const query = `
        SELECT id, department_id, name, status, current_token_id, min_priority, created_at, updated_at
        FROM counters WHERE department_id=$1 ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Counter
	for rows.Next() {
		var counter domain.Counter
		if err := rows.Scan(
			&counter.ID,
			&counter.DepartmentID,
			&counter.Name,
			&counter.Status,
			&counter.CurrentTokenID,
			&counter.MinPriority,
			&counter.CreatedAt,
			&counter.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, counter)
	}
	return result, rows.Err()
}

func (r *counterRepository) ClearToken(ctx context.Context, id string) error {
	const query = `
        UPDATE counters SET current_token_id=NULL, status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	_, err := r.pool.Exec(ctx, query, domain.CounterStatusActive, id, domain.CounterStatusBusy)
	return err
}
