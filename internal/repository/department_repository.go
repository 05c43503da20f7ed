package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	Update(ctx context.Context, dept *domain.Department) error
	UpdateAvgServiceTime(ctx context.Context, id string, avgMinutes float64) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	ListActive(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (id, code, name, queue_type, max_tokens_per_day,
            avg_service_time_minutes, operating_hours, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		dept.ID,
		dept.Code,
		dept.Name,
		dept.QueueType,
		dept.MaxTokensPerDay,
		dept.AvgServiceTimeMinutes,
		dept.OperatingHours,
		dept.IsActive,
	).Scan(&dept.CreatedAt, &dept.UpdatedAt)
}

func (r *departmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	const query = `
        UPDATE departments SET code=$1, name=$2, queue_type=$3, max_tokens_per_day=$4,
            avg_service_time_minutes=$5, operating_hours=$6, is_active=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		dept.Code,
		dept.Name,
		dept.QueueType,
		dept.MaxTokensPerDay,
		dept.AvgServiceTimeMinutes,
		dept.OperatingHours,
		dept.IsActive,
		dept.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return queue.ErrDepartmentNotFound
	}
	return nil
}

func (r *departmentRepository) UpdateAvgServiceTime(ctx context.Context, id string, avgMinutes float64) error {
	const query = `
        UPDATE departments SET avg_service_time_minutes=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, avgMinutes, id)
	return err
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `
        SELECT id, code, name, queue_type, max_tokens_per_day, avg_service_time_minutes,
               operating_hours, is_active, created_at, updated_at
        FROM departments WHERE id=$1`
	var dept domain.Department
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&dept.ID,
		&dept.Code,
		&dept.Name,
		&dept.QueueType,
		&dept.MaxTokensPerDay,
		&dept.AvgServiceTimeMinutes,
		&dept.OperatingHours,
		&dept.IsActive,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	const query = `
        SELECT id, code, name, queue_type, max_tokens_per_day, avg_service_time_minutes,
               operating_hours, is_active, created_at, updated_at
        FROM departments WHERE is_active = TRUE`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(
			&dept.ID,
			&dept.Code,
			&dept.Name,
			&dept.QueueType,
			&dept.MaxTokensPerDay,
			&dept.AvgServiceTimeMinutes,
			&dept.OperatingHours,
			&dept.IsActive,
			&dept.CreatedAt,
			&dept.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
