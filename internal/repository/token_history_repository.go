package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// TokenHistoryRepository stores audit entries.
type TokenHistoryRepository interface {
	Create(ctx context.Context, history *domain.TokenHistory) error
	ListByToken(ctx context.Context, tokenNumber string) ([]domain.TokenHistory, error)
}

type tokenHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTokenHistoryRepository builds repository.
func NewTokenHistoryRepository(pool *pgxpool.Pool) TokenHistoryRepository {
	return &tokenHistoryRepository{pool: pool}
}

func (r *tokenHistoryRepository) Create(ctx context.Context, history *domain.TokenHistory) error {
	const query = `
        INSERT INTO token_history (token_number, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TokenNumber,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *tokenHistoryRepository) ListByToken(ctx context.Context, tokenNumber string) ([]domain.TokenHistory, error) {
	const query = `
        SELECT id, token_number, change_type, old_value, new_value, created_at
        FROM token_history WHERE token_number=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, tokenNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TokenHistory
	for rows.Next() {
		var history domain.TokenHistory
		if err := rows.Scan(
			&history.ID,
			&history.TokenNumber,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
