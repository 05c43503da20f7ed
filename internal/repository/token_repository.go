package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
)

// TokenRepository encapsulates token persistence. The queue core treats it as an
// external collaborator: ordering truth lives in memory, the store is durability.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	Update(ctx context.Context, token *domain.Token) error
	// UpdateWithStatusCheck persists the token only if its stored status still equals
	// expected, the compare-and-set discipline for status transitions. A failed check
	// reports queue.ErrConcurrencyConflict.
	UpdateWithStatusCheck(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error
	// Reserve atomically persists a call: token WAITING->CALLED plus the counter
	// assignment, as one transaction. A lost race on either side reports
	// queue.ErrConcurrencyConflict.
	Reserve(ctx context.Context, token *domain.Token, counter *domain.Counter) error
	GetByNumber(ctx context.Context, tokenNumber string) (*domain.Token, error)
	ListWaitingByDepartment(ctx context.Context, departmentID string) ([]*domain.Token, error)
	HasActiveToken(ctx context.Context, customerID, businessDate string) (bool, error)
	MaxSequence(ctx context.Context, departmentID, businessDate string) (int, error)
	AvgServiceMinutes(ctx context.Context, departmentID string, recent int) (float64, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository instantiates the repository.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenColumns = `
        id, token_number, display_number, customer_id, department_id, counter_id,
        priority, queue_position, status, business_date, issued_at, called_at,
        service_started_at, completed_at, wait_time_minutes, service_time_minutes,
        service_notes, rating, transfer_history`

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	const query = `
        INSERT INTO tokens (id, token_number, display_number, customer_id, department_id,
            counter_id, priority, queue_position, status, business_date, issued_at, transfer_history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.TokenNumber,
		token.DisplayNumber,
		token.CustomerID,
		token.DepartmentID,
		token.CounterID,
		token.Priority,
		token.QueuePosition,
		token.Status,
		token.BusinessDate,
		token.IssuedAt,
		token.TransferHistory,
	)
	return err
}

func (r *tokenRepository) Update(ctx context.Context, token *domain.Token) error {
	const query = `
        UPDATE tokens SET department_id=$1, counter_id=$2, priority=$3, queue_position=$4,
            status=$5, called_at=$6, service_started_at=$7, completed_at=$8,
            wait_time_minutes=$9, service_time_minutes=$10, service_notes=$11, rating=$12,
            transfer_history=$13, updated_at=NOW()
        WHERE token_number=$14`
	cmd, err := r.pool.Exec(ctx, query,
		token.DepartmentID,
		token.CounterID,
		token.Priority,
		token.QueuePosition,
		token.Status,
		token.CalledAt,
		token.ServiceStartedAt,
		token.CompletedAt,
		token.WaitTimeMinutes,
		token.ServiceTimeMinutes,
		token.ServiceNotes,
		token.Rating,
		token.TransferHistory,
		token.TokenNumber,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return queue.ErrTokenNotFound
	}
	return nil
}

func (r *tokenRepository) UpdateWithStatusCheck(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error {
	const query = `
        UPDATE tokens SET department_id=$1, counter_id=$2, queue_position=$3, status=$4,
            called_at=$5, service_started_at=$6, completed_at=$7, wait_time_minutes=$8,
            service_time_minutes=$9, service_notes=$10, rating=$11, transfer_history=$12,
            updated_at=NOW()
        WHERE token_number=$13 AND status=$14`
	cmd, err := r.pool.Exec(ctx, query,
		token.DepartmentID,
		token.CounterID,
		token.QueuePosition,
		token.Status,
		token.CalledAt,
		token.ServiceStartedAt,
		token.CompletedAt,
		token.WaitTimeMinutes,
		token.ServiceTimeMinutes,
		token.ServiceNotes,
		token.Rating,
		token.TransferHistory,
		token.TokenNumber,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return queue.ErrConcurrencyConflict
	}
	return nil
}

func (r *tokenRepository) Reserve(ctx context.Context, token *domain.Token, counter *domain.Counter) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cmd, err := tx.Exec(ctx, `
        UPDATE tokens SET status=$1, counter_id=$2, called_at=$3, queue_position=NULL, updated_at=NOW()
        WHERE token_number=$4 AND status=$5`,
		domain.TokenStatusCalled, counter.ID, token.CalledAt, token.TokenNumber, domain.TokenStatusWaiting,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		err = queue.ErrConcurrencyConflict
		return err
	}

	cmd, err = tx.Exec(ctx, `
        UPDATE counters SET current_token_id=$1, status=$2, updated_at=NOW()
        WHERE id=$3 AND current_token_id IS NULL`,
		token.ID, domain.CounterStatusBusy, counter.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		err = queue.ErrConcurrencyConflict
		return err
	}

	return tx.Commit(ctx)
}

func (r *tokenRepository) GetByNumber(ctx context.Context, tokenNumber string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE token_number=$1`
	row := r.pool.QueryRow(ctx, query, tokenNumber)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

func (r *tokenRepository) ListWaitingByDepartment(ctx context.Context, departmentID string) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + `
        FROM tokens WHERE department_id=$1 AND status=$2
        ORDER BY queue_position ASC`
	rows, err := r.pool.Query(ctx, query, departmentID, domain.TokenStatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

func (r *tokenRepository) HasActiveToken(ctx context.Context, customerID, businessDate string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM tokens
            WHERE customer_id=$1 AND business_date=$2 AND status = ANY($3)
        )`
	active := []string{
		string(domain.TokenStatusWaiting),
		string(domain.TokenStatusCalled),
		string(domain.TokenStatusInService),
	}
	var exists bool
	err := r.pool.QueryRow(ctx, query, customerID, businessDate, active).Scan(&exists)
	return exists, err
}

func (r *tokenRepository) MaxSequence(ctx context.Context, departmentID, businessDate string) (int, error) {
	// Token numbers end in the zero-padded sequence; the numeric suffix after the
	// last dash is the per-day counter.
	const query = `
        SELECT COALESCE(MAX(split_part(token_number, '-', 3)::int), 0)
        FROM tokens WHERE department_id=$1 AND business_date=$2`
	var max int
	err := r.pool.QueryRow(ctx, query, departmentID, businessDate).Scan(&max)
	return max, err
}

func (r *tokenRepository) AvgServiceMinutes(ctx context.Context, departmentID string, recent int) (float64, error) {
	if recent <= 0 {
		recent = 50
	}
	const query = `
        SELECT COALESCE(AVG(service_time_minutes), 0) FROM (
            SELECT service_time_minutes FROM tokens
            WHERE department_id=$1 AND status=$2 AND service_time_minutes IS NOT NULL
            ORDER BY completed_at DESC
            LIMIT $3
        ) recent`
	var avg float64
	err := r.pool.QueryRow(ctx, query, departmentID, domain.TokenStatusCompleted, recent).Scan(&avg)
	return avg, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var token domain.Token
	if err := row.Scan(
		&token.ID,
		&token.TokenNumber,
		&token.DisplayNumber,
		&token.CustomerID,
		&token.DepartmentID,
		&token.CounterID,
		&token.Priority,
		&token.QueuePosition,
		&token.Status,
		&token.BusinessDate,
		&token.IssuedAt,
		&token.CalledAt,
		&token.ServiceStartedAt,
		&token.CompletedAt,
		&token.WaitTimeMinutes,
		&token.ServiceTimeMinutes,
		&token.ServiceNotes,
		&token.Rating,
		&token.TransferHistory,
	); err != nil {
		return nil, err
	}
	return &token, nil
}
