package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// LoginHistoryRepository records authenticated sessions.
type LoginHistoryRepository interface {
	Create(ctx context.Context, entry *domain.LoginHistory) error
	CloseOpenSessions(ctx context.Context, userID string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.LoginHistory, error)
}

type loginHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewLoginHistoryRepository instantiates repository.
func NewLoginHistoryRepository(pool *pgxpool.Pool) LoginHistoryRepository {
	return &loginHistoryRepository{pool: pool}
}

func (r *loginHistoryRepository) Create(ctx context.Context, entry *domain.LoginHistory) error {
	const query = `
        INSERT INTO login_history (user_id, login_at, ip_address, user_agent)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		entry.UserID,
		entry.LoginAt,
		entry.IPAddress,
		entry.UserAgent,
	).Scan(&entry.ID)
}

func (r *loginHistoryRepository) CloseOpenSessions(ctx context.Context, userID string) error {
	const query = `UPDATE login_history SET logout_at=NOW() WHERE user_id=$1 AND logout_at IS NULL`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func (r *loginHistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.LoginHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, user_id, login_at, logout_at, ip_address, user_agent
        FROM login_history WHERE user_id=$1
        ORDER BY login_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LoginHistory
	for rows.Next() {
		var entry domain.LoginHistory
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.LoginAt, &entry.LogoutAt, &entry.IPAddress, &entry.UserAgent); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
