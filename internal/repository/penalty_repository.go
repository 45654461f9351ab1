package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// PenaltySum aggregates accrued points per target.
type PenaltySum struct {
	TargetID   string
	TargetName string
	Points     int
	Count      int
}

// PenaltyRepository persists accountability points. Records accumulate
// and are never mutated.
type PenaltyRepository interface {
	// Create inserts the penalty unless its dedupe key was already used.
	// Returns false for a duplicate, which callers treat as "already
	// accrued" rather than an error.
	Create(ctx context.Context, penalty *domain.PenaltyPoint) (bool, error)
	ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.PenaltyPoint, error)
	SumByUser(ctx context.Context, since time.Time) ([]PenaltySum, error)
	SumByDepartment(ctx context.Context, since time.Time) ([]PenaltySum, error)
}

type penaltyRepository struct {
	pool *pgxpool.Pool
}

// NewPenaltyRepository instantiates repository.
func NewPenaltyRepository(pool *pgxpool.Pool) PenaltyRepository {
	return &penaltyRepository{pool: pool}
}

func (r *penaltyRepository) Create(ctx context.Context, penalty *domain.PenaltyPoint) (bool, error) {
	const query = `
        INSERT INTO penalty_points (user_id, department_id, points, reason, dedupe_key)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (dedupe_key) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		penalty.UserID,
		penalty.DepartmentID,
		penalty.Points,
		penalty.Reason,
		penalty.DedupeKey,
	).Scan(&penalty.ID, &penalty.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *penaltyRepository) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.PenaltyPoint, error) {
	const query = `
        SELECT id, user_id, department_id, points, reason, dedupe_key, created_at
        FROM penalty_points WHERE user_id=$1 AND created_at >= $2
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PenaltyPoint
	for rows.Next() {
		var p domain.PenaltyPoint
		if err := rows.Scan(&p.ID, &p.UserID, &p.DepartmentID, &p.Points, &p.Reason, &p.DedupeKey, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *penaltyRepository) SumByUser(ctx context.Context, since time.Time) ([]PenaltySum, error) {
	const query = `
        SELECT u.id, u.full_name, COALESCE(SUM(p.points),0), COUNT(p.id)
        FROM penalty_points p JOIN users u ON u.id = p.user_id
        WHERE p.created_at >= $1
        GROUP BY u.id, u.full_name
        HAVING SUM(p.points) > 0
        ORDER BY SUM(p.points) DESC`
	return r.querySums(ctx, query, since)
}

func (r *penaltyRepository) SumByDepartment(ctx context.Context, since time.Time) ([]PenaltySum, error) {
	const query = `
        SELECT d.id, d.name, COALESCE(SUM(p.points),0), COUNT(p.id)
        FROM penalty_points p JOIN departments d ON d.id = p.department_id
        WHERE p.created_at >= $1
        GROUP BY d.id, d.name
        HAVING SUM(p.points) > 0
        ORDER BY SUM(p.points) DESC`
	return r.querySums(ctx, query, since)
}

func (r *penaltyRepository) querySums(ctx context.Context, query string, since time.Time) ([]PenaltySum, error) {
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PenaltySum
	for rows.Next() {
		var sum PenaltySum
		if err := rows.Scan(&sum.TargetID, &sum.TargetName, &sum.Points, &sum.Count); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}
