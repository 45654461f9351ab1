package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// AcknowledgmentRepository persists per-user receipt confirmations.
type AcknowledgmentRepository interface {
	// Create inserts the acknowledgment unless one already exists for the
	// (ticket, user) pair. Returns false when the pair was already
	// recorded; callers treat that as an idempotent no-op.
	Create(ctx context.Context, ack *domain.Acknowledgment) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Acknowledgment, error)
	AcknowledgedUserIDs(ctx context.Context, ticketID string) ([]string, error)
	Exists(ctx context.Context, ticketID, userID string) (bool, error)
}

type acknowledgmentRepository struct {
	pool *pgxpool.Pool
}

// NewAcknowledgmentRepository instantiates repository.
func NewAcknowledgmentRepository(pool *pgxpool.Pool) AcknowledgmentRepository {
	return &acknowledgmentRepository{pool: pool}
}

func (r *acknowledgmentRepository) Create(ctx context.Context, ack *domain.Acknowledgment) (bool, error) {
	const query = `
        INSERT INTO acknowledgments (ticket_id, user_id, notes, source_ip)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id, user_id) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		ack.TicketID,
		ack.UserID,
		ack.Notes,
		ack.SourceIP,
	).Scan(&ack.ID, &ack.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *acknowledgmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Acknowledgment, error) {
	const query = `
        SELECT id, ticket_id, user_id, notes, source_ip, created_at
        FROM acknowledgments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Acknowledgment
	for rows.Next() {
		var ack domain.Acknowledgment
		if err := rows.Scan(&ack.ID, &ack.TicketID, &ack.UserID, &ack.Notes, &ack.SourceIP, &ack.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ack)
	}
	return result, rows.Err()
}

func (r *acknowledgmentRepository) AcknowledgedUserIDs(ctx context.Context, ticketID string) ([]string, error) {
	const query = `SELECT user_id FROM acknowledgments WHERE ticket_id=$1`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *acknowledgmentRepository) Exists(ctx context.Context, ticketID, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM acknowledgments WHERE ticket_id=$1 AND user_id=$2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
