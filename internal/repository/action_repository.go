package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// ActionRepository persists the append-only audit trail. Entries are
// never updated or deleted.
type ActionRepository interface {
	Create(ctx context.Context, action *domain.TicketAction) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketAction, error)
}

type actionRepository struct {
	pool *pgxpool.Pool
}

// NewActionRepository instantiates repository.
func NewActionRepository(pool *pgxpool.Pool) ActionRepository {
	return &actionRepository{pool: pool}
}

func (r *actionRepository) Create(ctx context.Context, action *domain.TicketAction) error {
	const query = `
        INSERT INTO ticket_actions (ticket_id, action_type, user_id, notes)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		action.TicketID,
		action.ActionType,
		action.UserID,
		action.Notes,
	).Scan(&action.ID, &action.CreatedAt)
}

func (r *actionRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketAction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, action_type, user_id, notes, created_at
        FROM ticket_actions WHERE ticket_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAction
	for rows.Next() {
		var action domain.TicketAction
		if err := rows.Scan(&action.ID, &action.TicketID, &action.ActionType, &action.UserID, &action.Notes, &action.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, action)
	}
	return result, rows.Err()
}
