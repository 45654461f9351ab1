package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// ErrVersionConflict is returned when an optimistic ticket update loses a
// concurrent write race.
var ErrVersionConflict = fmt.Errorf("ticket version conflict")

// TicketFilter captures listing/search parameters. ViewerID (with the
// viewer's optional department) restricts results to tickets the viewer
// is involved in; upper-management callers leave it unset.
type TicketFilter struct {
	ViewerID           *string
	ViewerDepartmentID *string
	CreatedBy          *string
	DepartmentID       *string
	AssigneeID         *string
	Statuses           []domain.TicketStatus
	Priorities         []domain.TicketPriority
	SearchTerm         *string
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
	Limit              int
	Offset             int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the ticket guarded by its version counter and bumps
	// the counter on success. Returns ErrVersionConflict when the stored
	// version no longer matches.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListOverdueOpen returns open tickets past their SLA deadline that
	// are not yet marked violated.
	ListOverdueOpen(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	// ListStaleAssigned returns open tickets with a primary assignee
	// created before the cutoff.
	ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
	CountOpenByAssignee(ctx context.Context, userID string) (int, error)
	// ListPendingAckForUser returns pending_ack tickets the user is a
	// required acknowledger for and has not yet acknowledged.
	ListPendingAckForUser(ctx context.Context, user *domain.User) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, title, description, priority, status, escalation_level,
               created_by, assigned_to, assignee_ids, department_ids, sla_deadline, close_notes,
               created_at, updated_at, acknowledged_at, resolved_at, closed_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	// nil slices would insert NULL into the NOT NULL array columns
	if ticket.AssigneeIDs == nil {
		ticket.AssigneeIDs = []string{}
	}
	if ticket.DepartmentIDs == nil {
		ticket.DepartmentIDs = []string{}
	}
	const query = `
        INSERT INTO tickets (external_key, title, description, priority, status, escalation_level,
                             created_by, assigned_to, assignee_ids, department_ids, sla_deadline, close_notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at, version`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.EscalationLevel,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.AssigneeIDs,
		ticket.DepartmentIDs,
		ticket.SLADeadline,
		ticket.CloseNotes,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt, &ticket.Version)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, priority=$3, status=$4, escalation_level=$5,
            assigned_to=$6, assignee_ids=$7, department_ids=$8, close_notes=$9,
            acknowledged_at=$10, resolved_at=$11, closed_at=$12,
            version=version+1, updated_at=NOW()
        WHERE id=$13 AND version=$14`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.EscalationLevel,
		ticket.AssignedTo,
		ticket.AssigneeIDs,
		ticket.DepartmentIDs,
		ticket.CloseNotes,
		ticket.AcknowledgedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// either the row is gone or a concurrent writer bumped the version
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE external_key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ViewerID != nil {
		args = append(args, *filter.ViewerID)
		idx := len(args)
		involvement := fmt.Sprintf("created_by=$%d OR assigned_to=$%d OR $%d = ANY(assignee_ids)", idx, idx, idx)
		if filter.ViewerDepartmentID != nil {
			args = append(args, *filter.ViewerDepartmentID)
			involvement += fmt.Sprintf(" OR $%d = ANY(department_ids)", len(args))
		}
		clauses = append(clauses, "("+involvement+")")
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(department_ids)", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("(assigned_to=$%d OR $%d = ANY(assignee_ids))", len(args), len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOverdueOpen(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status IN ('new','pending_ack','in_progress') AND sla_deadline < $1
        ORDER BY sla_deadline ASC`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status IN ('new','pending_ack','in_progress') AND assigned_to IS NOT NULL AND created_at < $1
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountOpenByAssignee(ctx context.Context, userID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE status IN ('new','pending_ack','in_progress')
          AND (assigned_to=$1 OR $1 = ANY(assignee_ids))`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ListPendingAckForUser(ctx context.Context, user *domain.User) ([]domain.Ticket, error) {
	clauses := []string{"(assigned_to=$1 OR $1 = ANY(assignee_ids))"}
	args := []any{user.ID}
	if user.DepartmentID != nil {
		args = append(args, *user.DepartmentID)
		clauses = append(clauses,
			fmt.Sprintf("(assigned_to IS NULL AND cardinality(assignee_ids)=0 AND $%d = ANY(department_ids))", len(args)))
	}
	args = append(args, user.ID)
	query := fmt.Sprintf(`SELECT `+ticketColumns+` FROM tickets
        WHERE status='pending_ack' AND (%s)
          AND NOT EXISTS (SELECT 1 FROM acknowledgments a WHERE a.ticket_id=tickets.id AND a.user_id=$%d)
        ORDER BY sla_deadline ASC`, strings.Join(clauses, " OR "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.EscalationLevel,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.AssigneeIDs,
		&ticket.DepartmentIDs,
		&ticket.SLADeadline,
		&ticket.CloseNotes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AcknowledgedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.Version,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
