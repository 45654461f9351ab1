package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unidesk/request-service/internal/domain"
)

// openStatuses is the SQL fragment matching every non-terminal status.
const openStatusesSQL = `('new','pending_ack','in_progress')`

// violatedPredicateSQL is the retroactive violation rule: explicitly
// violated, still open past deadline, or resolved after the deadline.
const violatedPredicateSQL = `(
    status = 'violated'
    OR (status IN ` + openStatusesSQL + ` AND sla_deadline < $2)
    OR (resolved_at IS NOT NULL AND resolved_at > sla_deadline)
)`

// TicketStats aggregates ticket counts for dashboards and reports.
type TicketStats struct {
	Total      int
	Open       int
	Resolved   int
	Closed     int
	Returned   int
	Violations int
	ByPriority map[domain.TicketPriority]int
}

// DepartmentPerformance summarizes one department's handling record.
type DepartmentPerformance struct {
	DepartmentID       string
	DepartmentName     string
	Total              int
	Resolved           int
	Violations         int
	AvgResolutionHours float64
}

// DailySummary aggregates one day's activity for the management digest.
type DailySummary struct {
	Date       time.Time
	Created    int
	Resolved   int
	Closed     int
	Violated   int
	OpenTotal  int
	OverdueNow int
}

// ReportRepository runs read-only aggregate queries.
type ReportRepository interface {
	TicketStats(ctx context.Context, since, now time.Time) (*TicketStats, error)
	DepartmentPerformance(ctx context.Context, since, now time.Time) ([]DepartmentPerformance, error)
	DailySummary(ctx context.Context, day, now time.Time) (*DailySummary, error)
}

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository instantiates repository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) TicketStats(ctx context.Context, since, now time.Time) (*TicketStats, error) {
	const query = `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status IN ` + openStatusesSQL + `),
            COUNT(*) FILTER (WHERE status = 'resolved'),
            COUNT(*) FILTER (WHERE status = 'closed'),
            COUNT(*) FILTER (WHERE status = 'returned'),
            COUNT(*) FILTER (WHERE ` + violatedPredicateSQL + `)
        FROM tickets WHERE created_at >= $1`

	stats := &TicketStats{ByPriority: make(map[domain.TicketPriority]int)}
	if err := r.pool.QueryRow(ctx, query, since, now).Scan(
		&stats.Total,
		&stats.Open,
		&stats.Resolved,
		&stats.Closed,
		&stats.Returned,
		&stats.Violations,
	); err != nil {
		return nil, err
	}

	const byPriority = `
        SELECT priority, COUNT(*) FROM tickets
        WHERE created_at >= $1 GROUP BY priority`
	rows, err := r.pool.Query(ctx, byPriority, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var priority domain.TicketPriority
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		stats.ByPriority[priority] = count
	}
	return stats, rows.Err()
}

func (r *reportRepository) DepartmentPerformance(ctx context.Context, since, now time.Time) ([]DepartmentPerformance, error) {
	const query = `
        SELECT
            d.id, d.name,
            COUNT(t.id),
            COUNT(t.id) FILTER (WHERE t.status IN ('resolved','closed')),
            COUNT(t.id) FILTER (WHERE ` + deptViolatedPredicateSQL + `),
            COALESCE(AVG(EXTRACT(EPOCH FROM (t.resolved_at - t.created_at)) / 3600.0)
                FILTER (WHERE t.resolved_at IS NOT NULL), 0)
        FROM departments d
        JOIN tickets t ON d.id = ANY(t.department_ids)
        WHERE t.created_at >= $1
        GROUP BY d.id, d.name
        ORDER BY d.name`

	rows, err := r.pool.Query(ctx, query, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DepartmentPerformance
	for rows.Next() {
		var perf DepartmentPerformance
		if err := rows.Scan(
			&perf.DepartmentID,
			&perf.DepartmentName,
			&perf.Total,
			&perf.Resolved,
			&perf.Violations,
			&perf.AvgResolutionHours,
		); err != nil {
			return nil, err
		}
		result = append(result, perf)
	}
	return result, rows.Err()
}

// Same predicate with the aliased tickets table.
const deptViolatedPredicateSQL = `(
    t.status = 'violated'
    OR (t.status IN ` + openStatusesSQL + ` AND t.sla_deadline < $2)
    OR (t.resolved_at IS NOT NULL AND t.resolved_at > t.sla_deadline)
)`

func (r *reportRepository) DailySummary(ctx context.Context, day, now time.Time) (*DailySummary, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	const query = `
        SELECT
            COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2),
            COUNT(*) FILTER (WHERE resolved_at >= $1 AND resolved_at < $2),
            COUNT(*) FILTER (WHERE closed_at >= $1 AND closed_at < $2),
            COUNT(*) FILTER (WHERE status = 'violated' AND updated_at >= $1 AND updated_at < $2),
            COUNT(*) FILTER (WHERE status IN ` + openStatusesSQL + `),
            COUNT(*) FILTER (WHERE status IN ` + openStatusesSQL + ` AND sla_deadline < $3)
        FROM tickets`

	summary := &DailySummary{Date: dayStart}
	if err := r.pool.QueryRow(ctx, query, dayStart, dayEnd, now).Scan(
		&summary.Created,
		&summary.Resolved,
		&summary.Closed,
		&summary.Violated,
		&summary.OpenTotal,
		&summary.OverdueNow,
	); err != nil {
		return nil, err
	}
	return summary, nil
}
