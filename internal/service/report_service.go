package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/repository"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

// RatingBand labels a penalty total per the grading scale.
type RatingBand string

const (
	BandExcellent RatingBand = "excellent"
	BandGood      RatingBand = "good"
	BandFair      RatingBand = "fair"
	BandPoor      RatingBand = "poor"
	BandVeryPoor  RatingBand = "very_poor"
)

// BandFor grades a penalty total.
func BandFor(points int) RatingBand {
	switch {
	case points <= 5:
		return BandExcellent
	case points <= 15:
		return BandGood
	case points <= 30:
		return BandFair
	case points <= 50:
		return BandPoor
	default:
		return BandVeryPoor
	}
}

// PenaltyRanking is one leaderboard row with its grade.
type PenaltyRanking struct {
	repository.PenaltySum
	Band RatingBand
}

// ReportService serves read-only aggregates and exports. Nothing here
// mutates ticket state.
type ReportService struct {
	reports       repository.ReportRepository
	penalties     repository.PenaltyRepository
	tickets       repository.TicketRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	cache         *redis.Client
	logger        *zap.Logger
	now           func() time.Time
}

// NewReportService builds the service.
func NewReportService(
	reports repository.ReportRepository,
	penalties repository.PenaltyRepository,
	tickets repository.TicketRepository,
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		reports:       reports,
		penalties:     penalties,
		tickets:       tickets,
		users:         users,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// WithCache enables short-lived Redis caching of the stats aggregate.
func (s *ReportService) WithCache(cache *redis.Client) *ReportService {
	s.cache = cache
	return s
}

const statsCacheTTL = time.Minute

// Stats returns ticket counts since the given time. Violation accounting
// is retroactive: it includes tickets that slipped past their deadline
// even if they were resolved before any sweep marked them.
func (s *ReportService) Stats(ctx context.Context, since time.Time) (*repository.TicketStats, error) {
	key := statsCacheKey(since)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached repository.TicketStats
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	stats, err := s.reports.TicketStats(ctx, since, s.now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, raw, statsCacheTTL).Err(); err != nil {
				s.logger.Debug("stats cache write failed", zap.Error(err))
			}
		}
	}
	return stats, nil
}

// statsCacheKey buckets the window start to the minute so repeated
// dashboard polls share an entry.
func statsCacheKey(since time.Time) string {
	return "reports:stats:" + since.UTC().Truncate(time.Minute).Format("200601021504")
}

// DepartmentPerformance summarizes per-department handling.
func (s *ReportService) DepartmentPerformance(ctx context.Context, since time.Time) ([]repository.DepartmentPerformance, error) {
	perf, err := s.reports.DepartmentPerformance(ctx, since, s.now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return perf, nil
}

// UserLeaderboard ranks users by accrued penalty points with grades.
func (s *ReportService) UserLeaderboard(ctx context.Context, since time.Time) ([]PenaltyRanking, error) {
	sums, err := s.penalties.SumByUser(ctx, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rank(sums), nil
}

// DepartmentLeaderboard ranks departments by accrued penalty points.
func (s *ReportService) DepartmentLeaderboard(ctx context.Context, since time.Time) ([]PenaltyRanking, error) {
	sums, err := s.penalties.SumByDepartment(ctx, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rank(sums), nil
}

func rank(sums []repository.PenaltySum) []PenaltyRanking {
	result := make([]PenaltyRanking, len(sums))
	for i, sum := range sums {
		result[i] = PenaltyRanking{PenaltySum: sum, Band: BandFor(sum.Points)}
	}
	return result
}

// SendDailySummary computes yesterday's digest and notifies every
// upper-management user in-app.
func (s *ReportService) SendDailySummary(ctx context.Context) error {
	now := s.now()
	day := now.Add(-24 * time.Hour)
	summary, err := s.reports.DailySummary(ctx, day, now)
	if err != nil {
		return apperrors.MapError(err)
	}

	management, err := s.users.ListUpperManagement(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}

	title := fmt.Sprintf("Daily summary for %s", summary.Date.Format("2006-01-02"))
	message := fmt.Sprintf(
		"created: %d, resolved: %d, closed: %d, violated: %d, open: %d (%d overdue)",
		summary.Created, summary.Resolved, summary.Closed,
		summary.Violated, summary.OpenTotal, summary.OverdueNow)

	for _, user := range management {
		n := &domain.Notification{
			UserID:  user.ID,
			Type:    domain.NotifyDailyReport,
			Title:   title,
			Message: message,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Error("daily summary notification failed",
				zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	s.logger.Info("daily summary sent",
		zap.Int("recipients", len(management)),
		zap.Int("created", summary.Created),
		zap.Int("violated", summary.Violated))
	return nil
}

var exportHeader = []string{
	"key", "title", "priority", "status", "escalation_level",
	"created_at", "sla_deadline", "resolved_at", "closed_at",
}

func exportRow(ticket *domain.Ticket) []string {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	return []string{
		ticket.ExternalKey,
		ticket.Title,
		string(ticket.Priority),
		string(ticket.Status),
		string(ticket.EscalationLevel),
		ticket.CreatedAt.Format(time.RFC3339),
		ticket.SLADeadline.Format(time.RFC3339),
		formatTime(ticket.ResolvedAt),
		formatTime(ticket.ClosedAt),
	}
}

// ExportTicketsCSV streams the filtered tickets as CSV.
func (s *ReportService) ExportTicketsCSV(ctx context.Context, filter repository.TicketFilter, w io.Writer) error {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return apperrors.MapError(err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for i := range tickets {
		if err := writer.Write(exportRow(&tickets[i])); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportTicketsExcel writes the filtered tickets as an xlsx workbook.
func (s *ReportService) ExportTicketsExcel(ctx context.Context, filter repository.TicketFilter, w io.Writer) error {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return apperrors.MapError(err)
	}

	file := excelize.NewFile()
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Debug("excel workbook close failed", zap.Error(err))
		}
	}()

	const sheet = "Tickets"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return err
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		s.logger.Debug("default sheet removal failed", zap.Error(err))
	}

	for col, header := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	for rowIdx := range tickets {
		for col, value := range exportRow(&tickets[rowIdx]) {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	if err := file.Write(w); err != nil {
		return err
	}
	s.logger.Debug("excel export finished", zap.Int("rows", len(tickets)))
	return nil
}
