package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/observability"
	"github.com/unidesk/request-service/internal/repository"
	"github.com/unidesk/request-service/internal/sla"
)

// SweepService runs the periodic SLA enforcement pass: overdue open
// tickets are marked violated, escalated one tier, and penalized. The
// sweep is idempotent; re-running it within the same day accrues nothing
// twice thanks to the penalty dedupe key, and already-violated tickets
// are not picked up again.
type SweepService struct {
	tickets    repository.TicketRepository
	actions    repository.ActionRepository
	penalties  repository.PenaltyRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewSweepService builds the service.
func NewSweepService(
	tickets repository.TicketRepository,
	actions repository.ActionRepository,
	penalties repository.PenaltyRepository,
	users repository.UserRepository,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		tickets:    tickets,
		actions:    actions,
		penalties:  penalties,
		users:      users,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// SweepSLAViolations processes every open ticket past its deadline.
// Per-ticket failures are logged and skipped so one bad row never stalls
// the rest of the batch. Returns the number of tickets escalated.
func (s *SweepService) SweepSLAViolations(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.tickets.ListOverdueOpen(ctx, now)
	if err != nil {
		return 0, err
	}

	escalated := 0
	failures := 0
	for i := range overdue {
		ticket := &overdue[i]
		if err := s.escalate(ctx, ticket, now); err != nil {
			failures++
			s.logger.Error("sweep: ticket escalation failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		escalated++
	}
	s.metrics.RecordSweep(failures)
	if escalated > 0 || failures > 0 {
		s.logger.Info("sla sweep finished",
			zap.Int("escalated", escalated), zap.Int("failures", failures))
	}
	return escalated, nil
}

func (s *SweepService) escalate(ctx context.Context, ticket *domain.Ticket, now time.Time) error {
	delay := sla.HoursDelayed(ticket, now)

	ticket.Status = domain.TicketStatusViolated
	ticket.EscalationLevel = ticket.EscalationLevel.Next()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// a concurrent writer got there first; the next sweep decides
			s.logger.Warn("sweep: lost write race, skipping",
				zap.String("ticket_id", ticket.ID))
			return nil
		}
		return err
	}

	action := &domain.TicketAction{
		TicketID:   ticket.ID,
		ActionType: domain.ActionEscalated,
		Notes:      fmt.Sprintf("SLA exceeded by %.1f hours, escalated to %s", delay, ticket.EscalationLevel),
	}
	if err := s.actions.Create(ctx, action); err != nil {
		s.logger.Error("sweep: audit entry failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	penalty := penaltyFor(ticket, sla.PenaltyPoints(delay),
		fmt.Sprintf("SLA violation on %s (%.1f hours late)", ticket.ExternalKey, delay),
		PenaltyDedupeKey(ticket.ID, now, domain.PenaltyRuleSLASweep))
	if penalty != nil {
		if _, err := s.penalties.Create(ctx, penalty); err != nil {
			s.logger.Error("sweep: penalty accrual failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketEscalated,
		TicketID:  ticket.ID,
		Timestamp: now,
		Payload: events.TicketEscalatedPayload{
			Level:      ticket.EscalationLevel,
			DelayHours: delay,
		},
	})
	return nil
}

// AutoReassignStale hands tickets stuck with one assignee past the
// threshold to the least-loaded active colleague in the same department,
// restarting the acknowledgment workflow.
func (s *SweepService) AutoReassignStale(ctx context.Context, now time.Time, threshold time.Duration) (int, error) {
	stale, err := s.tickets.ListStaleAssigned(ctx, now.Add(-threshold))
	if err != nil {
		return 0, err
	}

	reassigned := 0
	for i := range stale {
		ticket := &stale[i]
		if ticket.AssignedTo == nil || len(ticket.DepartmentIDs) == 0 {
			continue
		}
		candidate, err := s.leastLoaded(ctx, ticket.DepartmentIDs[0], *ticket.AssignedTo)
		if err != nil {
			s.logger.Error("auto-reassign: candidate lookup failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if candidate == nil {
			continue
		}

		oldAssignee := ticket.AssignedTo
		ticket.AssignedTo = &candidate.ID
		ticket.Status = domain.TicketStatusPendingAck
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Error("auto-reassign: update failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}

		action := &domain.TicketAction{
			TicketID:   ticket.ID,
			ActionType: domain.ActionReassigned,
			Notes:      fmt.Sprintf("automatically reassigned from %s to %s after inactivity", *oldAssignee, candidate.ID),
		}
		if err := s.actions.Create(ctx, action); err != nil {
			s.logger.Error("auto-reassign: audit entry failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}

		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketReassigned,
			TicketID:  ticket.ID,
			Timestamp: now,
			Payload: events.TicketReassignedPayload{
				OldAssignee: oldAssignee,
				NewAssignee: candidate.ID,
				Automatic:   true,
			},
		})
		reassigned++
	}
	return reassigned, nil
}

// leastLoaded picks the active department member with the fewest open
// tickets, excluding the current assignee. Returns nil when nobody else
// is available.
func (s *SweepService) leastLoaded(ctx context.Context, departmentID, excludeUserID string) (*domain.User, error) {
	members, err := s.users.ListByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	var best *domain.User
	bestLoad := 0
	for i := range members {
		member := &members[i]
		if member.ID == excludeUserID {
			continue
		}
		load, err := s.tickets.CountOpenByAssignee(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		if best == nil || load < bestLoad {
			best = member
			bestLoad = load
		}
	}
	return best, nil
}
