package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/authz"
	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/repository"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

// AcknowledgmentService runs the receipt-confirmation workflow. Once every
// required party has acknowledged, the ticket moves from pending_ack to
// in_progress.
type AcknowledgmentService struct {
	tickets    repository.TicketRepository
	acks       repository.AcknowledgmentRepository
	actions    repository.ActionRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewAcknowledgmentService builds the service.
func NewAcknowledgmentService(
	tickets repository.TicketRepository,
	acks repository.AcknowledgmentRepository,
	actions repository.ActionRepository,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
) *AcknowledgmentService {
	return &AcknowledgmentService{
		tickets:    tickets,
		acks:       acks,
		actions:    actions,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *AcknowledgmentService) WithClock(now func() time.Time) *AcknowledgmentService {
	s.now = now
	return s
}

// Acknowledge records the actor's receipt confirmation. Acknowledging
// twice is an idempotent no-op success; the audit trail is written only
// for a first-time acknowledgment.
func (s *AcknowledgmentService) Acknowledge(ctx context.Context, actor *domain.User, ticketID, notes, sourceIP string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is already finished",
			map[string]any{"status": string(ticket.Status)})
	}
	if !authz.IsRequiredAcknowledger(actor, ticket) {
		return nil, apperrors.NewNotAuthorized("not a required acknowledger for this ticket")
	}

	ack := &domain.Acknowledgment{
		TicketID: ticket.ID,
		UserID:   actor.ID,
		Notes:    notes,
		SourceIP: sourceIP,
	}
	created, err := s.acks.Create(ctx, ack)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !created {
		// already acknowledged; success without duplicate audit noise
		return ticket, nil
	}

	ackedIDs, err := s.acks.AcknowledgedUserIDs(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	complete := AcknowledgmentComplete(ticket, ackedIDs)

	if complete && ticket.Status == domain.TicketStatusPendingAck {
		now := s.now()
		ticket.AcknowledgedAt = &now
		ticket.Status = domain.TicketStatusInProgress
		if err := s.tickets.Update(ctx, ticket); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return nil, apperrors.NewVersionConflict(ticket.ID)
			}
			return nil, apperrors.MapError(err)
		}
		s.audit(ctx, ticket.ID, actor.ID, "all required acknowledgments received, work started")
	} else {
		s.audit(ctx, ticket.ID, actor.ID, "acknowledgment recorded, awaiting remaining parties")
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAcknowledged,
		TicketID:  ticket.ID,
		ActorID:   actor.ID,
		Timestamp: s.now(),
		Payload: events.TicketAcknowledgedPayload{
			UserID:          actor.ID,
			Complete:        complete,
			AcknowledgedIDs: ackedIDs,
			Notes:           notes,
		},
	})
	return ticket, nil
}

// PendingForUser lists pending_ack tickets still awaiting this user's
// acknowledgment.
func (s *AcknowledgmentService) PendingForUser(ctx context.Context, user *domain.User) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListPendingAckForUser(ctx, user)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListForTicket returns the acknowledgments recorded against a ticket.
func (s *AcknowledgmentService) ListForTicket(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Acknowledgment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !authz.Can(actor, authz.ActionView, ticket) {
		return nil, apperrors.NewNotAuthorized("not allowed to view this ticket")
	}
	acks, err := s.acks.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return acks, nil
}

func (s *AcknowledgmentService) audit(ctx context.Context, ticketID, userID, notes string) {
	action := &domain.TicketAction{
		TicketID:   ticketID,
		ActionType: domain.ActionAcknowledged,
		UserID:     &userID,
		Notes:      notes,
	}
	if err := s.actions.Create(ctx, action); err != nil {
		s.logger.Error("audit entry failed",
			zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// AcknowledgmentComplete evaluates whether the acknowledged set satisfies
// the ticket's required parties: the primary assignee must acknowledge,
// every multi-assignee must acknowledge, and department-only tickets need
// at least one acknowledgment from anyone. The all-vs-any asymmetry
// between assignees and departments is intentional.
func AcknowledgmentComplete(ticket *domain.Ticket, ackedUserIDs []string) bool {
	acked := make(map[string]struct{}, len(ackedUserIDs))
	for _, id := range ackedUserIDs {
		acked[id] = struct{}{}
	}

	if !ticket.HasIndividualAssignee() {
		return len(acked) > 0
	}
	if ticket.AssignedTo != nil {
		if _, ok := acked[*ticket.AssignedTo]; !ok {
			return false
		}
	}
	for _, id := range ticket.AssigneeIDs {
		if _, ok := acked[id]; !ok {
			return false
		}
	}
	return true
}
