package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/authz"
	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/repository"
	"github.com/unidesk/request-service/internal/sla"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

// TicketService coordinates the request lifecycle: creation, resolution,
// returning, reassignment, manual violation marking, and comments. Every
// write goes through the repository's optimistic version check.
type TicketService struct {
	tickets    repository.TicketRepository
	actions    repository.ActionRepository
	penalties  repository.PenaltyRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	slaCfg     sla.Config
	logger     *zap.Logger

	closeNotesMinLength int
	now                 func() time.Time
}

// TicketDependencies wires repository requirements for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	ActionRepo  repository.ActionRepository
	PenaltyRepo repository.PenaltyRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewTicketService builds the service.
func NewTicketService(deps TicketDependencies, slaCfg sla.Config, closeNotesMinLength int) *TicketService {
	if closeNotesMinLength <= 0 {
		closeNotesMinLength = 20
	}
	return &TicketService{
		tickets:             deps.TicketRepo,
		actions:             deps.ActionRepo,
		penalties:           deps.PenaltyRepo,
		users:               deps.UserRepo,
		dispatcher:          deps.Dispatcher,
		slaCfg:              slaCfg,
		logger:              deps.Logger,
		closeNotesMinLength: closeNotesMinLength,
		now:                 time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *TicketService) WithClock(now func() time.Time) *TicketService {
	s.now = now
	return s
}

// CreateTicketInput captures creation parameters.
type CreateTicketInput struct {
	Title         string
	Description   string
	Priority      domain.TicketPriority
	AssignedTo    *string
	AssigneeIDs   []string
	DepartmentIDs []string
}

// Create opens a new ticket. The SLA deadline is computed here, exactly
// once. The ticket starts in pending_ack awaiting acknowledgment from its
// required parties. When only multi-assignees are given, the first one
// becomes the primary assignee.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, input CreateTicketInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	if input.AssignedTo == nil && len(input.AssigneeIDs) == 0 && len(input.DepartmentIDs) == 0 {
		return nil, apperrors.NewValidationError("at least one assignee or department is required", nil)
	}
	priority := input.Priority
	switch priority {
	case "":
		priority = domain.TicketPriorityNormal
	case domain.TicketPriorityNormal, domain.TicketPriorityUrgent, domain.TicketPriorityCritical:
	default:
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}

	assignedTo := input.AssignedTo
	if assignedTo == nil && len(input.AssigneeIDs) > 0 {
		primary := input.AssigneeIDs[0]
		assignedTo = &primary
	}

	now := s.now()
	ticket := &domain.Ticket{
		ExternalKey:     newExternalKey(now),
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		Priority:        priority,
		Status:          domain.TicketStatusPendingAck,
		EscalationLevel: domain.EscalationNone,
		CreatedBy:       actor.ID,
		AssignedTo:      assignedTo,
		AssigneeIDs:     input.AssigneeIDs,
		DepartmentIDs:   input.DepartmentIDs,
		SLADeadline:     s.slaCfg.Deadline(priority, now),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.appendAction(ctx, ticket.ID, domain.ActionCreated, &actor.ID,
		fmt.Sprintf("ticket created with priority %s", priority))
	s.publish(ctx, events.EventTicketCreated, ticket.ID, actor.ID, events.TicketCreatedPayload{
		Title:         ticket.Title,
		Priority:      ticket.Priority,
		AssignedTo:    ticket.AssignedTo,
		AssigneeIDs:   ticket.AssigneeIDs,
		DepartmentIDs: ticket.DepartmentIDs,
	})
	return ticket, nil
}

// GetByID loads a ticket the actor is allowed to view.
func (s *TicketService) GetByID(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !authz.Can(actor, authz.ActionView, ticket) {
		return nil, apperrors.NewNotAuthorized("not allowed to view this ticket")
	}
	return ticket, nil
}

// List returns tickets matching the filter, scoped to the actor's
// involvement unless the actor is upper management.
func (s *TicketService) List(ctx context.Context, actor *domain.User, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if !actor.IsUpperManagement() {
		filter.ViewerID = &actor.ID
		filter.ViewerDepartmentID = actor.DepartmentID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// History returns the audit trail of a viewable ticket.
func (s *TicketService) History(ctx context.Context, actor *domain.User, ticketID string, limit, offset int) ([]domain.TicketAction, error) {
	if _, err := s.GetByID(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	history, err := s.actions.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// CloseInput carries the resolution narrative required to finish a ticket.
type CloseInput struct {
	Notes         string
	ExecutionTime string
}

// Resolve marks the ticket resolved with mandatory close notes. The ticket
// stays reopenable until Close.
func (s *TicketService) Resolve(ctx context.Context, actor *domain.User, ticketID string, input CloseInput) (*domain.Ticket, error) {
	return s.finish(ctx, actor, ticketID, input, false)
}

// Close finishes the ticket for good. resolved_at and closed_at are set to
// the same instant when the ticket was not resolved beforehand.
func (s *TicketService) Close(ctx context.Context, actor *domain.User, ticketID string, input CloseInput) (*domain.Ticket, error) {
	return s.finish(ctx, actor, ticketID, input, true)
}

func (s *TicketService) finish(ctx context.Context, actor *domain.User, ticketID string, input CloseInput, close bool) (*domain.Ticket, error) {
	notes := strings.TrimSpace(input.Notes)
	if len(notes) < s.closeNotesMinLength {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("close notes must be at least %d characters", s.closeNotesMinLength), nil)
	}
	if strings.TrimSpace(input.ExecutionTime) == "" {
		return nil, apperrors.NewValidationError("execution time is required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	// resolved tickets may still be closed; everything else terminal is final
	finishable := !ticket.Status.IsTerminal() || (close && ticket.Status == domain.TicketStatusResolved)
	if !finishable {
		return nil, apperrors.NewInvalidTransition("ticket is already finished",
			map[string]any{"status": string(ticket.Status)})
	}
	action := authz.ActionResolve
	if close {
		action = authz.ActionClose
	}
	if !authz.Can(actor, action, ticket) {
		return nil, apperrors.NewNotAuthorized("not allowed to finish this ticket")
	}

	oldStatus := ticket.Status
	now := s.now()
	ticket.CloseNotes = notes
	if close {
		ticket.Status = domain.TicketStatusClosed
		ticket.ClosedAt = &now
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
	} else {
		ticket.Status = domain.TicketStatusResolved
		ticket.ResolvedAt = &now
	}
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	auditType := domain.ActionResolved
	eventType := events.EventTicketResolved
	if close {
		auditType = domain.ActionClosed
		eventType = events.EventTicketClosed
	}
	s.appendAction(ctx, ticket.ID, auditType, &actor.ID,
		fmt.Sprintf("%s (execution time: %s)", notes, strings.TrimSpace(input.ExecutionTime)))
	s.publish(ctx, eventType, ticket.ID, actor.ID, events.TicketStatusPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
		Notes:     notes,
	})
	return ticket, nil
}

// Return sends the ticket back to its requester with a mandatory reason.
// Returned is a dead end; the requester opens a fresh ticket if needed.
func (s *TicketService) Return(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("return reason is required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is already finished",
			map[string]any{"status": string(ticket.Status)})
	}
	if !authz.Can(actor, authz.ActionReturn, ticket) {
		return nil, apperrors.NewNotAuthorized("not allowed to return this ticket")
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusReturned
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendAction(ctx, ticket.ID, domain.ActionReturned, &actor.ID, reason)
	s.publish(ctx, events.EventTicketReturned, ticket.ID, actor.ID, events.TicketStatusPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
		Notes:     reason,
	})
	return ticket, nil
}

// Reassign hands the ticket to a new primary assignee and restarts the
// acknowledgment workflow.
func (s *TicketService) Reassign(ctx context.Context, actor *domain.User, ticketID, newAssigneeID, reason string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is already finished",
			map[string]any{"status": string(ticket.Status)})
	}
	if !authz.Can(actor, authz.ActionReassign, ticket) {
		return nil, apperrors.NewNotAuthorized("not allowed to reassign this ticket")
	}
	newAssignee, err := s.users.GetByID(ctx, newAssigneeID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !newAssignee.Active {
		return nil, apperrors.NewValidationError("new assignee is not active", nil)
	}

	oldAssignee := ticket.AssignedTo
	ticket.AssignedTo = &newAssignee.ID
	ticket.Status = domain.TicketStatusPendingAck
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("reassigned to %s", newAssignee.FullName)
	if oldAssignee != nil {
		note = fmt.Sprintf("reassigned from %s to %s", *oldAssignee, newAssignee.ID)
	}
	if reason != "" {
		note += ": " + reason
	}
	s.appendAction(ctx, ticket.ID, domain.ActionReassigned, &actor.ID, note)
	s.publish(ctx, events.EventTicketReassigned, ticket.ID, actor.ID, events.TicketReassignedPayload{
		OldAssignee: oldAssignee,
		NewAssignee: newAssignee.ID,
		Reason:      reason,
	})
	return ticket, nil
}

// MarkViolation forces the ticket into violated and debits the fixed
// manual penalty against the assignee or the first responsible
// department. Restricted to admin and president.
func (s *TicketService) MarkViolation(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("violation reason is required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !authz.Can(actor, authz.ActionMarkViolation, ticket) {
		return nil, apperrors.NewNotAuthorized("only admin or president may mark violations")
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition("ticket is already finished",
			map[string]any{"status": string(ticket.Status)})
	}

	oldStatus := ticket.Status
	now := s.now()
	ticket.Status = domain.TicketStatusViolated
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	penalty := penaltyFor(ticket, sla.ManualViolationPoints,
		fmt.Sprintf("manual violation: %s", reason),
		PenaltyDedupeKey(ticket.ID, now, domain.PenaltyRuleManual))
	if penalty != nil {
		if _, err := s.penalties.Create(ctx, penalty); err != nil {
			s.logger.Error("penalty accrual failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.appendAction(ctx, ticket.ID, domain.ActionViolation, &actor.ID, reason)
	s.publish(ctx, events.EventTicketViolated, ticket.ID, actor.ID, events.TicketStatusPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
		Notes:     reason,
	})
	return ticket, nil
}

// Comment appends a commented audit entry and fans out notifications.
func (s *TicketService) Comment(ctx context.Context, actor *domain.User, ticketID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("comment text is required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !authz.Can(actor, authz.ActionComment, ticket) {
		return apperrors.NewNotAuthorized("not allowed to comment on this ticket")
	}

	s.appendAction(ctx, ticket.ID, domain.ActionCommented, &actor.ID, text)
	s.publish(ctx, events.EventTicketCommented, ticket.ID, actor.ID, events.TicketCommentedPayload{
		Preview: preview(text, 120),
	})
	return nil
}

func (s *TicketService) update(ctx context.Context, ticket *domain.Ticket) error {
	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperrors.NewVersionConflict(ticket.ID)
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) appendAction(ctx context.Context, ticketID string, actionType domain.ActionType, userID *string, notes string) {
	action := &domain.TicketAction{
		TicketID:   ticketID,
		ActionType: actionType,
		UserID:     userID,
		Notes:      notes,
	}
	if err := s.actions.Create(ctx, action); err != nil {
		s.logger.Error("audit entry failed",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(actionType)),
			zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID, actorID string, payload interface{}) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: s.now(),
		Payload:   payload,
	})
}

// PenaltyDedupeKey builds the (ticket, day, rule) idempotency key used to
// guard against duplicate accrual.
func PenaltyDedupeKey(ticketID string, at time.Time, rule string) string {
	return fmt.Sprintf("%s:%s:%s", ticketID, at.UTC().Format("2006-01-02"), rule)
}

// penaltyFor targets the assignee, falling back to the first responsible
// department. Returns nil when the ticket has neither.
func penaltyFor(ticket *domain.Ticket, points int, reason, dedupeKey string) *domain.PenaltyPoint {
	penalty := &domain.PenaltyPoint{
		Points:    points,
		Reason:    reason,
		DedupeKey: dedupeKey,
	}
	switch {
	case ticket.AssignedTo != nil:
		penalty.UserID = ticket.AssignedTo
	case len(ticket.DepartmentIDs) > 0:
		dept := ticket.DepartmentIDs[0]
		penalty.DepartmentID = &dept
	default:
		return nil
	}
	return penalty
}

func newExternalKey(now time.Time) string {
	return fmt.Sprintf("REQ-%s-%s", now.UTC().Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
}

// preview truncates on a rune boundary so multi-byte text never ends up
// with a torn character in the event payload.
func preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
