package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/repository"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

const unreadCacheTTL = 5 * time.Minute

// NotificationService fans lifecycle events out to in-app notifications
// and best-effort email. Delivery problems are logged and swallowed;
// notification failure never breaks a ticket workflow.
type NotificationService struct {
	notifications repository.NotificationRepository
	tickets       repository.TicketRepository
	users         repository.UserRepository
	cache         *redis.Client
	logger        *zap.Logger
	emailFrom     string
}

// NewNotificationService builds the service. cache may be nil; unread
// counts then always hit the database.
func NewNotificationService(
	notifications repository.NotificationRepository,
	tickets repository.TicketRepository,
	users repository.UserRepository,
	cache *redis.Client,
	logger *zap.Logger,
	emailFrom string,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		tickets:       tickets,
		users:         users,
		cache:         cache,
		logger:        logger,
		emailFrom:     emailFrom,
	}
}

// Register subscribes the fan-out handler to every ticket lifecycle event.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAcknowledged,
		events.EventTicketEscalated,
		events.EventTicketViolated,
		events.EventTicketCommented,
		events.EventTicketResolved,
		events.EventTicketClosed,
		events.EventTicketReturned,
		events.EventTicketReassigned,
	} {
		dispatcher.Subscribe(eventType, s.handleEvent)
	}
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	ticket, err := s.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		s.logger.Error("notification fan-out: ticket load failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}

	rc := RecipientContext{Ticket: ticket, ActorID: event.ActorID}
	switch event.Type {
	case events.EventTicketCreated:
		rc.DepartmentMembers = s.departmentAudience(ctx, ticket, domain.RoleEmployee, domain.RoleHead)
	case events.EventTicketEscalated:
		rc.EscalationTargets = s.escalationAudience(ctx, ticket)
	case events.EventTicketAcknowledged:
		if payload, ok := event.Payload.(events.TicketAcknowledgedPayload); ok {
			rc.Acknowledged = payload.AcknowledgedIDs
		}
	}
	if needsUpperManagement(event.Type, ticket) {
		management, err := s.users.ListUpperManagement(ctx)
		if err != nil {
			s.logger.Error("notification fan-out: management lookup failed", zap.Error(err))
		}
		for _, user := range management {
			rc.UpperManagement = append(rc.UpperManagement, user.ID)
		}
	}

	recipients := RecipientsFor(event.Type, rc)
	if len(recipients) == 0 {
		return nil
	}

	notifType, title, message := render(event, ticket)
	for _, userID := range recipients {
		n := &domain.Notification{
			UserID:   userID,
			Type:     notifType,
			Title:    title,
			Message:  message,
			TicketID: &ticket.ID,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Error("notification write failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		s.invalidateUnread(ctx, userID)
		s.sendEmail(userID, title, message)
	}
	return nil
}

// departmentAudience collects members of every responsible department,
// restricted to the given roles.
func (s *NotificationService) departmentAudience(ctx context.Context, ticket *domain.Ticket, roles ...domain.Role) []string {
	var ids []string
	for _, deptID := range ticket.DepartmentIDs {
		members, err := s.users.ListByDepartment(ctx, deptID, roles...)
		if err != nil {
			s.logger.Error("notification fan-out: department lookup failed",
				zap.String("department_id", deptID), zap.Error(err))
			continue
		}
		for _, member := range members {
			ids = append(ids, member.ID)
		}
	}
	return ids
}

// escalationAudience resolves who the ticket's current tier points at:
// heads of the responsible departments at the head level, every dean or
// president account at the higher levels.
func (s *NotificationService) escalationAudience(ctx context.Context, ticket *domain.Ticket) []string {
	switch ticket.EscalationLevel {
	case domain.EscalationHead:
		return s.departmentAudience(ctx, ticket, domain.RoleHead)
	case domain.EscalationDean:
		return s.roleAudience(ctx, domain.RoleDean)
	case domain.EscalationPresident:
		return s.roleAudience(ctx, domain.RolePresident)
	}
	return nil
}

func (s *NotificationService) roleAudience(ctx context.Context, role domain.Role) []string {
	users, err := s.users.ListByRoles(ctx, role)
	if err != nil {
		s.logger.Error("notification fan-out: role lookup failed",
			zap.String("role", string(role)), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	return ids
}

func needsUpperManagement(eventType events.EventType, ticket *domain.Ticket) bool {
	switch eventType {
	case events.EventTicketEscalated, events.EventTicketViolated:
		return true
	case events.EventTicketCreated:
		return ticket.Priority == domain.TicketPriorityCritical
	}
	return false
}

func render(event events.Event, ticket *domain.Ticket) (domain.NotificationType, string, string) {
	ref := ticket.ExternalKey
	switch event.Type {
	case events.EventTicketCreated:
		return domain.NotifyNewTicket,
			fmt.Sprintf("New request %s", ref),
			fmt.Sprintf("%q was assigned to you or your department.", ticket.Title)
	case events.EventTicketAcknowledged:
		return domain.NotifyTicketAcknowledged,
			fmt.Sprintf("Request %s acknowledged", ref),
			fmt.Sprintf("An acknowledgment was recorded for %q.", ticket.Title)
	case events.EventTicketEscalated:
		return domain.NotifyTicketEscalated,
			fmt.Sprintf("Request %s escalated", ref),
			fmt.Sprintf("%q exceeded its deadline and is now at the %s level.", ticket.Title, ticket.EscalationLevel)
	case events.EventTicketViolated:
		return domain.NotifyTicketViolated,
			fmt.Sprintf("Request %s marked as violation", ref),
			fmt.Sprintf("%q was marked as an SLA violation.", ticket.Title)
	case events.EventTicketCommented:
		return domain.NotifyTicketCommented,
			fmt.Sprintf("New comment on %s", ref),
			fmt.Sprintf("A comment was added to %q.", ticket.Title)
	case events.EventTicketResolved, events.EventTicketClosed:
		return domain.NotifyTicketClosed,
			fmt.Sprintf("Request %s finished", ref),
			fmt.Sprintf("%q was %s.", ticket.Title, ticket.Status)
	case events.EventTicketReturned:
		return domain.NotifyTicketClosed,
			fmt.Sprintf("Request %s returned", ref),
			fmt.Sprintf("%q was returned to its requester.", ticket.Title)
	case events.EventTicketReassigned:
		return domain.NotifyTicketAssigned,
			fmt.Sprintf("Request %s reassigned", ref),
			fmt.Sprintf("%q has a new assignee.", ticket.Title)
	}
	return domain.NotifyNewTicket, fmt.Sprintf("Request %s updated", ref), ticket.Title
}

// sendEmail is a stub; real delivery is out of scope. Kept as a separate
// step so failures stay isolated from the in-app write.
func (s *NotificationService) sendEmail(userID, title, message string) {
	s.logger.Debug("email notification",
		zap.String("from", s.emailFrom),
		zap.String("user_id", userID),
		zap.String("title", title),
		zap.String("message", message))
}

// ListForUser returns the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	list, err := s.notifications.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// MarkRead flags the given notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updated, err := s.notifications.MarkRead(ctx, userID, ids)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if updated > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return updated, nil
}

// MarkAllRead flags every unread notification as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if updated > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return updated, nil
}

// UnreadCount returns the user's unread total, cache-aside via Redis.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCacheKey(userID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Int(); err == nil {
			return cached, nil
		}
	}
	count, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, unreadCacheTTL).Err(); err != nil {
			s.logger.Debug("unread cache write failed", zap.Error(err))
		}
	}
	return count, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, unreadCacheKey(userID)).Err(); err != nil {
		s.logger.Debug("unread cache invalidation failed", zap.Error(err))
	}
}

func unreadCacheKey(userID string) string {
	return "notifications:unread:" + userID
}
