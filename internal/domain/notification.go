package domain

import "time"

// NotificationType enumerates in-app notification categories.
type NotificationType string

const (
	NotifyNewTicket          NotificationType = "new_ticket"
	NotifyTicketAssigned     NotificationType = "ticket_assigned"
	NotifyTicketAcknowledged NotificationType = "ticket_acknowledged"
	NotifyTicketEscalated    NotificationType = "ticket_escalated"
	NotifyTicketCommented    NotificationType = "ticket_commented"
	NotifyTicketClosed       NotificationType = "ticket_closed"
	NotifyTicketViolated     NotificationType = "ticket_violated"
	NotifyDeadlineNear       NotificationType = "deadline_approaching"
	NotifyDailyReport        NotificationType = "daily_report"
)

// Notification is an in-app message for a single recipient, unread by
// default.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	TicketID  *string
	IsRead    bool
	CreatedAt time.Time
}
