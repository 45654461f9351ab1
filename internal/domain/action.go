package domain

import "time"

// ActionType captures what happened in an audit trail entry.
type ActionType string

const (
	ActionCreated      ActionType = "created"
	ActionAssigned     ActionType = "assigned"
	ActionAcknowledged ActionType = "acknowledged"
	ActionEscalated    ActionType = "escalated"
	ActionReassigned   ActionType = "reassigned"
	ActionResolved     ActionType = "resolved"
	ActionClosed       ActionType = "closed"
	ActionCommented    ActionType = "commented"
	ActionReturned     ActionType = "returned"
	ActionViolation    ActionType = "violation"
)

// TicketAction is an append-only audit trail entry. UserID is nil for
// system-generated entries (the SLA sweep). Entries are never mutated or
// deleted.
type TicketAction struct {
	ID         string
	TicketID   string
	ActionType ActionType
	UserID     *string
	Notes      string
	CreatedAt  time.Time
}
