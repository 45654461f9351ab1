package events

import (
	"time"

	"github.com/unidesk/request-service/internal/domain"
)

// EventType enumerates lifecycle events emitted by services.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketAcknowledged EventType = "ticket_acknowledged"
	EventTicketEscalated    EventType = "ticket_escalated"
	EventTicketViolated     EventType = "ticket_violated"
	EventTicketCommented    EventType = "ticket_commented"
	EventTicketResolved     EventType = "ticket_resolved"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketReturned     EventType = "ticket_returned"
	EventTicketReassigned   EventType = "ticket_reassigned"
)

// Event represents a domain event emitted by services. ActorID is empty
// for system-generated events such as the SLA sweep.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title         string                `json:"title"`
	Priority      domain.TicketPriority `json:"priority"`
	AssignedTo    *string               `json:"assigned_to,omitempty"`
	AssigneeIDs   []string              `json:"assignee_ids,omitempty"`
	DepartmentIDs []string              `json:"department_ids,omitempty"`
}

// TicketAcknowledgedPayload payload. Complete is true when this
// acknowledgment satisfied the required set; AcknowledgedIDs is the full
// set on record including this one.
type TicketAcknowledgedPayload struct {
	UserID          string   `json:"user_id"`
	Complete        bool     `json:"complete"`
	AcknowledgedIDs []string `json:"acknowledged_ids,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Level      domain.EscalationLevel `json:"level"`
	DelayHours float64                `json:"delay_hours"`
	Manual     bool                   `json:"manual"`
}

// TicketStatusPayload covers resolved/closed/returned/violated transitions.
type TicketStatusPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Notes     string              `json:"notes,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	Preview string `json:"preview"`
}

// TicketReassignedPayload payload.
type TicketReassignedPayload struct {
	OldAssignee *string `json:"old_assignee,omitempty"`
	NewAssignee string  `json:"new_assignee"`
	Reason      string  `json:"reason,omitempty"`
	Automatic   bool    `json:"automatic"`
}
