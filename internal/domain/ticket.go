package domain

import "time"

// TicketStatus enumerates lifecycle states for requests.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusPendingAck TicketStatus = "pending_ack"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusViolated   TicketStatus = "violated"
	TicketStatusReturned   TicketStatus = "returned"
)

// IsTerminal reports whether no further workflow transitions are allowed.
// Violated is deliberately not terminal: an overdue ticket can still be
// resolved or closed afterwards.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusReturned
}

// IsOpen reports whether the ticket still counts against its SLA.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusNew || s == TicketStatusPendingAck || s == TicketStatusInProgress
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityNormal   TicketPriority = "normal"
	TicketPriorityUrgent   TicketPriority = "urgent"
	TicketPriorityCritical TicketPriority = "critical"
)

// EscalationLevel is the organizational tier currently responsible for an
// overdue ticket.
type EscalationLevel string

const (
	EscalationNone      EscalationLevel = "none"
	EscalationHead      EscalationLevel = "head"
	EscalationDean      EscalationLevel = "dean"
	EscalationPresident EscalationLevel = "president"
)

// Next returns the following escalation tier, saturating at president.
// The zero value counts as none, so a ticket that never escalated starts
// the ladder at head.
func (l EscalationLevel) Next() EscalationLevel {
	switch l {
	case EscalationHead:
		return EscalationDean
	case EscalationDean, EscalationPresident:
		return EscalationPresident
	default:
		return EscalationHead
	}
}

// Ticket is the aggregate for tracked requests. The SLA deadline is set
// exactly once, at creation, and never recomputed. Version is bumped on
// every write and checked optimistically by the repository.
type Ticket struct {
	ID              string
	ExternalKey     string
	Title           string
	Description     string
	Priority        TicketPriority
	Status          TicketStatus
	EscalationLevel EscalationLevel
	CreatedBy       string
	AssignedTo      *string
	AssigneeIDs     []string
	DepartmentIDs   []string
	SLADeadline     time.Time
	CloseNotes      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AcknowledgedAt  *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	Version         int64
}

// HasIndividualAssignee reports whether a person (single or multi) is
// assigned. Department-only tickets behave differently in the
// acknowledgment workflow.
func (t *Ticket) HasIndividualAssignee() bool {
	return t.AssignedTo != nil || len(t.AssigneeIDs) > 0
}

// IsAssignee reports whether the user is the primary assignee or one of
// the multi-assignees.
func (t *Ticket) IsAssignee(userID string) bool {
	if t.AssignedTo != nil && *t.AssignedTo == userID {
		return true
	}
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// InvolvesDepartment reports whether the department is among the ticket's
// responsible departments.
func (t *Ticket) InvolvesDepartment(departmentID string) bool {
	for _, id := range t.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}
