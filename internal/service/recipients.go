package service

import (
	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
)

// RecipientContext carries the already-resolved audiences for one event so
// RecipientsFor stays a pure function over IDs.
type RecipientContext struct {
	Ticket            *domain.Ticket
	DepartmentMembers []string // employees and heads of the responsible departments
	EscalationTargets []string // audience the current escalation tier points at
	UpperManagement   []string
	Acknowledged      []string // users whose acknowledgment is already on record
	ActorID           string
}

// RecipientsFor computes the distinct notification recipients for an
// event. The acting user never receives their own notification.
func RecipientsFor(eventType events.EventType, rc RecipientContext) []string {
	ticket := rc.Ticket
	if ticket == nil {
		return nil
	}

	set := make(map[string]struct{})
	add := func(ids ...string) {
		for _, id := range ids {
			if id != "" && id != rc.ActorID {
				set[id] = struct{}{}
			}
		}
	}
	addAssignees := func() {
		if ticket.AssignedTo != nil {
			add(*ticket.AssignedTo)
		}
		add(ticket.AssigneeIDs...)
	}

	switch eventType {
	case events.EventTicketCreated:
		addAssignees()
		add(rc.DepartmentMembers...)
		if ticket.Priority == domain.TicketPriorityCritical {
			add(rc.UpperManagement...)
		}
	case events.EventTicketAcknowledged:
		add(ticket.CreatedBy)
		acked := make(map[string]struct{}, len(rc.Acknowledged))
		for _, id := range rc.Acknowledged {
			acked[id] = struct{}{}
		}
		// only assignees still owing an acknowledgment get pinged
		addPending := func(ids ...string) {
			for _, id := range ids {
				if _, ok := acked[id]; !ok {
					add(id)
				}
			}
		}
		if ticket.AssignedTo != nil {
			addPending(*ticket.AssignedTo)
		}
		addPending(ticket.AssigneeIDs...)
	case events.EventTicketEscalated:
		// the tier the ticket escalated to, not the people already on it
		add(rc.EscalationTargets...)
		add(rc.UpperManagement...)
	case events.EventTicketViolated:
		addAssignees()
		add(ticket.CreatedBy)
		add(rc.UpperManagement...)
	case events.EventTicketCommented:
		add(ticket.CreatedBy)
		addAssignees()
	case events.EventTicketResolved, events.EventTicketClosed, events.EventTicketReturned:
		add(ticket.CreatedBy)
		addAssignees()
	case events.EventTicketReassigned:
		add(ticket.CreatedBy)
		addAssignees()
	default:
		return nil
	}

	result := make([]string, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	return result
}
