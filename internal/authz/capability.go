// Package authz centralizes every role/assignment predicate behind a
// single capability function, so permission rules are tested once instead
// of being re-derived at each entry point.
package authz

import "github.com/unidesk/request-service/internal/domain"

// Action enumerates ticket operations subject to authorization.
type Action string

const (
	ActionView          Action = "view"
	ActionAcknowledge   Action = "acknowledge"
	ActionComment       Action = "comment"
	ActionClose         Action = "close"
	ActionResolve       Action = "resolve"
	ActionReturn        Action = "return"
	ActionReassign      Action = "reassign"
	ActionMarkViolation Action = "mark_violation"
	ActionAdminClose    Action = "admin_close"
)

// Can reports whether the actor may perform the action on the ticket.
func Can(actor *domain.User, action Action, ticket *domain.Ticket) bool {
	if actor == nil || ticket == nil {
		return false
	}
	switch action {
	case ActionView:
		return canView(actor, ticket)
	case ActionAcknowledge:
		return IsRequiredAcknowledger(actor, ticket)
	case ActionComment:
		return canView(actor, ticket)
	case ActionClose, ActionResolve:
		return canClose(actor, ticket)
	case ActionReturn:
		return canReturn(actor, ticket)
	case ActionReassign:
		return canReassign(actor, ticket)
	case ActionMarkViolation:
		return actor.Role == domain.RoleAdmin || actor.Role == domain.RolePresident
	case ActionAdminClose:
		return actor.IsUpperManagement()
	}
	return false
}

// IsRequiredAcknowledger reports whether the actor is among the ticket's
// required acknowledgers: the primary assignee, any multi-assignee, or a
// member of a responsible department when no individual assignee exists.
func IsRequiredAcknowledger(actor *domain.User, ticket *domain.Ticket) bool {
	if ticket.IsAssignee(actor.ID) {
		return true
	}
	if ticket.HasIndividualAssignee() {
		return false
	}
	if actor.DepartmentID == nil {
		return false
	}
	return ticket.InvolvesDepartment(*actor.DepartmentID)
}

func canView(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.IsUpperManagement() {
		return true
	}
	if ticket.CreatedBy == actor.ID || ticket.IsAssignee(actor.ID) {
		return true
	}
	if actor.DepartmentID != nil && ticket.InvolvesDepartment(*actor.DepartmentID) {
		return true
	}
	return false
}

func canClose(actor *domain.User, ticket *domain.Ticket) bool {
	if ticket.IsAssignee(actor.ID) {
		return true
	}
	switch actor.Role {
	case domain.RoleHead, domain.RoleDean, domain.RolePresident, domain.RoleAdmin:
		return true
	}
	return false
}

func canReturn(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin || actor.Role == domain.RolePresident {
		return true
	}
	if ticket.IsAssignee(actor.ID) {
		return true
	}
	if actor.DepartmentID != nil && ticket.InvolvesDepartment(*actor.DepartmentID) {
		return actor.Role == domain.RoleHead || actor.Role == domain.RoleDean
	}
	return false
}

func canReassign(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.IsUpperManagement() {
		return true
	}
	if actor.DepartmentID != nil && ticket.InvolvesDepartment(*actor.DepartmentID) {
		return actor.Role == domain.RoleHead || actor.Role == domain.RoleDean
	}
	return false
}
