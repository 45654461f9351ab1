package dto

import (
	"time"

	"github.com/unidesk/request-service/internal/domain"
)

// CreateTicketRequest payload for POST /tickets.
type CreateTicketRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Priority      string   `json:"priority"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
	AssigneeIDs   []string `json:"assignee_ids,omitempty"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
}

// AcknowledgeRequest payload for POST /tickets/:id/acknowledge.
type AcknowledgeRequest struct {
	Notes string `json:"notes"`
}

// FinishTicketRequest payload for resolve and close endpoints.
type FinishTicketRequest struct {
	Notes         string `json:"notes"`
	ExecutionTime string `json:"execution_time"`
}

// ReturnTicketRequest payload for POST /tickets/:id/return.
type ReturnTicketRequest struct {
	Reason string `json:"reason"`
}

// ReassignTicketRequest payload for POST /tickets/:id/reassign.
type ReassignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
	Reason     string `json:"reason"`
}

// ViolationRequest payload for POST /tickets/:id/violation.
type ViolationRequest struct {
	Reason string `json:"reason"`
}

// CommentRequest payload for POST /tickets/:id/comments.
type CommentRequest struct {
	Text string `json:"text"`
}

// TicketSummary is the list-view projection.
type TicketSummary struct {
	ID              string                 `json:"id"`
	ExternalKey     string                 `json:"external_key"`
	Title           string                 `json:"title"`
	Priority        domain.TicketPriority  `json:"priority"`
	Status          domain.TicketStatus    `json:"status"`
	EscalationLevel domain.EscalationLevel `json:"escalation_level"`
	AssignedTo      *string                `json:"assigned_to,omitempty"`
	SLADeadline     time.Time              `json:"sla_deadline"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// TicketDetailResponse is the single-ticket projection including audit
// trail and acknowledgments.
type TicketDetailResponse struct {
	TicketSummary
	Description     string                   `json:"description"`
	CreatedBy       string                   `json:"created_by"`
	AssigneeIDs     []string                 `json:"assignee_ids,omitempty"`
	DepartmentIDs   []string                 `json:"department_ids,omitempty"`
	CloseNotes      string                   `json:"close_notes,omitempty"`
	AcknowledgedAt  *time.Time               `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time               `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time               `json:"closed_at,omitempty"`
	Version         int64                    `json:"version"`
	History         []ActionResponse         `json:"history,omitempty"`
	Acknowledgments []AcknowledgmentResponse `json:"acknowledgments,omitempty"`
}

// ActionResponse is one audit trail entry.
type ActionResponse struct {
	ID         string            `json:"id"`
	ActionType domain.ActionType `json:"action_type"`
	UserID     *string           `json:"user_id,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AcknowledgmentResponse is one recorded receipt confirmation.
type AcknowledgmentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
