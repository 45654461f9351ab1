package dto

import (
	"time"

	"github.com/unidesk/request-service/internal/domain"
)

// NotificationResponse is one in-app notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	TicketID  *string                 `json:"ticket_id,omitempty"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
}

// MarkReadRequest selects notifications to flag as read.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}
