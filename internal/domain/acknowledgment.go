package domain

import "time"

// Acknowledgment is a formal receipt confirmation by a required party.
// At most one exists per (ticket, user) pair.
type Acknowledgment struct {
	ID        string
	TicketID  string
	UserID    string
	Notes     string
	SourceIP  string
	CreatedAt time.Time
}
