// Package sla computes deadlines, delay, and penalty accrual from ticket
// priority and timestamps. Everything here is pure and deterministic.
package sla

import (
	"time"

	"github.com/unidesk/request-service/internal/domain"
)

// Config maps each priority to its allowed resolution window in hours.
type Config struct {
	NormalHours   int
	UrgentHours   int
	CriticalHours int
}

// DefaultConfig mirrors the standard deployment settings.
func DefaultConfig() Config {
	return Config{NormalHours: 24, UrgentHours: 6, CriticalHours: 2}
}

// AllowedHours returns the SLA window for a priority. Unknown priorities
// fall back to the normal window.
func (c Config) AllowedHours(priority domain.TicketPriority) int {
	switch priority {
	case domain.TicketPriorityCritical:
		return c.CriticalHours
	case domain.TicketPriorityUrgent:
		return c.UrgentHours
	default:
		return c.NormalHours
	}
}

// Deadline computes the SLA deadline for a ticket created at createdAt.
// Called exactly once, at creation; the result is never recomputed.
func (c Config) Deadline(priority domain.TicketPriority, createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(c.AllowedHours(priority)) * time.Hour)
}

// IsOverdue reports whether the ticket has passed its deadline while not
// yet resolved or closed.
func IsOverdue(t *domain.Ticket, now time.Time) bool {
	if t.SLADeadline.IsZero() {
		return false
	}
	if t.Status == domain.TicketStatusResolved || t.Status == domain.TicketStatusClosed {
		return false
	}
	return now.After(t.SLADeadline)
}

// HoursDelayed returns the fractional hours past the deadline, or 0 when
// the ticket is not overdue.
func HoursDelayed(t *domain.Ticket, now time.Time) float64 {
	if !IsOverdue(t, now) {
		return 0
	}
	return now.Sub(t.SLADeadline).Hours()
}

// TimeUntilDeadline returns the remaining window, clamped at zero, or nil
// for resolved/closed tickets.
func TimeUntilDeadline(t *domain.Ticket, now time.Time) *time.Duration {
	if t.Status == domain.TicketStatusResolved || t.Status == domain.TicketStatusClosed {
		return nil
	}
	d := t.SLADeadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return &d
}

// PenaltyPoints maps delay duration to accountability points. Step
// function: under 4h -> 1, under 8h -> 3, under 24h -> 5, else 10.
func PenaltyPoints(delayHours float64) int {
	switch {
	case delayHours < 4:
		return 1
	case delayHours < 8:
		return 3
	case delayHours < 24:
		return 5
	default:
		return 10
	}
}

// ManualViolationPoints is the fixed debit for a manual violation marking,
// regardless of actual delay.
const ManualViolationPoints = 10
