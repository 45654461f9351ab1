package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unidesk/request-service/internal/domain"
)

func TestDeadlinePerPriority(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, t0.Add(24*time.Hour), cfg.Deadline(domain.TicketPriorityNormal, t0))
	assert.Equal(t, t0.Add(6*time.Hour), cfg.Deadline(domain.TicketPriorityUrgent, t0))
	assert.Equal(t, t0.Add(2*time.Hour), cfg.Deadline(domain.TicketPriorityCritical, t0))

	// unknown priorities get the normal window
	assert.Equal(t, t0.Add(24*time.Hour), cfg.Deadline(domain.TicketPriority("bogus"), t0))
}

func TestDeadlineMonotonicInAllowedHours(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	critical := cfg.Deadline(domain.TicketPriorityCritical, t0)
	urgent := cfg.Deadline(domain.TicketPriorityUrgent, t0)
	normal := cfg.Deadline(domain.TicketPriorityNormal, t0)

	assert.True(t, critical.Before(urgent))
	assert.True(t, urgent.Before(normal))

	// deterministic given identical inputs
	assert.Equal(t, critical, cfg.Deadline(domain.TicketPriorityCritical, t0))
}

func TestIsOverdue(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, SLADeadline: deadline}

	assert.False(t, IsOverdue(ticket, deadline.Add(-time.Minute)))
	assert.False(t, IsOverdue(ticket, deadline))
	assert.True(t, IsOverdue(ticket, deadline.Add(time.Minute)))

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		done := &domain.Ticket{Status: status, SLADeadline: deadline}
		assert.False(t, IsOverdue(done, deadline.Add(48*time.Hour)), string(status))
	}

	// violated tickets remain overdue until resolved/closed
	violated := &domain.Ticket{Status: domain.TicketStatusViolated, SLADeadline: deadline}
	assert.True(t, IsOverdue(violated, deadline.Add(time.Hour)))
}

func TestHoursDelayed(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{Status: domain.TicketStatusPendingAck, SLADeadline: deadline}

	assert.Equal(t, 0.0, HoursDelayed(ticket, deadline.Add(-time.Hour)))
	assert.InDelta(t, 1.5, HoursDelayed(ticket, deadline.Add(90*time.Minute)), 1e-9)
}

func TestPenaltyPointsStepFunction(t *testing.T) {
	cases := []struct {
		delay float64
		want  int
	}{
		{0, 1},
		{3.9, 1},
		{4, 3},
		{7.9, 3},
		{8, 5},
		{23.9, 5},
		{24, 10},
		{24.1, 10},
		{100, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PenaltyPoints(tc.delay), "delay=%v", tc.delay)
	}
}

func TestTimeUntilDeadline(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	open := &domain.Ticket{Status: domain.TicketStatusNew, SLADeadline: deadline}

	remaining := TimeUntilDeadline(open, deadline.Add(-30*time.Minute))
	assert.NotNil(t, remaining)
	assert.Equal(t, 30*time.Minute, *remaining)

	// clamped at zero once overdue
	overdue := TimeUntilDeadline(open, deadline.Add(time.Hour))
	assert.NotNil(t, overdue)
	assert.Equal(t, time.Duration(0), *overdue)

	closed := &domain.Ticket{Status: domain.TicketStatusClosed, SLADeadline: deadline}
	assert.Nil(t, TimeUntilDeadline(closed, deadline))
}
