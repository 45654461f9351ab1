package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/observability"
)

type sweepFixture struct {
	tickets   *fakeTicketRepo
	actions   *fakeActionRepo
	penalties *fakePenaltyRepo
	users     *fakeUserRepo
	service   *SweepService
}

func newSweepFixture(t *testing.T, users ...*domain.User) *sweepFixture {
	t.Helper()
	fx := &sweepFixture{
		tickets:   newFakeTicketRepo(),
		actions:   newFakeActionRepo(),
		penalties: newFakePenaltyRepo(),
		users:     newFakeUserRepo(users...),
	}
	fx.service = NewSweepService(
		fx.tickets, fx.actions, fx.penalties, fx.users,
		events.NewInMemoryDispatcher(), observability.NewMetrics(), zap.NewNop(),
	)
	return fx
}

func (fx *sweepFixture) seedTicket(t *testing.T, key string, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		ExternalKey: key,
		Title:       "seeded",
		Priority:    domain.TicketPriorityCritical,
		Status:      domain.TicketStatusPendingAck,
		CreatedBy:   "creator",
		CreatedAt:   created,
		SLADeadline: created.Add(2 * time.Hour),
	}
	if mutate != nil {
		mutate(ticket)
	}
	require.NoError(t, fx.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestSweepEscalatesOverdueTicket(t *testing.T) {
	worker := employee("worker", nil)
	fx := newSweepFixture(t, worker)
	ticket := fx.seedTicket(t, "REQ-20260302-SWEEP001", func(tk *domain.Ticket) {
		tk.AssignedTo = &worker.ID
	})

	// critical window is 2h; sweeping 5h after creation means 3h of delay
	now := ticket.CreatedAt.Add(5 * time.Hour)
	escalated, err := fx.service.SweepSLAViolations(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusViolated, stored.Status)
	assert.Equal(t, domain.EscalationHead, stored.EscalationLevel)

	audits := fx.actions.byType(ticket.ID, domain.ActionEscalated)
	require.Len(t, audits, 1)
	assert.Nil(t, audits[0].UserID, "escalation audit is system-attributed")
	assert.Contains(t, audits[0].Notes, "3.0 hours")

	require.Len(t, fx.penalties.penalties, 1)
	penalty := fx.penalties.penalties[0]
	assert.Equal(t, 1, penalty.Points, "delay under 4h accrues a single point")
	require.NotNil(t, penalty.UserID)
	assert.Equal(t, worker.ID, *penalty.UserID)
	assert.Equal(t, PenaltyDedupeKey(ticket.ID, now, domain.PenaltyRuleSLASweep), penalty.DedupeKey)
}

func TestSweepIsIdempotent(t *testing.T) {
	worker := employee("worker", nil)
	fx := newSweepFixture(t, worker)
	ticket := fx.seedTicket(t, "REQ-20260302-SWEEP002", func(tk *domain.Ticket) {
		tk.AssignedTo = &worker.ID
	})

	now := ticket.CreatedAt.Add(5 * time.Hour)
	_, err := fx.service.SweepSLAViolations(context.Background(), now)
	require.NoError(t, err)

	// violated tickets are out of the open set, so a second pass finds nothing
	escalated, err := fx.service.SweepSLAViolations(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, escalated)
	assert.Len(t, fx.penalties.penalties, 1)
}

func TestSweepEscalationSaturatesAtPresident(t *testing.T) {
	fx := newSweepFixture(t)
	dept := "facilities"
	ticket := fx.seedTicket(t, "REQ-20260302-SWEEP003", func(tk *domain.Ticket) {
		tk.DepartmentIDs = []string{dept}
		tk.EscalationLevel = domain.EscalationPresident
	})

	now := ticket.CreatedAt.Add(30 * time.Hour)
	_, err := fx.service.SweepSLAViolations(context.Background(), now)
	require.NoError(t, err)

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationPresident, stored.EscalationLevel)

	// no individual assignee, so the department takes the hit
	require.Len(t, fx.penalties.penalties, 1)
	penalty := fx.penalties.penalties[0]
	require.NotNil(t, penalty.DepartmentID)
	assert.Equal(t, dept, *penalty.DepartmentID)
	assert.Equal(t, 10, penalty.Points, "a day or more of delay accrues the maximum step")
}

func TestAutoReassignPicksLeastLoadedColleague(t *testing.T) {
	dept := "facilities"
	current := employee("current", &dept)
	busy := employee("busy", &dept)
	idle := employee("idle", &dept)
	fx := newSweepFixture(t, current, busy, idle)

	// load up the busy colleague with an open ticket
	fx.seedTicket(t, "REQ-20260302-LOAD0001", func(tk *domain.Ticket) {
		tk.AssignedTo = &busy.ID
		tk.CreatedAt = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	})

	stale := fx.seedTicket(t, "REQ-20260302-STALE001", func(tk *domain.Ticket) {
		tk.AssignedTo = &current.ID
		tk.DepartmentIDs = []string{dept}
	})

	now := stale.CreatedAt.Add(80 * time.Hour)
	reassigned, err := fx.service.AutoReassignStale(context.Background(), now, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reassigned)

	stored, err := fx.tickets.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, idle.ID, *stored.AssignedTo)
	assert.Equal(t, domain.TicketStatusPendingAck, stored.Status)

	audits := fx.actions.byType(stale.ID, domain.ActionReassigned)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Notes, "automatically reassigned")
}

func TestAutoReassignSkipsWhenNobodyElse(t *testing.T) {
	dept := "facilities"
	current := employee("current", &dept)
	fx := newSweepFixture(t, current)

	stale := fx.seedTicket(t, "REQ-20260302-STALE002", func(tk *domain.Ticket) {
		tk.AssignedTo = &current.ID
		tk.DepartmentIDs = []string{dept}
	})

	now := stale.CreatedAt.Add(80 * time.Hour)
	reassigned, err := fx.service.AutoReassignStale(context.Background(), now, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, reassigned)

	stored, err := fx.tickets.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, current.ID, *stored.AssignedTo)
}
