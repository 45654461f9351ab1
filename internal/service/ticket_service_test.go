package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/events"
	"github.com/unidesk/request-service/internal/repository"
	"github.com/unidesk/request-service/internal/sla"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

type ticketFixture struct {
	service   *TicketService
	tickets   *fakeTicketRepo
	actions   *fakeActionRepo
	penalties *fakePenaltyRepo
	users     *fakeUserRepo
	now       time.Time
}

func newTicketFixture(t *testing.T, users ...*domain.User) *ticketFixture {
	t.Helper()
	fx := &ticketFixture{
		tickets:   newFakeTicketRepo(),
		actions:   newFakeActionRepo(),
		penalties: newFakePenaltyRepo(),
		users:     newFakeUserRepo(users...),
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	fx.service = NewTicketService(TicketDependencies{
		TicketRepo:  fx.tickets,
		ActionRepo:  fx.actions,
		PenaltyRepo: fx.penalties,
		UserRepo:    fx.users,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
	}, sla.DefaultConfig(), 20).WithClock(func() time.Time { return fx.now })
	return fx
}

func employee(id string, dept *string) *domain.User {
	return &domain.User{ID: id, Username: id, Role: domain.RoleEmployee, DepartmentID: dept, Active: true}
}

func admin(id string) *domain.User {
	return &domain.User{ID: id, Username: id, Role: domain.RoleAdmin, Active: true}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.ToDomainError(err).Code
}

func TestCreateComputesDeadlineOnce(t *testing.T) {
	creator := employee("creator", nil)
	assignee := employee("worker", nil)
	fx := newTicketFixture(t, creator, assignee)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title:       "projector broken in hall B",
		Priority:    domain.TicketPriorityCritical,
		AssigneeIDs: []string{assignee.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusPendingAck, ticket.Status)
	assert.Equal(t, domain.EscalationNone, ticket.EscalationLevel)
	assert.Equal(t, fx.now.Add(2*time.Hour), ticket.SLADeadline)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, assignee.ID, *ticket.AssignedTo, "first multi-assignee becomes primary")
	assert.NotEmpty(t, ticket.ExternalKey)

	created := fx.actions.byType(ticket.ID, domain.ActionCreated)
	require.Len(t, created, 1)
}

func TestCreateRequiresAssignmentTarget(t *testing.T) {
	creator := employee("creator", nil)
	fx := newTicketFixture(t, creator)

	_, err := fx.service.Create(context.Background(), creator, CreateTicketInput{Title: "nobody to do it"})
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
}

func TestCloseRejectsShortNotesBeforeMutation(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "fix door lock", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	_, err = fx.service.Close(context.Background(), worker, ticket.ID, CloseInput{
		Notes: "too short", ExecutionTime: "1h",
	})
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingAck, stored.Status, "rejected close must not mutate")
}

func TestCloseSetsResolvedAndClosedToSameInstant(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "fix door lock", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	closed, err := fx.service.Close(context.Background(), worker, ticket.ID, CloseInput{
		Notes:         "replaced the cylinder and tested the key set",
		ExecutionTime: "45 minutes",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ResolvedAt)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ResolvedAt.Equal(*closed.ClosedAt))
}

func TestCloseAfterResolveKeepsResolvedAt(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "replace lamp", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	resolved, err := fx.service.Resolve(context.Background(), worker, ticket.ID, CloseInput{
		Notes: "swapped the lamp, verified it powers on", ExecutionTime: "20 minutes",
	})
	require.NoError(t, err)
	resolvedAt := *resolved.ResolvedAt

	fx.now = fx.now.Add(time.Hour)
	closed, err := fx.service.Close(context.Background(), worker, ticket.ID, CloseInput{
		Notes: "confirmed with requester, closing the request", ExecutionTime: "5 minutes",
	})
	require.NoError(t, err)
	assert.True(t, closed.ResolvedAt.Equal(resolvedAt))
	assert.True(t, closed.ClosedAt.After(resolvedAt))
}

func TestFinishOnClosedTicketRejected(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "fix door lock", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)
	_, err = fx.service.Close(context.Background(), worker, ticket.ID, CloseInput{
		Notes: "replaced the cylinder and tested the key set", ExecutionTime: "45 minutes",
	})
	require.NoError(t, err)

	_, err = fx.service.Close(context.Background(), worker, ticket.ID, CloseInput{
		Notes: "trying to close a second time here", ExecutionTime: "1 minute",
	})
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))
}

func TestReturnRequiresReason(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "unclear request", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	_, err = fx.service.Return(context.Background(), worker, ticket.ID, "  ")
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))

	returned, err := fx.service.Return(context.Background(), worker, ticket.ID, "missing room number")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReturned, returned.Status)

	// returned is a dead end
	_, err = fx.service.Return(context.Background(), worker, ticket.ID, "again")
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))
}

func TestReassignResetsAcknowledgmentWorkflow(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	substitute := employee("substitute", nil)
	boss := admin("boss")
	fx := newTicketFixture(t, creator, worker, substitute, boss)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "migrate mail account", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	reassigned, err := fx.service.Reassign(context.Background(), boss, ticket.ID, substitute.ID, "vacation")
	require.NoError(t, err)
	require.NotNil(t, reassigned.AssignedTo)
	assert.Equal(t, substitute.ID, *reassigned.AssignedTo)
	assert.Equal(t, domain.TicketStatusPendingAck, reassigned.Status)

	audits := fx.actions.byType(ticket.ID, domain.ActionReassigned)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Notes, worker.ID)
	assert.Contains(t, audits[0].Notes, substitute.ID)
}

func TestMarkViolationRestrictedToAdminAndPresident(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	head := &domain.User{ID: "head", Role: domain.RoleHead, Active: true}
	boss := admin("boss")
	fx := newTicketFixture(t, creator, worker, head, boss)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "ignored request", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	_, err = fx.service.MarkViolation(context.Background(), head, ticket.ID, "never acknowledged")
	assert.Equal(t, "NOT_AUTHORIZED", errCode(t, err))

	violated, err := fx.service.MarkViolation(context.Background(), boss, ticket.ID, "never acknowledged")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusViolated, violated.Status)

	require.Len(t, fx.penalties.penalties, 1)
	penalty := fx.penalties.penalties[0]
	assert.Equal(t, sla.ManualViolationPoints, penalty.Points)
	require.NotNil(t, penalty.UserID)
	assert.Equal(t, worker.ID, *penalty.UserID)
	assert.Equal(t, PenaltyDedupeKey(ticket.ID, fx.now, domain.PenaltyRuleManual), penalty.DedupeKey)
}

func TestMarkViolationSameDayIsIdempotent(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	boss := admin("boss")
	fx := newTicketFixture(t, creator, worker, boss)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "ignored request", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	_, err = fx.service.MarkViolation(context.Background(), boss, ticket.ID, "first")
	require.NoError(t, err)
	_, err = fx.service.MarkViolation(context.Background(), boss, ticket.ID, "second")
	require.NoError(t, err)

	assert.Len(t, fx.penalties.penalties, 1, "same ticket, day, and rule must not accrue twice")
}

func TestUpdateConflictSurfacesVersionError(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "contended ticket", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	// another writer bumps the stored version behind our back
	concurrent, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NoError(t, fx.tickets.Update(context.Background(), concurrent))

	stale, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	stale.Version--
	err = fx.tickets.Update(context.Background(), stale)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.Equal(t, "VERSION_CONFLICT", apperrors.ToDomainError(apperrors.NewVersionConflict(ticket.ID)).Code)

	_, err = fx.service.Return(context.Background(), worker, ticket.ID, "still works after retry read")
	require.NoError(t, err)
}

func TestCommentAppendsAuditEntry(t *testing.T) {
	creator := employee("creator", nil)
	worker := employee("worker", nil)
	fx := newTicketFixture(t, creator, worker)

	ticket, err := fx.service.Create(context.Background(), creator, CreateTicketInput{
		Title: "printer jam", AssignedTo: &worker.ID,
	})
	require.NoError(t, err)

	require.NoError(t, fx.service.Comment(context.Background(), worker, ticket.ID, "ordered spare rollers"))
	comments := fx.actions.byType(ticket.ID, domain.ActionCommented)
	require.Len(t, comments, 1)
	assert.Equal(t, "ordered spare rollers", comments[0].Notes)
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", preview("short", 120))

	long := strings.Repeat("م", 130)
	got := preview(long, 120)
	assert.True(t, utf8.ValidString(got), "truncation must never tear a multi-byte rune")
	assert.Equal(t, strings.Repeat("م", 120)+"…", got)

	// multi-byte text that fits in max runes but not max bytes is kept whole
	exact := strings.Repeat("م", 100)
	assert.Equal(t, exact, preview(exact, 120))
}
