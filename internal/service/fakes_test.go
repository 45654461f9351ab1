package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/repository"
)

// In-memory repository fakes backing the service tests.

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.Version = 1
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeTicketRepo) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tickets {
		if stored.ExternalKey == key {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, stored.Status) {
			continue
		}
		result = append(result, *stored)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *fakeTicketRepo) ListOverdueOpen(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Status.IsOpen() && stored.SLADeadline.Before(now) {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListStaleAssigned(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Status.IsOpen() && stored.AssignedTo != nil && stored.CreatedAt.Before(cutoff) {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) CountOpenByAssignee(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, stored := range r.tickets {
		if stored.Status.IsOpen() && stored.IsAssignee(userID) {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) ListPendingAckForUser(_ context.Context, user *domain.User) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Status != domain.TicketStatusPendingAck {
			continue
		}
		if stored.IsAssignee(user.ID) {
			result = append(result, *stored)
			continue
		}
		if !stored.HasIndividualAssignee() && user.DepartmentID != nil && stored.InvolvesDepartment(*user.DepartmentID) {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type fakeAckRepo struct {
	mu   sync.Mutex
	acks map[string]*domain.Acknowledgment // key ticketID|userID
}

func newFakeAckRepo() *fakeAckRepo {
	return &fakeAckRepo{acks: make(map[string]*domain.Acknowledgment)}
}

func ackKey(ticketID, userID string) string { return ticketID + "|" + userID }

func (r *fakeAckRepo) Create(_ context.Context, ack *domain.Acknowledgment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ackKey(ack.TicketID, ack.UserID)
	if _, exists := r.acks[key]; exists {
		return false, nil
	}
	ack.ID = uuid.NewString()
	ack.CreatedAt = time.Now()
	clone := *ack
	r.acks[key] = &clone
	return true, nil
}

func (r *fakeAckRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Acknowledgment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Acknowledgment
	for key, ack := range r.acks {
		if strings.HasPrefix(key, ticketID+"|") {
			result = append(result, *ack)
		}
	}
	return result, nil
}

func (r *fakeAckRepo) AcknowledgedUserIDs(_ context.Context, ticketID string) ([]string, error) {
	acks, _ := r.ListByTicket(context.Background(), ticketID)
	ids := make([]string, 0, len(acks))
	for _, ack := range acks {
		ids = append(ids, ack.UserID)
	}
	return ids, nil
}

func (r *fakeAckRepo) Exists(_ context.Context, ticketID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.acks[ackKey(ticketID, userID)]
	return exists, nil
}

type fakeActionRepo struct {
	mu      sync.Mutex
	actions []domain.TicketAction
}

func newFakeActionRepo() *fakeActionRepo { return &fakeActionRepo{} }

func (r *fakeActionRepo) Create(_ context.Context, action *domain.TicketAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	action.ID = uuid.NewString()
	action.CreatedAt = time.Now()
	r.actions = append(r.actions, *action)
	return nil
}

func (r *fakeActionRepo) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketAction
	for _, action := range r.actions {
		if action.TicketID == ticketID {
			result = append(result, action)
		}
	}
	return result, nil
}

func (r *fakeActionRepo) byType(ticketID string, actionType domain.ActionType) []domain.TicketAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketAction
	for _, action := range r.actions {
		if action.TicketID == ticketID && action.ActionType == actionType {
			result = append(result, action)
		}
	}
	return result
}

type fakePenaltyRepo struct {
	mu        sync.Mutex
	penalties []domain.PenaltyPoint
}

func newFakePenaltyRepo() *fakePenaltyRepo { return &fakePenaltyRepo{} }

func (r *fakePenaltyRepo) Create(_ context.Context, penalty *domain.PenaltyPoint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.penalties {
		if existing.DedupeKey == penalty.DedupeKey {
			return false, nil
		}
	}
	penalty.ID = uuid.NewString()
	penalty.CreatedAt = time.Now()
	r.penalties = append(r.penalties, *penalty)
	return true, nil
}

func (r *fakePenaltyRepo) ListByUser(_ context.Context, userID string, since time.Time) ([]domain.PenaltyPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PenaltyPoint
	for _, penalty := range r.penalties {
		if penalty.UserID != nil && *penalty.UserID == userID && !penalty.CreatedAt.Before(since) {
			result = append(result, penalty)
		}
	}
	return result, nil
}

func (r *fakePenaltyRepo) SumByUser(_ context.Context, since time.Time) ([]repository.PenaltySum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := make(map[string]*repository.PenaltySum)
	for _, penalty := range r.penalties {
		if penalty.UserID == nil || penalty.CreatedAt.Before(since) {
			continue
		}
		sum, ok := totals[*penalty.UserID]
		if !ok {
			sum = &repository.PenaltySum{TargetID: *penalty.UserID}
			totals[*penalty.UserID] = sum
		}
		sum.Points += penalty.Points
		sum.Count++
	}
	var result []repository.PenaltySum
	for _, sum := range totals {
		result = append(result, *sum)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Points > result[j].Points })
	return result, nil
}

func (r *fakePenaltyRepo) SumByDepartment(_ context.Context, since time.Time) ([]repository.PenaltySum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := make(map[string]*repository.PenaltySum)
	for _, penalty := range r.penalties {
		if penalty.DepartmentID == nil || penalty.CreatedAt.Before(since) {
			continue
		}
		sum, ok := totals[*penalty.DepartmentID]
		if !ok {
			sum = &repository.PenaltySum{TargetID: *penalty.DepartmentID}
			totals[*penalty.DepartmentID] = sum
		}
		sum.Points += penalty.Points
		sum.Count++
	}
	var result []repository.PenaltySum
	for _, sum := range totals {
		result = append(result, *sum)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Points > result[j].Points })
	return result, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		clone := *user
		repo.users[user.ID] = &clone
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			result = append(result, *user)
		}
	}
	return result, nil
}

func (r *fakeUserRepo) ListByRoles(_ context.Context, roles ...domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if !user.Active {
			continue
		}
		for _, role := range roles {
			if user.Role == role {
				result = append(result, *user)
				break
			}
		}
	}
	return result, nil
}

func (r *fakeUserRepo) ListByDepartment(_ context.Context, departmentID string, roles ...domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if !user.Active || user.DepartmentID == nil || *user.DepartmentID != departmentID {
			continue
		}
		if len(roles) > 0 {
			matched := false
			for _, role := range roles {
				if user.Role == role {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *user)
	}
	return result, nil
}

func (r *fakeUserRepo) ListUpperManagement(ctx context.Context) ([]domain.User, error) {
	return r.ListByRoles(ctx,
		domain.RoleAdmin, domain.RolePresident,
		domain.RoleAdminAssistant, domain.RoleAcademicAssistant)
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	if user.FirstLoginAt == nil {
		user.FirstLoginAt = &at
	}
	user.LastLoginAt = &at
	user.LoginCount++
	return nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo { return &fakeNotificationRepo{} }

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, _, _ int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, userID string, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	var affected int64
	for i := range r.notifications {
		n := &r.notifications[i]
		if _, ok := idSet[n.ID]; ok && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for i := range r.notifications {
		n := &r.notifications[i]
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) byUser(userID string) []domain.Notification {
	result, _ := r.ListByUser(context.Background(), userID, false, 0, 0)
	return result
}

type fakeReportRepo struct {
	stats   *repository.TicketStats
	perf    []repository.DepartmentPerformance
	summary *repository.DailySummary
}

func (r *fakeReportRepo) TicketStats(context.Context, time.Time, time.Time) (*repository.TicketStats, error) {
	return r.stats, nil
}

func (r *fakeReportRepo) DepartmentPerformance(context.Context, time.Time, time.Time) ([]repository.DepartmentPerformance, error) {
	return r.perf, nil
}

func (r *fakeReportRepo) DailySummary(context.Context, time.Time, time.Time) (*repository.DailySummary, error) {
	return r.summary, nil
}
