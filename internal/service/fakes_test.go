package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/sla"
)

type memState struct {
	tickets       map[string]domain.Ticket
	reopens       map[string]domain.ReopenRequest
	activity      []domain.ActivityEntry
	notifications []domain.Notification
	users         map[string]domain.User
}

func newMemState() *memState {
	return &memState{
		tickets: map[string]domain.Ticket{},
		reopens: map[string]domain.ReopenRequest{},
		users:   map[string]domain.User{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.tickets {
		out.tickets[k] = *v.Clone()
	}
	for k, v := range s.reopens {
		out.reopens[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	out.activity = append(out.activity, s.activity...)
	out.notifications = append(out.notifications, s.notifications...)
	return out
}

// memStore emulates the SQL stores: versioned updates, the single-pending
// index and all-or-nothing transactions.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// ticketConflicts makes that many ticket updates fail with ErrConflict.
	ticketConflicts int
	// notificationErr fails every notification insert.
	notificationErr error
	// beforeTx runs ahead of every transaction.
	beforeTx func(ctx context.Context) error
	txCount  int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

type memView struct {
	store *memStore
	tx    *memState
}

func (v *memView) with(fn func(st *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (s *memStore) bind(v *memView) repository.Repositories {
	return repository.Repositories{
		Tickets:       memTickets{v},
		Reopens:       memReopens{v},
		Activity:      memActivity{v},
		Notifications: memNotifications{v},
		Users:         memUsers{v},
	}
}

func (s *memStore) Repos() repository.Repositories {
	return s.bind(&memView{store: s})
}

func (s *memStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if s.beforeTx != nil {
		if err := s.beforeTx(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	clone := s.state.clone()
	if err := fn(s.bind(&memView{store: s, tx: clone})); err != nil {
		return err
	}
	s.state = clone
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) putUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

func (s *memStore) putTicket(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Version == 0 {
		t.Version = 1
	}
	s.state.tickets[t.ID] = t
}

func (s *memStore) ticket(t *testing.T, id string) domain.Ticket {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.state.tickets[id]
	require.True(t, ok, "ticket %s missing", id)
	return ticket
}

func (s *memStore) notificationsFor(recipient string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.state.notifications {
		if n.RecipientID == recipient {
			out = append(out, n)
		}
	}
	return out
}

func (s *memStore) activityFor(ticketID string) []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ActivityEntry
	for _, e := range s.state.activity {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) reopenRequests() []domain.ReopenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReopenRequest
	for _, r := range s.state.reopens {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memTickets struct{ v *memView }

func (r memTickets) Create(_ context.Context, t *domain.Ticket) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.tickets[t.ID]; ok {
			return repository.ErrConflict
		}
		if t.Version == 0 {
			t.Version = 1
		}
		st.tickets[t.ID] = *t.Clone()
		return nil
	})
}

func (r memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.with(func(st *memState) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r memTickets) Update(_ context.Context, t *domain.Ticket, expectedVersion int64) error {
	return r.v.with(func(st *memState) error {
		if r.v.store.ticketConflicts > 0 {
			r.v.store.ticketConflicts--
			return repository.ErrConflict
		}
		current, ok := st.tickets[t.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if current.Version != expectedVersion {
			return repository.ErrConflict
		}
		t.Version = expectedVersion + 1
		st.tickets[t.ID] = *t.Clone()
		return nil
	})
}

func (r memTickets) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.with(func(st *memState) error {
		for _, t := range st.tickets {
			if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
				continue
			}
			if filter.AssigneeID != nil && !t.IsAssignedTo(*filter.AssigneeID) {
				continue
			}
			out = append(out, *t.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r memTickets) ListResolvedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.with(func(st *memState) error {
		for _, t := range st.tickets {
			if t.Status == domain.TicketStatusResolved && t.ResolvedAt != nil && !t.ResolvedAt.After(cutoff) {
				out = append(out, *t.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.Before(*out[j].ResolvedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memReopens struct{ v *memView }

func (r memReopens) Insert(_ context.Context, req *domain.ReopenRequest) error {
	return r.v.with(func(st *memState) error {
		if req.IsPending() {
			for _, existing := range st.reopens {
				if existing.TicketID == req.TicketID && existing.IsPending() {
					return repository.ErrConflict
				}
			}
		}
		if req.Version == 0 {
			req.Version = 1
		}
		st.reopens[req.ID] = *req
		return nil
	})
}

func (r memReopens) GetByID(_ context.Context, id string) (*domain.ReopenRequest, error) {
	var out *domain.ReopenRequest
	err := r.v.with(func(st *memState) error {
		req, ok := st.reopens[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r memReopens) GetPendingByTicket(_ context.Context, ticketID string) (*domain.ReopenRequest, error) {
	var out *domain.ReopenRequest
	err := r.v.with(func(st *memState) error {
		for _, req := range st.reopens {
			if req.TicketID == ticketID && req.IsPending() {
				found := req
				out = &found
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memReopens) ListByTicket(_ context.Context, ticketID string) ([]domain.ReopenRequest, error) {
	var out []domain.ReopenRequest
	err := r.v.with(func(st *memState) error {
		for _, req := range st.reopens {
			if req.TicketID == ticketID {
				out = append(out, req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r memReopens) Update(_ context.Context, req *domain.ReopenRequest, expectedVersion int64) error {
	return r.v.with(func(st *memState) error {
		current, ok := st.reopens[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if current.Version != expectedVersion {
			return repository.ErrConflict
		}
		req.Version = expectedVersion + 1
		st.reopens[req.ID] = *req
		return nil
	})
}

type memActivity struct{ v *memView }

func (r memActivity) Append(_ context.Context, e *domain.ActivityEntry) error {
	return r.v.with(func(st *memState) error {
		st.activity = append(st.activity, *e)
		return nil
	})
}

func (r memActivity) ListByTicket(_ context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	var out []domain.ActivityEntry
	err := r.v.with(func(st *memState) error {
		for _, e := range st.activity {
			if e.TicketID == ticketID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

type memNotifications struct{ v *memView }

func (r memNotifications) Insert(_ context.Context, n *domain.Notification) error {
	return r.v.with(func(st *memState) error {
		if r.v.store.notificationErr != nil {
			return r.v.store.notificationErr
		}
		st.notifications = append(st.notifications, *n)
		return nil
	})
}

func (r memNotifications) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.v.with(func(st *memState) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.RecipientID != recipientID || (unreadOnly && n.Read) {
				continue
			}
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r memNotifications) MarkRead(_ context.Context, id, recipientID string) error {
	return r.v.with(func(st *memState) error {
		for i := range st.notifications {
			if st.notifications[i].ID == id && st.notifications[i].RecipientID == recipientID {
				st.notifications[i].Read = true
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

type memUsers struct{ v *memView }

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fixture wires every service against one memStore with a controllable clock.
type fixture struct {
	store      *memStore
	events     *events.Recorder
	notifier   *NotificationService
	status     *StatusService
	assignment *AssignmentService
	reopen     *ReopenService
	sla        *SLAService

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T, tweak ...func(*config.WorkflowConfig)) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), events: &events.Recorder{}, now: baseTime}

	cfg := config.DefaultWorkflow()
	for _, fn := range tweak {
		fn(&cfg)
	}

	dispatcher := events.NewInMemoryDispatcher(nil)
	f.events.Attach(dispatcher)
	f.notifier = NewNotificationService(NotificationDependencies{
		Notifications: f.store.Repos().Notifications,
		Users:         f.store.Repos().Users,
		Dispatcher:    dispatcher,
		Timeout:       cfg.NotificationTimeout,
		Now:           f.clock,
	})
	deps := WorkflowDependencies{
		Store:      f.store,
		Notifier:   f.notifier,
		Dispatcher: dispatcher,
		Tracker:    sla.NewTracker(sla.DefaultPolicy()),
		Workflow:   cfg,
		Now:        f.clock,
	}
	f.status = NewStatusService(deps)
	f.assignment = NewAssignmentService(deps, f.status)
	f.reopen = NewReopenService(deps, f.status)
	f.sla = NewSLAService(deps)

	for _, u := range []domain.User{
		{ID: "cust-1", Name: "Casey", Role: domain.RoleCustomer, Active: true},
		{ID: "cust-2", Name: "Robin", Role: domain.RoleCustomer, Active: true},
		{ID: "agent-a", Name: "Alex", Role: domain.RoleAgent, Active: true},
		{ID: "agent-b", Name: "Blair", Role: domain.RoleAgent, Active: true},
		{ID: "agent-off", Name: "Gone", Role: domain.RoleAgent, Active: false},
		{ID: "admin-1", Name: "Ari", Role: domain.RoleAdmin, Active: true},
	} {
		f.store.putUser(u)
	}
	return f
}

func (f *fixture) openTicket(id string, priority domain.TicketPriority) {
	f.store.putTicket(domain.Ticket{
		ID:           id,
		TicketNumber: "TCK-" + id,
		Title:        "Ticket " + id,
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		RequesterID:  "cust-1",
		CreatedAt:    f.clock(),
		UpdatedAt:    f.clock(),
	})
}

// resolvedTicket seeds a ticket resolved by agent-a.
func (f *fixture) resolvedTicket(t *testing.T, id string) {
	t.Helper()
	f.openTicket(id, domain.TicketPriorityHigh)
	_, err := f.assignment.SelfAssign(context.Background(), id, "agent-a")
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.status.Transition(context.Background(), id, "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "replaced toner"})
	require.NoError(t, err)
}
