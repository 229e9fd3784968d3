package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

func newTestCaches() *cache.Caches {
	return cache.NewCaches(config.CacheConfig{
		PrincipalTTLSeconds:  300,
		CredentialTTLSeconds: 3600,
		QueryTTLSeconds:      60,
	}, nil)
}

type fakePrincipalRepo struct {
	mu         sync.Mutex
	seq        int
	principals map[string]*domain.Principal
}

func newFakePrincipalRepo() *fakePrincipalRepo {
	return &fakePrincipalRepo{principals: make(map[string]*domain.Principal)}
}

func (f *fakePrincipalRepo) add(p domain.Principal) *domain.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		f.seq++
		p.ID = fmt.Sprintf("p-%02d", f.seq)
	}
	stored := p
	f.principals[stored.ID] = &stored
	return &stored
}

func (f *fakePrincipalRepo) Create(_ context.Context, p *domain.Principal) error {
	f.add(*p)
	return nil
}

func (f *fakePrincipalRepo) Update(_ context.Context, p *domain.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.principals[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *p
	f.principals[p.ID] = &stored
	return nil
}

func (f *fakePrincipalRepo) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrincipalRepo) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.principals {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakePrincipalRepo) NextEligibleWorker(_ context.Context) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var eligible []*domain.Principal
	for _, p := range f.principals {
		if p.EligibleForAutoAssign() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, pgx.ErrNoRows
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
			return true
		case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
			return false
		case a.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
			return a.LastAssignedAt.Before(*b.LastAssignedAt)
		default:
			return a.ID < b.ID
		}
	})
	cp := *eligible[0]
	return &cp, nil
}

func (f *fakePrincipalRepo) SetAutoAssign(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.AutoAssignEnabled = enabled
	return nil
}

func (f *fakePrincipalRepo) ListWorkers(_ context.Context) ([]domain.Principal, error) {
	return f.listByRole(domain.RoleWorker, false), nil
}

func (f *fakePrincipalRepo) ListActiveAdmins(_ context.Context) ([]domain.Principal, error) {
	return f.listByRole(domain.RoleAdmin, true), nil
}

func (f *fakePrincipalRepo) listByRole(role domain.Role, activeOnly bool) []domain.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Principal
	for _, p := range f.principals {
		if p.Role != role {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

type claimRecord struct {
	workerID string
	observed *time.Time
}

type fakeTicketRepo struct {
	mu         sync.Mutex
	seq        int
	principals *fakePrincipalRepo
	tickets    map[string]*domain.Ticket
	claims     []claimRecord
	failClaims int
	comments   map[string][]string
}

func newFakeTicketRepo(principals *fakePrincipalRepo) *fakeTicketRepo {
	return &fakeTicketRepo{
		principals: principals,
		tickets:    make(map[string]*domain.Ticket),
		comments:   make(map[string][]string),
	}
}

func (f *fakeTicketRepo) add(t domain.Ticket) *domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		f.seq++
		t.ID = fmt.Sprintf("t-%02d", f.seq)
	}
	if t.Status == "" {
		t.Status = domain.TicketStatusPending
	}
	stored := t
	f.tickets[stored.ID] = &stored
	return &stored
}

func (f *fakeTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	created := f.add(*t)
	t.ID = created.ID
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) UpdateAssignee(_ context.Context, ticketID string, assigneeID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.AssignedPrincipalID = assigneeID
	return nil
}

// AssignWithClaim mirrors the store's conditional single-statement update:
// the claim fires only while the worker row still carries the observed
// timestamp, and ticket plus principal change together or not at all.
func (f *fakeTicketRepo) AssignWithClaim(_ context.Context, ticketID, workerID string, observed *time.Time, assignedAt time.Time) (bool, error) {
	f.principals.mu.Lock()
	defer f.principals.mu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failClaims > 0 {
		f.failClaims--
		return false, nil
	}

	w, ok := f.principals.principals[workerID]
	if !ok || !timesMatch(w.LastAssignedAt, observed) {
		return false, nil
	}
	t, ok := f.tickets[ticketID]
	if !ok {
		return false, nil
	}
	bumped := assignedAt
	w.LastAssignedAt = &bumped
	t.AssignedPrincipalID = &w.ID
	f.claims = append(f.claims, claimRecord{workerID: workerID, observed: observed})
	return true, nil
}

func timesMatch(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (f *fakeTicketRepo) UpdateStatus(_ context.Context, ticketID string, status domain.TicketStatus, resolvedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Status = status
	t.ResolvedAt = resolvedAt
	return nil
}

func (f *fakeTicketRepo) CreateComment(_ context.Context, ticketID, authorID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[ticketID] = append(f.comments[ticketID], body)
	return nil
}

func (f *fakeTicketRepo) CountActiveByAssignee(_ context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range f.tickets {
		if t.AssignedPrincipalID != nil && !t.Status.Terminal() {
			counts[*t.AssignedPrincipalID]++
		}
	}
	return counts, nil
}

type fakeToggleRepo struct {
	mu       sync.Mutex
	seq      int
	requests map[string]*domain.ToggleRequest
}

func newFakeToggleRepo() *fakeToggleRepo {
	return &fakeToggleRepo{requests: make(map[string]*domain.ToggleRequest)}
}

func (f *fakeToggleRepo) Create(_ context.Context, request *domain.ToggleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.PrincipalID == request.PrincipalID && r.Status == domain.ToggleStatusPending {
			return repository.ErrPendingExists
		}
	}
	f.seq++
	request.ID = fmt.Sprintf("tr-%02d", f.seq)
	request.Status = domain.ToggleStatusPending
	request.CreatedAt = time.Now()
	stored := *request
	f.requests[request.ID] = &stored
	return nil
}

func (f *fakeToggleRepo) GetByID(_ context.Context, id string) (*domain.ToggleRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *fakeToggleRepo) ListPending(_ context.Context) ([]domain.ToggleRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.ToggleRequest
	for _, r := range f.requests {
		if r.Status == domain.ToggleStatusPending {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeToggleRepo) Decide(_ context.Context, id string, status domain.ToggleStatus, decidedBy, notes string, decidedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != domain.ToggleStatusPending {
		return false, nil
	}
	r.Status = status
	r.DecidedBy = &decidedBy
	r.AdminNotes = notes
	r.DecidedAt = &decidedAt
	return true, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	seq           int
	notifications []domain.Notification
	failCreate    bool
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return fmt.Errorf("store down")
	}
	f.seq++
	n.ID = fmt.Sprintf("n-%02d", f.seq)
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeNotificationRepo) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Notification
	for _, n := range f.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].RecipientID == recipientID {
			f.notifications[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeNotificationRepo) forRecipient(recipientID string) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			result = append(result, n)
		}
	}
	return result
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

type pushRecord struct {
	principalID string
	role        domain.Role
	eventType   string
}

type fakePusher struct {
	mu        sync.Mutex
	connected map[string]bool
	sends     []pushRecord
	roleSends []pushRecord
}

func newFakePusher(connectedIDs ...string) *fakePusher {
	p := &fakePusher{connected: make(map[string]bool)}
	for _, id := range connectedIDs {
		p.connected[id] = true
	}
	return p
}

func (p *fakePusher) SendToPrincipal(principalID, eventType string, _ any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, pushRecord{principalID: principalID, eventType: eventType})
	return p.connected[principalID]
}

func (p *fakePusher) SendToRole(role domain.Role, eventType string, _ any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roleSends = append(p.roleSends, pushRecord{role: role, eventType: eventType})
	delivered := 0
	for range p.connected {
		delivered++
	}
	return delivered
}
