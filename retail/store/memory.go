package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

type memTable[T any] struct {
	id   func(*T) string
	rows map[string]*T
}

func newMemTable[T any](id func(*T) string) *memTable[T] {
	return &memTable[T]{id: id, rows: make(map[string]*T)}
}

func (t *memTable[T]) get(id string) (*T, error) {
	v, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := *v
	return &c, nil
}

func (t *memTable[T]) put(v *T) {
	c := *v
	t.rows[t.id(v)] = &c
}

func (t *memTable[T]) search(match func(*T) bool, less func(a, b *T) bool, limit int) []*T {
	out := make([]*T, 0)
	for _, v := range t.rows {
		if match(v) {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if n := ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out
}

func (t *memTable[T]) snapshot() map[string]*T {
	cp := make(map[string]*T, len(t.rows))
	for k, v := range t.rows {
		cp[k] = v
	}
	return cp
}

func newestFirst(aAt, bAt time.Time, aID, bID string) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return aID < bID
}

func byName(aName, bName, aID, bID string) bool {
	if aName != bName {
		return aName < bName
	}
	return aID < bID
}

// MemoryStore keeps every table in maps guarded by a single RWMutex.
// Returned rows are copies.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	customers   *memTable[domainx.Customer]
	products    *memTable[domainx.Product]
	orders      *memTable[domainx.Order]
	payments    *memTable[domainx.Payment]
	shipments   *memTable[domainx.Shipment]
	refunds     *memTable[domainx.Refund]
	tickets     *memTable[domainx.SupportTicket]
	resolutions *memTable[domainx.Resolution]
	escalations *memTable[domainx.Escalation]
	builds      *memTable[domainx.Build]
	employees   *memTable[domainx.Employee]
	articles    *memTable[domainx.KnowledgeBaseArticle]
	claims      *memTable[domainx.WarrantyClaim]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:   newMemTable(func(v *domainx.Customer) string { return v.ID }),
		products:    newMemTable(func(v *domainx.Product) string { return v.ID }),
		orders:      newMemTable(func(v *domainx.Order) string { return v.ID }),
		payments:    newMemTable(func(v *domainx.Payment) string { return v.ID }),
		shipments:   newMemTable(func(v *domainx.Shipment) string { return v.ID }),
		refunds:     newMemTable(func(v *domainx.Refund) string { return v.ID }),
		tickets:     newMemTable(func(v *domainx.SupportTicket) string { return v.ID }),
		resolutions: newMemTable(func(v *domainx.Resolution) string { return v.ID }),
		escalations: newMemTable(func(v *domainx.Escalation) string { return v.ID }),
		builds:      newMemTable(func(v *domainx.Build) string { return v.ID }),
		employees:   newMemTable(func(v *domainx.Employee) string { return v.ID }),
		articles:    newMemTable(func(v *domainx.KnowledgeBaseArticle) string { return v.ID }),
		claims:      newMemTable(func(v *domainx.WarrantyClaim) string { return v.ID }),
	}
}

// RunInTx serialises transactions and restores every table if fn fails.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	restore := s.snapshot()
	s.mu.RUnlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		restore()
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() func() {
	customers, products, orders := s.customers.snapshot(), s.products.snapshot(), s.orders.snapshot()
	payments, shipments, refunds := s.payments.snapshot(), s.shipments.snapshot(), s.refunds.snapshot()
	tickets, resolutions, escalations := s.tickets.snapshot(), s.resolutions.snapshot(), s.escalations.snapshot()
	builds, employees, articles, claims := s.builds.snapshot(), s.employees.snapshot(), s.articles.snapshot(), s.claims.snapshot()
	return func() {
		s.customers.rows, s.products.rows, s.orders.rows = customers, products, orders
		s.payments.rows, s.shipments.rows, s.refunds.rows = payments, shipments, refunds
		s.tickets.rows, s.resolutions.rows, s.escalations.rows = tickets, resolutions, escalations
		s.builds.rows, s.employees.rows, s.articles.rows, s.claims.rows = builds, employees, articles, claims
	}
}

func (s *MemoryStore) GetCustomer(_ context.Context, id string) (*domainx.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers.get(id)
}

func (s *MemoryStore) SearchCustomers(_ context.Context, f CustomerFilter) ([]*domainx.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers.search(f.match, func(a, b *domainx.Customer) bool {
		return byName(a.Name, b.Name, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*domainx.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.get(id)
}

// GetProducts returns the products that exist, in the order requested. Missing ids are skipped.
func (s *MemoryStore) GetProducts(_ context.Context, ids []string) ([]*domainx.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainx.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, err := s.products.get(id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) SearchProducts(_ context.Context, f ProductFilter) ([]*domainx.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.search(f.match, func(a, b *domainx.Product) bool {
		return byName(a.Name, b.Name, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*domainx.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.get(id)
}

func (s *MemoryStore) SearchOrders(_ context.Context, f OrderFilter) ([]*domainx.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.search(f.match, func(a, b *domainx.Order) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, o *domainx.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders.put(o)
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id string) (*domainx.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments.get(id)
}

// LockPayment is a plain read; RunInTx already runs one transaction at a time.
func (s *MemoryStore) LockPayment(ctx context.Context, id string) (*domainx.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *MemoryStore) SearchPayments(_ context.Context, f PaymentFilter) ([]*domainx.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments.search(f.match, func(a, b *domainx.Payment) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SavePayment(_ context.Context, p *domainx.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments.put(p)
	return nil
}

func (s *MemoryStore) SearchShipments(_ context.Context, f ShipmentFilter) ([]*domainx.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shipments.search(f.match, func(a, b *domainx.Shipment) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) GetRefund(_ context.Context, id string) (*domainx.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refunds.get(id)
}

func (s *MemoryStore) SearchRefunds(_ context.Context, f RefundFilter) ([]*domainx.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refunds.search(f.match, func(a, b *domainx.Refund) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveRefund(_ context.Context, r *domainx.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds.put(r)
	return nil
}

func (s *MemoryStore) GetTicket(_ context.Context, id string) (*domainx.SupportTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets.get(id)
}

func (s *MemoryStore) SearchTickets(_ context.Context, f TicketFilter) ([]*domainx.SupportTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets.search(f.match, func(a, b *domainx.SupportTicket) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveTicket(_ context.Context, t *domainx.SupportTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets.put(t)
	return nil
}

func (s *MemoryStore) SearchResolutions(_ context.Context, f ResolutionFilter) ([]*domainx.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolutions.search(f.match, func(a, b *domainx.Resolution) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveResolution(_ context.Context, r *domainx.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions.put(r)
	return nil
}

func (s *MemoryStore) SearchEscalations(_ context.Context, f EscalationFilter) ([]*domainx.Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escalations.search(f.match, func(a, b *domainx.Escalation) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveEscalation(_ context.Context, e *domainx.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations.put(e)
	return nil
}

func (s *MemoryStore) GetBuild(_ context.Context, id string) (*domainx.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builds.get(id)
}

func (s *MemoryStore) SearchBuilds(_ context.Context, f BuildFilter) ([]*domainx.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builds.search(f.match, func(a, b *domainx.Build) bool {
		return byName(a.Name, b.Name, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveBuild(_ context.Context, b *domainx.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds.put(b)
	return nil
}

func (s *MemoryStore) GetEmployee(_ context.Context, id string) (*domainx.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.employees.get(id)
}

func (s *MemoryStore) SearchEmployees(_ context.Context, f EmployeeFilter) ([]*domainx.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.employees.search(f.match, func(a, b *domainx.Employee) bool {
		return byName(a.Name, b.Name, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SearchKnowledgeBase(_ context.Context, f KnowledgeBaseFilter) ([]*domainx.KnowledgeBaseArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.articles.search(f.match, func(a, b *domainx.KnowledgeBaseArticle) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SearchWarrantyClaims(_ context.Context, f WarrantyClaimFilter) ([]*domainx.WarrantyClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims.search(f.match, func(a, b *domainx.WarrantyClaim) bool {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	}, f.Limit), nil
}

func (s *MemoryStore) SaveWarrantyClaim(_ context.Context, c *domainx.WarrantyClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims.put(c)
	return nil
}

// Seed loads a fixture, replacing rows that share an id.
func (s *MemoryStore) Seed(_ context.Context, fx *Fixture) error {
	if fx == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	putAll(s.customers, fx.Customers)
	putAll(s.employees, fx.Employees)
	putAll(s.products, fx.Products)
	putAll(s.builds, fx.Builds)
	putAll(s.orders, fx.Orders)
	putAll(s.payments, fx.Payments)
	putAll(s.shipments, fx.Shipments)
	putAll(s.tickets, fx.Tickets)
	putAll(s.refunds, fx.Refunds)
	putAll(s.resolutions, fx.Resolutions)
	putAll(s.escalations, fx.Escalations)
	putAll(s.articles, fx.KnowledgeBase)
	putAll(s.claims, fx.WarrantyClaims)
	return nil
}

func putAll[T any](t *memTable[T], rows []*T) {
	for _, r := range rows {
		if r != nil {
			t.put(r)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
