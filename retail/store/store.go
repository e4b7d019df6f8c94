package store

import (
	"context"
	"errors"
	"strings"
	"time"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: closed")
)

// Store is the data-access layer over the retail entities. Save methods upsert by id.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetCustomer(ctx context.Context, id string) (*domainx.Customer, error)
	SearchCustomers(ctx context.Context, f CustomerFilter) ([]*domainx.Customer, error)

	GetProduct(ctx context.Context, id string) (*domainx.Product, error)
	GetProducts(ctx context.Context, ids []string) ([]*domainx.Product, error)
	SearchProducts(ctx context.Context, f ProductFilter) ([]*domainx.Product, error)

	GetOrder(ctx context.Context, id string) (*domainx.Order, error)
	SearchOrders(ctx context.Context, f OrderFilter) ([]*domainx.Order, error)
	SaveOrder(ctx context.Context, o *domainx.Order) error

	GetPayment(ctx context.Context, id string) (*domainx.Payment, error)
	// LockPayment reads a payment and holds it until the surrounding RunInTx ends.
	LockPayment(ctx context.Context, id string) (*domainx.Payment, error)
	SearchPayments(ctx context.Context, f PaymentFilter) ([]*domainx.Payment, error)
	SavePayment(ctx context.Context, p *domainx.Payment) error

	SearchShipments(ctx context.Context, f ShipmentFilter) ([]*domainx.Shipment, error)

	GetRefund(ctx context.Context, id string) (*domainx.Refund, error)
	SearchRefunds(ctx context.Context, f RefundFilter) ([]*domainx.Refund, error)
	SaveRefund(ctx context.Context, r *domainx.Refund) error

	GetTicket(ctx context.Context, id string) (*domainx.SupportTicket, error)
	SearchTickets(ctx context.Context, f TicketFilter) ([]*domainx.SupportTicket, error)
	SaveTicket(ctx context.Context, t *domainx.SupportTicket) error

	SearchResolutions(ctx context.Context, f ResolutionFilter) ([]*domainx.Resolution, error)
	SaveResolution(ctx context.Context, r *domainx.Resolution) error

	SearchEscalations(ctx context.Context, f EscalationFilter) ([]*domainx.Escalation, error)
	SaveEscalation(ctx context.Context, e *domainx.Escalation) error

	GetBuild(ctx context.Context, id string) (*domainx.Build, error)
	SearchBuilds(ctx context.Context, f BuildFilter) ([]*domainx.Build, error)
	SaveBuild(ctx context.Context, b *domainx.Build) error

	GetEmployee(ctx context.Context, id string) (*domainx.Employee, error)
	SearchEmployees(ctx context.Context, f EmployeeFilter) ([]*domainx.Employee, error)

	SearchKnowledgeBase(ctx context.Context, f KnowledgeBaseFilter) ([]*domainx.KnowledgeBaseArticle, error)

	SearchWarrantyClaims(ctx context.Context, f WarrantyClaimFilter) ([]*domainx.WarrantyClaim, error)
	SaveWarrantyClaim(ctx context.Context, c *domainx.WarrantyClaim) error

	Seed(ctx context.Context, fx *Fixture) error
}

// ClampLimit applies the default page size and the hard maximum.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// TimeRange bounds a timestamp column. Both ends are inclusive and optional.
type TimeRange struct {
	After  *time.Time
	Before *time.Time
}

func (r TimeRange) IsZero() bool { return r.After == nil && r.Before == nil }

func (r TimeRange) Contains(t time.Time) bool {
	if r.After != nil && t.Before(*r.After) {
		return false
	}
	if r.Before != nil && t.After(*r.Before) {
		return false
	}
	return true
}

// ContainsPtr treats a nil timestamp as outside any non-empty range.
func (r TimeRange) ContainsPtr(t *time.Time) bool {
	if t == nil {
		return r.IsZero()
	}
	return r.Contains(*t)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
