package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

type Config struct {
	DSN             string        `split_words:"true" required:"true"`
	MaxOpenConns    int           `split_words:"true" default:"10"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	DialTimeout     time.Duration `split_words:"true" default:"5s"`
}

// Open connects to Postgres through pgdriver and wraps the pool with the bun pg dialect.
func Open(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// PostgresStore implements Store on bun. Inside RunInTx the same type wraps the bun.Tx.
type PostgresStore struct {
	db   bun.IDB
	root *bun.DB
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db, root: db}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, inTx := s.db.(bun.Tx); inTx {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &PostgresStore{db: tx, root: s.root})
	})
}

var indexes = []struct {
	model  any
	name   string
	column string
}{
	{(*domainx.Order)(nil), "orders_customer_id_idx", "customer_id"},
	{(*domainx.Payment)(nil), "payments_order_id_idx", "order_id"},
	{(*domainx.Shipment)(nil), "shipments_order_id_idx", "order_id"},
	{(*domainx.Refund)(nil), "refunds_payment_id_idx", "payment_id"},
	{(*domainx.SupportTicket)(nil), "support_tickets_customer_id_idx", "customer_id"},
	{(*domainx.Resolution)(nil), "resolutions_ticket_id_idx", "ticket_id"},
	{(*domainx.Escalation)(nil), "escalations_ticket_id_idx", "ticket_id"},
	{(*domainx.WarrantyClaim)(nil), "warranty_claims_product_id_idx", "product_id"},
}

// Migrate creates every table and lookup index if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, model := range domainx.Models() {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range indexes {
		if _, err := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.column).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	log.Info().Int("tables", len(domainx.Models())).Msg("store: migration complete")
	return nil
}

func getByID[T any](ctx context.Context, db bun.IDB, id string) (*T, error) {
	row := new(T)
	if err := db.NewSelect().Model(row).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return row, nil
}

func selectRows[T any](ctx context.Context, db bun.IDB, apply func(*bun.SelectQuery) *bun.SelectQuery, limit int, order ...string) ([]*T, error) {
	rows := make([]*T, 0)
	q := db.NewSelect().Model(&rows)
	q = apply(q)
	if err := q.Order(order...).Limit(ClampLimit(limit)).Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func upsert[T any](ctx context.Context, db bun.IDB, row *T) error {
	_, err := db.NewInsert().Model(row).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

var (
	newestFirstOrder = []string{"created_at DESC", "id ASC"}
	byNameOrder      = []string{"name ASC", "id ASC"}
)

func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*domainx.Customer, error) {
	return getByID[domainx.Customer](ctx, s.db, id)
}

func (s *PostgresStore) SearchCustomers(ctx context.Context, f CustomerFilter) ([]*domainx.Customer, error) {
	return selectRows[domainx.Customer](ctx, s.db, f.apply, f.Limit, byNameOrder...)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*domainx.Product, error) {
	return getByID[domainx.Product](ctx, s.db, id)
}

// GetProducts keeps the requested order and skips unknown ids.
func (s *PostgresStore) GetProducts(ctx context.Context, ids []string) ([]*domainx.Product, error) {
	if len(ids) == 0 {
		return []*domainx.Product{}, nil
	}
	var rows []*domainx.Product
	if err := s.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	byID := make(map[string]*domainx.Product, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]*domainx.Product, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *PostgresStore) SearchProducts(ctx context.Context, f ProductFilter) ([]*domainx.Product, error) {
	return selectRows[domainx.Product](ctx, s.db, f.apply, f.Limit, byNameOrder...)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*domainx.Order, error) {
	return getByID[domainx.Order](ctx, s.db, id)
}

func (s *PostgresStore) SearchOrders(ctx context.Context, f OrderFilter) ([]*domainx.Order, error) {
	return selectRows[domainx.Order](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o *domainx.Order) error {
	return upsert(ctx, s.db, o)
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*domainx.Payment, error) {
	return getByID[domainx.Payment](ctx, s.db, id)
}

// LockPayment takes a row lock with SELECT ... FOR UPDATE; outside a
// transaction it is a plain read.
func (s *PostgresStore) LockPayment(ctx context.Context, id string) (*domainx.Payment, error) {
	if _, inTx := s.db.(bun.Tx); !inTx {
		return s.GetPayment(ctx, id)
	}
	row := new(domainx.Payment)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).For("UPDATE").Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return row, nil
}

func (s *PostgresStore) SearchPayments(ctx context.Context, f PaymentFilter) ([]*domainx.Payment, error) {
	return selectRows[domainx.Payment](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SavePayment(ctx context.Context, p *domainx.Payment) error {
	return upsert(ctx, s.db, p)
}

func (s *PostgresStore) SearchShipments(ctx context.Context, f ShipmentFilter) ([]*domainx.Shipment, error) {
	return selectRows[domainx.Shipment](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) GetRefund(ctx context.Context, id string) (*domainx.Refund, error) {
	return getByID[domainx.Refund](ctx, s.db, id)
}

func (s *PostgresStore) SearchRefunds(ctx context.Context, f RefundFilter) ([]*domainx.Refund, error) {
	return selectRows[domainx.Refund](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveRefund(ctx context.Context, r *domainx.Refund) error {
	return upsert(ctx, s.db, r)
}

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*domainx.SupportTicket, error) {
	return getByID[domainx.SupportTicket](ctx, s.db, id)
}

func (s *PostgresStore) SearchTickets(ctx context.Context, f TicketFilter) ([]*domainx.SupportTicket, error) {
	return selectRows[domainx.SupportTicket](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveTicket(ctx context.Context, t *domainx.SupportTicket) error {
	return upsert(ctx, s.db, t)
}

func (s *PostgresStore) SearchResolutions(ctx context.Context, f ResolutionFilter) ([]*domainx.Resolution, error) {
	return selectRows[domainx.Resolution](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveResolution(ctx context.Context, r *domainx.Resolution) error {
	return upsert(ctx, s.db, r)
}

func (s *PostgresStore) SearchEscalations(ctx context.Context, f EscalationFilter) ([]*domainx.Escalation, error) {
	return selectRows[domainx.Escalation](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveEscalation(ctx context.Context, e *domainx.Escalation) error {
	return upsert(ctx, s.db, e)
}

func (s *PostgresStore) GetBuild(ctx context.Context, id string) (*domainx.Build, error) {
	return getByID[domainx.Build](ctx, s.db, id)
}

func (s *PostgresStore) SearchBuilds(ctx context.Context, f BuildFilter) ([]*domainx.Build, error) {
	return selectRows[domainx.Build](ctx, s.db, f.apply, f.Limit, byNameOrder...)
}

func (s *PostgresStore) SaveBuild(ctx context.Context, b *domainx.Build) error {
	return upsert(ctx, s.db, b)
}

func (s *PostgresStore) GetEmployee(ctx context.Context, id string) (*domainx.Employee, error) {
	return getByID[domainx.Employee](ctx, s.db, id)
}

func (s *PostgresStore) SearchEmployees(ctx context.Context, f EmployeeFilter) ([]*domainx.Employee, error) {
	return selectRows[domainx.Employee](ctx, s.db, f.apply, f.Limit, byNameOrder...)
}

func (s *PostgresStore) SearchKnowledgeBase(ctx context.Context, f KnowledgeBaseFilter) ([]*domainx.KnowledgeBaseArticle, error) {
	return selectRows[domainx.KnowledgeBaseArticle](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SearchWarrantyClaims(ctx context.Context, f WarrantyClaimFilter) ([]*domainx.WarrantyClaim, error) {
	return selectRows[domainx.WarrantyClaim](ctx, s.db, f.apply, f.Limit, newestFirstOrder...)
}

func (s *PostgresStore) SaveWarrantyClaim(ctx context.Context, c *domainx.WarrantyClaim) error {
	return upsert(ctx, s.db, c)
}

// Seed bulk inserts a fixture in one transaction. Existing ids are left untouched.
func (s *PostgresStore) Seed(ctx context.Context, fx *Fixture) error {
	if fx == nil {
		return nil
	}
	return s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		db := tx.(*PostgresStore).db
		for _, rows := range fx.tables() {
			if rows.len == 0 {
				continue
			}
			if _, err := db.NewInsert().Model(rows.model).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
				return fmt.Errorf("seed %s: %w", rows.name, err)
			}
			log.Debug().Str("table", rows.name).Int("rows", rows.len).Msg("store: seeded")
		}
		return nil
	})
}

var _ Store = (*PostgresStore)(nil)
