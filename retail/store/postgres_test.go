package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func fragments(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	out := quoted[0]
	for _, q := range quoted[1:] {
		out += ".*" + q
	}
	return out
}

func TestPostgresStoreGetPayment(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 9, 2, 11, 1, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "order_id", "amount", "currency", "method", "status", "failure_reason", "created_at", "processed_at"}).
		AddRow("pay_5002", "ord_4002", "509.98", "USD", "paypal", "captured", nil, created, nil)
	mock.ExpectQuery(fragments(`FROM "payments" AS "payment"`, `WHERE (id = 'pay_5002')`, `LIMIT 1`)).
		WillReturnRows(rows)

	p, err := s.GetPayment(context.Background(), "pay_5002")
	require.NoError(t, err)
	assert.Equal(t, "ord_4002", p.OrderID)
	assert.Equal(t, domainx.PaymentCaptured, p.Status)
	assert.Equal(t, "509.98", p.Amount.StringFixed(2))
	assert.Nil(t, p.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(fragments(`FROM "customers" AS "customer"`, `WHERE (id = 'cust_x')`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetCustomer(context.Background(), "cust_x")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSearchOrdersSQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(fragments(
		`FROM "orders" AS "order"`,
		`(customer_id = 'cust_1002')`,
		`(status = 'backorder')`,
		`ORDER BY created_at DESC, id ASC`,
		`LIMIT 50`,
	)).WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "status"}).
		AddRow("ord_4002", "cust_1002", "backorder"))

	orders, err := s.SearchOrders(context.Background(), OrderFilter{CustomerID: "cust_1002", Status: domainx.OrderBackorder})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ord_4002", orders[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSearchProductsSQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(fragments(
		`FROM "products" AS "product"`,
		`(category = 'gpu')`,
		`name ILIKE '%rtx%'`,
		`(inventory->>'in_stock')::int > 0`,
		`ORDER BY name ASC, id ASC`,
		`LIMIT 200`,
	)).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.SearchProducts(context.Background(), ProductFilter{
		Category:    domainx.CategoryGPU,
		Text:        "rtx",
		InStockOnly: true,
		Limit:       500,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveOrderUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(fragments(`INSERT INTO "orders"`, `ON CONFLICT (id) DO UPDATE`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.SaveOrder(ctx, &domainx.Order{
			ID:         "ord_new",
			CustomerID: "cust_1001",
			Status:     domainx.OrderPending,
			LineItems:  []domainx.LineItem{{ProductID: "psu_rm850x", Qty: 1, UnitPrice: domainx.Money("139.99")}},
			CreatedAt:  time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
			UpdatedAt:  time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRunInTxRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLockPaymentInTx(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(fragments(`FROM "payments" AS "payment"`, `WHERE (id = 'pay_5003')`, `FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "amount", "currency", "status"}).
			AddRow("pay_5003", "ord_4003", "339.98", "USD", "captured"))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Store) error {
		p, err := tx.LockPayment(ctx, "pay_5003")
		if err != nil {
			return err
		}
		assert.Equal(t, "ord_4003", p.OrderID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUnresolvedEscalationsSQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(fragments(
		`FROM "escalations" AS "escalation"`,
		`(resolved_at IS NULL)`,
		`LIMIT 200`,
	)).WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id"}).AddRow("esc_9501", "tick_7001"))

	out, err := s.SearchEscalations(context.Background(), EscalationFilter{Unresolved: true, Limit: MaxLimit})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "esc_9501", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
