package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderPaid, true},
		{OrderPaid, OrderFulfilled, true},
		{OrderFulfilled, OrderPending, false},
		{OrderCancelled, OrderPaid, false},
		{OrderRefunded, OrderRefunded, true},
		{OrderFulfilled, OrderPartiallyRefunded, true},
		{OrderPartiallyRefunded, OrderFulfilled, false},
	}
	for _, tc := range cases {
		if got := CanTransitionOrder(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransitionOrder(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPaymentAndTicketTransitions(t *testing.T) {
	t.Parallel()

	if !CanTransitionPayment(PaymentCaptured, PaymentRefunded) {
		t.Fatal("captured -> refunded must be allowed")
	}
	if CanTransitionPayment(PaymentVoided, PaymentCaptured) {
		t.Fatal("voided is terminal")
	}
	if !CanTransitionTicket(TicketClosed, TicketOpen) {
		t.Fatal("closed tickets can be reopened")
	}
	if CanTransitionTicket(TicketClosed, TicketPendingCustomer) {
		t.Fatal("closed -> pending_customer must be rejected")
	}
}

func TestEnumValidation(t *testing.T) {
	t.Parallel()

	if !RefundReason("defective").Valid() {
		t.Fatal("defective must be a valid refund reason")
	}
	if RefundReason("changed_mind").Valid() {
		t.Fatal("changed_mind must be rejected")
	}
	if !ProductCategory("prebuilt").CompleteSystem() {
		t.Fatal("prebuilt is a complete system")
	}
	if OrderFulfilled.Cancellable() {
		t.Fatal("fulfilled orders cannot be cancelled")
	}
}

func TestOrderSubtotalAndMoneyJSON(t *testing.T) {
	t.Parallel()

	o := Order{LineItems: []LineItem{
		{ProductID: "p1", Qty: 2, UnitPrice: Money("19.995")},
		{ProductID: "p2", Qty: 1, UnitPrice: Money("100")},
	}}
	if got := o.Subtotal(); !got.Equal(decimal.RequireFromString("139.99")) {
		t.Fatalf("Subtotal() = %s, want 139.99", got)
	}

	raw, err := json.Marshal(LineItem{ProductID: "p1", Qty: 1, UnitPrice: Money("9.99")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"product_id":"p1","qty":1,"unit_price":9.99}` {
		t.Fatalf("unexpected json: %s", raw)
	}
}
