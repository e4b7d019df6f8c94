package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

func TestAnalyzeCustomerValue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	v, err := h.svc.AnalyzeCustomerValue(context.Background(), AnalyzeCustomerValueInput{CustomerID: "cust_1003"})
	if err != nil {
		t.Fatalf("AnalyzeCustomerValue() error = %v", err)
	}

	m := v.Metrics
	// ord_4004 2199.00 + ord_4005 2 x 169.99, less the processed 25.00 goodwill refund.
	checks := []struct {
		name string
		got  string
		want string
	}{
		{"gross_revenue", m.GrossRevenue.String(), "2538.98"},
		{"total_refunded", m.TotalRefunded.String(), "25"},
		{"net_revenue", m.NetRevenue.String(), "2513.98"},
		{"total_paid", m.TotalPaid.String(), "2588.96"},
		{"average_order_value", m.AverageOrderValue.String(), "1269.49"},
		{"net_average_order_value", m.NetAverageOrderValue.String(), "1256.99"},
		{"estimated_lifetime_value", m.EstimatedLifetimeValue.String(), "3770.97"},
		{"orders_per_month", m.OrdersPerMonth.String(), "2"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if m.TotalOrders != 2 || m.RefundCount != 1 {
		t.Fatalf("orders=%d refunds=%d", m.TotalOrders, m.RefundCount)
	}
	if v.OrderBreakdown[domainx.OrderFulfilled] != 1 || v.OrderBreakdown[domainx.OrderPending] != 1 {
		t.Fatalf("order breakdown = %v", v.OrderBreakdown)
	}
	if v.PaymentMethods["card"] != 2 {
		t.Fatalf("payment methods = %v", v.PaymentMethods)
	}
	if v.Support.TotalTickets != 1 || v.Support.ResolvedTickets != 1 || v.Support.OpenTickets != 0 {
		t.Fatalf("support = %+v", v.Support)
	}
	if v.Segment != SegmentMediumValue || v.LoyaltyTier != domainx.TierPlatinum {
		t.Fatalf("segment=%s tier=%s", v.Segment, v.LoyaltyTier)
	}
}

func TestAnalyzeCustomerValueIgnoresDeniedRefunds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	denied := &domainx.Refund{
		ID: "refund_denied", PaymentID: "pay_5004", Amount: domainx.Money("500"), Currency: "USD",
		Reason: domainx.ReasonOther, Status: domainx.RefundDenied, CreatedAt: fixedNow,
	}
	if err := h.store.SaveRefund(ctx, denied); err != nil {
		t.Fatalf("SaveRefund() error = %v", err)
	}

	v, err := h.svc.AnalyzeCustomerValue(ctx, AnalyzeCustomerValueInput{CustomerID: "cust_1003"})
	if err != nil {
		t.Fatalf("AnalyzeCustomerValue() error = %v", err)
	}
	if !v.Metrics.TotalRefunded.Equal(domainx.Money("25")) || v.Metrics.RefundCount != 1 {
		t.Fatalf("denied refund counted: refunded=%s count=%d", v.Metrics.TotalRefunded, v.Metrics.RefundCount)
	}

	if _, err := h.svc.AnalyzeCustomerValue(ctx, AnalyzeCustomerValueInput{CustomerID: "cust_9999"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown customer error = %v", err)
	}
	if _, err := h.svc.AnalyzeCustomerValue(ctx, AnalyzeCustomerValueInput{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing customer error = %v", err)
	}
}

func TestSegmentFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		net     string
		orders  int
		tickets int
		want    CustomerSegment
	}{
		{"6000", 3, 1, SegmentHighValueLowMaintenance},
		{"6000", 3, 2, SegmentHighValueHighMaintenance},
		{"5000", 3, 0, SegmentMediumValue},
		{"900", 6, 0, SegmentFrequentBuyer},
		{"900", 2, 4, SegmentHighSupportNeeds},
		{"0", 0, 0, SegmentNewOrLowEngagement},
	}
	for _, c := range cases {
		if got := segmentFor(domainx.Money(c.net), c.orders, c.tickets); got != c.want {
			t.Fatalf("segmentFor(%s, %d, %d) = %s, want %s", c.net, c.orders, c.tickets, got, c.want)
		}
	}
}

func TestGetEntitiesNeedingAttention(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	r, err := h.svc.GetEntitiesNeedingAttention(ctx)
	if err != nil {
		t.Fatalf("GetEntitiesNeedingAttention() error = %v", err)
	}
	if len(r.OpenTickets) != 2 || len(r.UrgentTickets) != 1 || r.UrgentTickets[0].ID != "tick_7001" {
		t.Fatalf("tickets open=%d urgent=%+v", len(r.OpenTickets), r.UrgentTickets)
	}
	if len(r.PendingEscalations) != 1 || r.PendingEscalations[0].ID != "esc_9501" {
		t.Fatalf("escalations = %+v", r.PendingEscalations)
	}
	if r.Total != 3 || r.Summary["urgent_tickets"] != 1 {
		t.Fatalf("total=%d summary=%v", r.Total, r.Summary)
	}

	failed, _ := h.store.GetPayment(ctx, "pay_5005")
	failed.Status = domainx.PaymentFailed
	if err := h.store.SavePayment(ctx, failed); err != nil {
		t.Fatalf("SavePayment() error = %v", err)
	}
	pending := &domainx.Refund{
		ID: "refund_pending", PaymentID: "pay_5001", Amount: domainx.Money("99.99"), Currency: "USD",
		Reason: domainx.ReasonDefective, Status: domainx.RefundPending, CreatedAt: fixedNow,
	}
	if err := h.store.SaveRefund(ctx, pending); err != nil {
		t.Fatalf("SaveRefund() error = %v", err)
	}
	if _, err := h.svc.CancelOrder(ctx, "ord_4002", "found it cheaper"); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	r, err = h.svc.GetEntitiesNeedingAttention(ctx)
	if err != nil {
		t.Fatalf("GetEntitiesNeedingAttention() error = %v", err)
	}
	if len(r.FailedPayments) != 1 || len(r.PendingRefunds) != 1 || len(r.CancelledOrders) != 1 {
		t.Fatalf("failed=%d pending=%d cancelled=%d", len(r.FailedPayments), len(r.PendingRefunds), len(r.CancelledOrders))
	}
	if r.Total != 6 {
		t.Fatalf("total = %d, want 6", r.Total)
	}
}

func buildComponents() []OrderLineInput {
	return []OrderLineInput{
		{ProductID: "cpu_r7_7800x3d", Qty: 1},
		{ProductID: "mb_b650_tomahawk"},
		{ProductID: "ram_ddr5_6000_32", Qty: 1},
		{ProductID: "ssd_990pro_2tb", Qty: 1},
		{ProductID: "psu_rm850x", Qty: 1},
		{ProductID: "case_lancool216", Qty: 1},
	}
}

func TestCreateAndOrderBuild(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.CreateAndOrderBuild(ctx, CreateAndOrderBuildInput{
		CustomerID:   "cust_1001",
		Name:         "Alice compact AM5",
		Components:   buildComponents(),
		ApprovedByID: "emp_2003",
	})
	if err != nil {
		t.Fatalf("CreateAndOrderBuild() error = %v", err)
	}
	if len(res.Build.ProductIDs) != 6 || res.Order.BuildID != res.Build.ID {
		t.Fatalf("build=%+v order build=%s", res.Build, res.Order.BuildID)
	}
	if res.Order.Status != domainx.OrderPending || len(res.Order.LineItems) != 6 {
		t.Fatalf("order = %+v", res.Order)
	}
	if !res.Compatibility.IsCompatible {
		t.Fatalf("compatibility = %+v", res.Compatibility)
	}
	if _, err := h.store.GetBuild(ctx, res.Build.ID); err != nil {
		t.Fatalf("build not saved: %v", err)
	}
	if _, err := h.store.GetOrder(ctx, res.Order.ID); err != nil {
		t.Fatalf("order not saved: %v", err)
	}
	got := h.events.Types()
	if len(got) != 2 || got[0] != eventx.BuildSaved || got[1] != eventx.OrderCreated {
		t.Fatalf("events = %v", got)
	}
}

func TestCreateAndOrderBuildRejectsIncompleteOrUnapproved(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	partial := buildComponents()[:4]
	_, err := h.svc.CreateAndOrderBuild(ctx, CreateAndOrderBuildInput{
		CustomerID: "cust_1001", Name: "No power", Components: partial, ApprovedByID: "emp_2003",
	})
	if !errors.Is(err, ErrInvalidArgument) || !strings.Contains(err.Error(), "psu, case") {
		t.Fatalf("missing categories error = %v", err)
	}

	mismatch := buildComponents()
	mismatch[0] = OrderLineInput{ProductID: "cpu_i7_14700k", Qty: 1}
	_, err = h.svc.CreateAndOrderBuild(ctx, CreateAndOrderBuildInput{
		CustomerID: "cust_1001", Name: "Wrong socket", Components: mismatch, ApprovedByID: "emp_2003",
	})
	if !errors.Is(err, ErrInvalidArgument) || !strings.Contains(err.Error(), "not compatible") {
		t.Fatalf("incompatible build error = %v", err)
	}

	_, err = h.svc.CreateAndOrderBuild(ctx, CreateAndOrderBuildInput{
		CustomerID: "cust_1001", Name: "Unapproved", Components: buildComponents(),
	})
	if rules := policyRules(t, err); rules[0] != "order.custom_build_approval" {
		t.Fatalf("unexpected rules %v", rules)
	}

	builds, err := h.store.SearchBuilds(ctx, storex.BuildFilter{CustomerID: "cust_1001"})
	if err != nil {
		t.Fatalf("SearchBuilds() error = %v", err)
	}
	if len(builds) != 1 || builds[0].ID != "build_3001" || len(h.events.Types()) != 0 {
		t.Fatalf("rejected requests must not save anything: builds=%d events=%v", len(builds), h.events.Types())
	}
}
