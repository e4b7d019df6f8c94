package service

import (
	"context"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

const (
	// Estimated lifetime value is net revenue scaled by this retention factor.
	retentionFactor = "1.5"
	daysPerMonth    = 30
)

var (
	highValueRevenue   = decimal.NewFromInt(5000)
	mediumValueRevenue = decimal.NewFromInt(1000)
)

type CustomerSegment string

const (
	SegmentHighValueLowMaintenance  CustomerSegment = "high_value_low_maintenance"
	SegmentHighValueHighMaintenance CustomerSegment = "high_value_high_maintenance"
	SegmentMediumValue              CustomerSegment = "medium_value"
	SegmentFrequentBuyer            CustomerSegment = "frequent_buyer"
	SegmentHighSupportNeeds         CustomerSegment = "high_support_needs"
	SegmentNewOrLowEngagement       CustomerSegment = "new_or_low_engagement"
)

type ValueMetrics struct {
	TotalOrders            int             `json:"total_orders"`
	GrossRevenue           decimal.Decimal `json:"gross_revenue"`
	TotalRefunded          decimal.Decimal `json:"total_refunded"`
	NetRevenue             decimal.Decimal `json:"net_revenue"`
	RefundCount            int             `json:"refund_count"`
	TotalPaid              decimal.Decimal `json:"total_paid"`
	AverageOrderValue      decimal.Decimal `json:"average_order_value"`
	NetAverageOrderValue   decimal.Decimal `json:"net_average_order_value"`
	OrdersPerMonth         decimal.Decimal `json:"orders_per_month"`
	EstimatedLifetimeValue decimal.Decimal `json:"estimated_lifetime_value"`
}

type SupportMetrics struct {
	TotalTickets    int `json:"total_tickets"`
	OpenTickets     int `json:"open_tickets"`
	ResolvedTickets int `json:"resolved_tickets"`
}

type CustomerValue struct {
	CustomerID     string                      `json:"customer_id"`
	CustomerName   string                      `json:"customer_name"`
	LoyaltyTier    domainx.LoyaltyTier         `json:"loyalty_tier"`
	Metrics        ValueMetrics                `json:"metrics"`
	OrderBreakdown map[domainx.OrderStatus]int `json:"order_breakdown"`
	PaymentMethods map[string]int              `json:"payment_methods"`
	Support        SupportMetrics              `json:"support"`
	Segment        CustomerSegment             `json:"customer_segment"`
}

type AnalyzeCustomerValueInput struct {
	CustomerID string `json:"customer_id"`
}

// AnalyzeCustomerValue summarises what a customer has bought, paid, been
// refunded and asked support for. Revenue is the line item total without
// shipping. Only approved or processed refunds reduce net revenue. Orders per
// month count from the first order to now, over at least one month.
func (s *Service) AnalyzeCustomerValue(ctx context.Context, in AnalyzeCustomerValueInput) (*CustomerValue, error) {
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	c, err := s.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}
	out := &CustomerValue{
		CustomerID:     c.ID,
		CustomerName:   c.Name,
		LoyaltyTier:    c.LoyaltyTier,
		OrderBreakdown: map[domainx.OrderStatus]int{},
		PaymentMethods: map[string]int{},
	}

	orders, err := s.store.SearchOrders(ctx, storex.OrderFilter{CustomerID: c.ID, Limit: storex.MaxLimit})
	if err != nil {
		return nil, err
	}
	m := &out.Metrics
	m.TotalOrders = len(orders)
	gross, paid, refunded := decimal.Zero, decimal.Zero, decimal.Zero
	first := s.Now()
	for _, o := range orders {
		gross = gross.Add(o.Subtotal())
		out.OrderBreakdown[o.Status]++
		if o.CreatedAt.Before(first) {
			first = o.CreatedAt
		}

		payments, err := s.store.SearchPayments(ctx, storex.PaymentFilter{OrderID: o.ID, Limit: storex.MaxLimit})
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			paid = paid.Add(p.Amount)
			out.PaymentMethods[p.Method]++

			refunds, err := s.store.SearchRefunds(ctx, storex.RefundFilter{PaymentID: p.ID, Limit: storex.MaxLimit})
			if err != nil {
				return nil, err
			}
			for _, r := range refunds {
				if r.Status == domainx.RefundApproved || r.Status == domainx.RefundProcessed {
					refunded = refunded.Add(r.Amount)
					m.RefundCount++
				}
			}
		}
	}

	net := gross.Sub(refunded)
	m.GrossRevenue = domainx.RoundMoney(gross)
	m.TotalRefunded = domainx.RoundMoney(refunded)
	m.NetRevenue = domainx.RoundMoney(net)
	m.TotalPaid = domainx.RoundMoney(paid)
	m.AverageOrderValue, m.NetAverageOrderValue, m.OrdersPerMonth = decimal.Zero, decimal.Zero, decimal.Zero
	if len(orders) > 0 {
		n := decimal.NewFromInt(int64(len(orders)))
		m.AverageOrderValue = domainx.RoundMoney(gross.Div(n))
		m.NetAverageOrderValue = domainx.RoundMoney(net.Div(n))
		months := decimal.NewFromFloat(s.Now().Sub(first).Hours() / 24 / daysPerMonth)
		if months.LessThan(decimal.NewFromInt(1)) {
			months = decimal.NewFromInt(1)
		}
		m.OrdersPerMonth = n.Div(months).Round(2)
	}
	m.EstimatedLifetimeValue = domainx.RoundMoney(net.Mul(decimal.RequireFromString(retentionFactor)))

	tickets, err := s.store.SearchTickets(ctx, storex.TicketFilter{CustomerID: c.ID, Limit: storex.MaxLimit})
	if err != nil {
		return nil, err
	}
	out.Support.TotalTickets = len(tickets)
	for _, t := range tickets {
		if t.Status.Finished() {
			out.Support.ResolvedTickets++
		} else {
			out.Support.OpenTickets++
		}
	}
	out.Segment = segmentFor(net, len(orders), len(tickets))
	return out, nil
}

func segmentFor(net decimal.Decimal, orders, tickets int) CustomerSegment {
	switch {
	case net.GreaterThan(highValueRevenue) && tickets < 2:
		return SegmentHighValueLowMaintenance
	case net.GreaterThan(highValueRevenue):
		return SegmentHighValueHighMaintenance
	case net.GreaterThan(mediumValueRevenue):
		return SegmentMediumValue
	case orders > 5:
		return SegmentFrequentBuyer
	case tickets > 3:
		return SegmentHighSupportNeeds
	}
	return SegmentNewOrLowEngagement
}

// AttentionReport lists the records staff should look at. Total counts
// distinct records, so urgent tickets are not counted twice.
type AttentionReport struct {
	OpenTickets        []*domainx.SupportTicket `json:"open_tickets"`
	UrgentTickets      []*domainx.SupportTicket `json:"urgent_tickets"`
	PendingRefunds     []*domainx.Refund        `json:"pending_refunds"`
	FailedPayments     []*domainx.Payment       `json:"failed_payments"`
	PendingEscalations []*domainx.Escalation    `json:"pending_escalations"`
	CancelledOrders    []*domainx.Order         `json:"cancelled_orders"`
	Summary            map[string]int           `json:"summary"`
	Total              int                      `json:"total_items_needing_attention"`
}

// GetEntitiesNeedingAttention builds the staff work queue: unfinished tickets
// (high priority ones again as urgent), pending refunds, failed payments,
// unresolved escalations and cancelled orders. Each list holds at most
// storex.MaxLimit rows per query.
func (s *Service) GetEntitiesNeedingAttention(ctx context.Context) (*AttentionReport, error) {
	out := &AttentionReport{
		OpenTickets:   []*domainx.SupportTicket{},
		UrgentTickets: []*domainx.SupportTicket{},
	}
	for _, status := range []domainx.TicketStatus{domainx.TicketNew, domainx.TicketOpen, domainx.TicketPendingCustomer} {
		tickets, err := s.store.SearchTickets(ctx, storex.TicketFilter{Status: status, Limit: storex.MaxLimit})
		if err != nil {
			return nil, err
		}
		for _, t := range tickets {
			out.OpenTickets = append(out.OpenTickets, t)
			if t.Priority == domainx.PriorityHigh {
				out.UrgentTickets = append(out.UrgentTickets, t)
			}
		}
	}

	var err error
	if out.PendingRefunds, err = s.store.SearchRefunds(ctx, storex.RefundFilter{Status: domainx.RefundPending, Limit: storex.MaxLimit}); err != nil {
		return nil, err
	}
	if out.FailedPayments, err = s.store.SearchPayments(ctx, storex.PaymentFilter{Status: domainx.PaymentFailed, Limit: storex.MaxLimit}); err != nil {
		return nil, err
	}
	if out.PendingEscalations, err = s.store.SearchEscalations(ctx, storex.EscalationFilter{Unresolved: true, Limit: storex.MaxLimit}); err != nil {
		return nil, err
	}
	if out.CancelledOrders, err = s.store.SearchOrders(ctx, storex.OrderFilter{Status: domainx.OrderCancelled, Limit: storex.MaxLimit}); err != nil {
		return nil, err
	}

	out.Summary = map[string]int{
		"open_tickets":        len(out.OpenTickets),
		"urgent_tickets":      len(out.UrgentTickets),
		"pending_refunds":     len(out.PendingRefunds),
		"failed_payments":     len(out.FailedPayments),
		"pending_escalations": len(out.PendingEscalations),
		"cancelled_orders":    len(out.CancelledOrders),
	}
	out.Total = len(out.OpenTickets) + len(out.PendingRefunds) + len(out.FailedPayments) +
		len(out.PendingEscalations) + len(out.CancelledOrders)
	return out, nil
}
