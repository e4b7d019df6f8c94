package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type RefundLineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ProcessRefundInput struct {
	PaymentID    string               `json:"payment_id"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     string               `json:"currency,omitempty"`
	Reason       domainx.RefundReason `json:"reason"`
	Status       domainx.RefundStatus `json:"status,omitempty"`
	TicketID     string               `json:"ticket_id,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	Lines        []RefundLineInput    `json:"lines,omitempty"`
	ApprovedByID string               `json:"approved_by_id,omitempty"`
}

type ProcessRefundResult struct {
	Refund  *domainx.Refund  `json:"refund"`
	Payment *domainx.Payment `json:"payment"`
	Order   *domainx.Order   `json:"order,omitempty"`
}

// ProcessRefund records a refund against a payment after the refund rules pass. Approved and
// processed refunds move the payment, and the order when the transition is legal, to refunded
// or partially refunded in the same transaction. When lines are given without an amount the
// amount is the sum of the lines at the price paid; a given amount must equal that sum.
func (s *Service) ProcessRefund(ctx context.Context, in ProcessRefundInput) (*ProcessRefundResult, error) {
	if in.Status == "" {
		in.Status = domainx.RefundPending
	}
	if err := required("payment_id", in.PaymentID); err != nil {
		return nil, err
	}
	if in.Reason == "" || !in.Reason.Valid() {
		return nil, invalid("reason %q is not a valid value", in.Reason)
	}
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}

	if in.TicketID != "" {
		if _, err := s.store.GetTicket(ctx, in.TicketID); err != nil {
			return nil, notFound(err, "ticket", in.TicketID)
		}
	}
	permissions := []string{}
	if in.ApprovedByID != "" {
		emp, err := s.store.GetEmployee(ctx, in.ApprovedByID)
		if err != nil {
			return nil, notFound(err, "employee", in.ApprovedByID)
		}
		permissions = append(permissions, emp.Permissions...)
	}

	now := s.Now()
	var (
		r              *domainx.Refund
		p              *domainx.Payment
		o              *domainx.Order
		res            *ProcessRefundResult
		paymentChanged bool
	)
	// The balance check and the write share one transaction with the payment
	// row locked, so concurrent refunds on a payment are applied one by one.
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storex.Store) error {
		var err error
		p, err = tx.LockPayment(ctx, in.PaymentID)
		if err != nil {
			return notFound(err, "payment", in.PaymentID)
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = p.Currency
		}
		if !strings.EqualFold(currency, p.Currency) {
			return invalid("currency %s does not match payment currency %s", currency, p.Currency)
		}
		o, err = tx.GetOrder(ctx, p.OrderID)
		if err != nil {
			return notFound(err, "order", p.OrderID)
		}

		lines, linesTotal, err := priceRefundLines(o, in.Lines)
		if err != nil {
			return err
		}
		amount := domainx.RoundMoney(in.Amount)
		switch {
		case len(lines) == 0:
		case amount.IsZero():
			amount = linesTotal
		case !amount.Equal(linesTotal):
			return invalid("amount %s does not match the refund lines total %s", amount.StringFixed(2), linesTotal.StringFixed(2))
		}

		existing, err := tx.SearchRefunds(ctx, storex.RefundFilter{PaymentID: p.ID, Limit: storex.MaxLimit})
		if err != nil {
			return err
		}
		refunded := sumRefunds(existing)
		facts := policyx.Facts{
			"amount_cents":         cents(amount),
			"refunded_cents":       cents(refunded),
			"payment_cents":        cents(p.Amount),
			"shipping_cents":       cents(o.Shipping.Cost),
			"reason":               string(in.Reason),
			"status":               string(in.Status),
			"order_age_days":       int64(math.Floor(now.Sub(o.CreatedAt).Hours() / 24)),
			"payment_status":       string(p.Status),
			"approver_permissions": permissions,
		}
		if err := s.rules.Enforce(policyx.OpRefund, facts); err != nil {
			return err
		}

		id := refundID(p.ID, len(existing), amount, currency, in.Reason, in.Status)
		if _, err := tx.GetRefund(ctx, id); err == nil {
			return fmt.Errorf("%w: refund %s already exists", ErrConflict, id)
		} else if !errors.Is(err, storex.ErrNotFound) {
			return err
		}
		r = &domainx.Refund{
			ID:        id,
			PaymentID: p.ID,
			TicketID:  in.TicketID,
			Amount:    amount,
			Currency:  currency,
			Reason:    in.Reason,
			Notes:     in.Notes,
			Status:    in.Status,
			Lines:     lines,
			CreatedAt: now,
		}
		if in.Status == domainx.RefundProcessed {
			r.ProcessedAt = &now
		}
		res = &ProcessRefundResult{Refund: r, Payment: p}
		if err := tx.SaveRefund(ctx, r); err != nil {
			return err
		}
		if in.Status != domainx.RefundApproved && in.Status != domainx.RefundProcessed {
			return nil
		}

		next := domainx.PaymentPartiallyRefunded
		nextOrder := domainx.OrderPartiallyRefunded
		if refunded.Add(amount).GreaterThanOrEqual(p.Amount.Sub(o.Shipping.Cost)) {
			next = domainx.PaymentRefunded
			nextOrder = domainx.OrderRefunded
		}
		if !domainx.CanTransitionPayment(p.Status, next) {
			return fmt.Errorf("%w: payment %s cannot move from %s to %s", ErrInvalidTransition, p.ID, p.Status, next)
		}
		if p.Status != next {
			p.Status = next
			p.ProcessedAt = &now
			paymentChanged = true
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
		}
		if o.Status != nextOrder && domainx.CanTransitionOrder(o.Status, nextOrder) {
			o.Status = nextOrder
			o.UpdatedAt = now
			res.Order = o
			return tx.SaveOrder(ctx, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventx.RefundCreated, r.ID, r)
	if paymentChanged {
		s.publish(ctx, eventx.PaymentStatusChanged, p.ID, p)
	}
	if res.Order != nil {
		s.publish(ctx, eventx.OrderStatusChanged, o.ID, o)
	}
	return res, nil
}

// priceRefundLines prices each line at the unit price captured on the order.
func priceRefundLines(o *domainx.Order, in []RefundLineInput) ([]domainx.RefundLine, decimal.Decimal, error) {
	total := decimal.Zero
	if len(in) == 0 {
		return nil, total, nil
	}
	ordered := make(map[string]domainx.LineItem, len(o.LineItems))
	for _, li := range o.LineItems {
		cur, ok := ordered[li.ProductID]
		if ok {
			li.Qty += cur.Qty
		}
		ordered[li.ProductID] = li
	}
	out := make([]domainx.RefundLine, 0, len(in))
	for i, l := range in {
		li, ok := ordered[l.ProductID]
		if !ok {
			return nil, total, invalid("refund line %d: product %s is not on order %s", i, l.ProductID, o.ID)
		}
		if l.Qty < 1 || l.Qty > li.Qty {
			return nil, total, invalid("refund line %d: qty must be between 1 and %d", i, li.Qty)
		}
		amount := domainx.RoundMoney(li.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
		total = total.Add(amount)
		out = append(out, domainx.RefundLine{ProductID: l.ProductID, Qty: l.Qty, Amount: amount})
	}
	return out, total, nil
}

// sumRefunds adds up every refund that was not denied.
func sumRefunds(refunds []*domainx.Refund) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refunds {
		if r.Status.Counts() {
			total = total.Add(r.Amount)
		}
	}
	return total
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// refundID keys on the payment's refund sequence and the amount written the
// way a float prints, so 25 and 25.00 collide but a second refund does not.
func refundID(paymentID string, seq int, amount decimal.Decimal, currency string, reason domainx.RefundReason, status domainx.RefundStatus) string {
	a := amount.String()
	if !strings.Contains(a, ".") {
		a += ".0"
	}
	return hashID("refund_", paymentID, strconv.Itoa(seq), a, currency, string(reason), string(status))
}

type SearchRefundsInput struct {
	RefundID        string               `json:"refund_id,omitempty"`
	PaymentID       string               `json:"payment_id,omitempty"`
	TicketID        string               `json:"ticket_id,omitempty"`
	Reason          domainx.RefundReason `json:"reason,omitempty"`
	Status          domainx.RefundStatus `json:"status,omitempty"`
	CreatedAfter    *Timestamp           `json:"created_after,omitempty"`
	CreatedBefore   *Timestamp           `json:"created_before,omitempty"`
	ProcessedAfter  *Timestamp           `json:"processed_after,omitempty"`
	ProcessedBefore *Timestamp           `json:"processed_before,omitempty"`
	Limit           int                  `json:"limit,omitempty"`
}

func (s *Service) SearchRefunds(ctx context.Context, in SearchRefundsInput) ([]*domainx.Refund, error) {
	if err := checkEnum("reason", in.Reason); err != nil {
		return nil, err
	}
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	return s.store.SearchRefunds(ctx, storex.RefundFilter{
		ID:        in.RefundID,
		PaymentID: in.PaymentID,
		TicketID:  in.TicketID,
		Reason:    in.Reason,
		Status:    in.Status,
		Created:   timeRange(in.CreatedAfter, in.CreatedBefore),
		Processed: timeRange(in.ProcessedAfter, in.ProcessedBefore),
		Limit:     in.Limit,
	})
}
