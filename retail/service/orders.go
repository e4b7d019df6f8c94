package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	"github.com/tanpawarit/corecraft-support/retail/pricing"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type SearchOrdersInput struct {
	OrderID       string              `json:"order_id,omitempty"`
	CustomerID    string              `json:"customer_id,omitempty"`
	Status        domainx.OrderStatus `json:"status,omitempty"`
	BuildID       string              `json:"build_id,omitempty"`
	ProductID     string              `json:"product_id,omitempty"`
	CreatedAfter  *Timestamp          `json:"created_after,omitempty"`
	CreatedBefore *Timestamp          `json:"created_before,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
}

func (s *Service) SearchOrders(ctx context.Context, in SearchOrdersInput) ([]*domainx.Order, error) {
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	return s.store.SearchOrders(ctx, storex.OrderFilter{
		ID:         in.OrderID,
		CustomerID: in.CustomerID,
		Status:     in.Status,
		BuildID:    in.BuildID,
		ProductID:  in.ProductID,
		Created:    timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:      in.Limit,
	})
}

type PaymentSummary struct {
	ID     string                `json:"id"`
	Amount decimal.Decimal       `json:"amount"`
	Method string                `json:"method"`
	Status domainx.PaymentStatus `json:"status"`
}

type ShipmentSummary struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	Status         string `json:"status"`
}

type CustomerSummary struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	LoyaltyTier domainx.LoyaltyTier `json:"loyalty_tier"`
}

type TicketSummary struct {
	ID      string               `json:"id"`
	Subject string               `json:"subject"`
	Status  domainx.TicketStatus `json:"status"`
}

type OrderDetails struct {
	Order    *domainx.Order   `json:"order"`
	Payment  *PaymentSummary  `json:"payment"`
	Shipment *ShipmentSummary `json:"shipment"`
	Customer *CustomerSummary `json:"customer"`
	Tickets  []TicketSummary  `json:"tickets"`
}

// GetOrderDetails joins an order with its latest payment and shipment, the customer and
// the order's tickets. createdBefore, when set, hides related rows created after it.
func (s *Service) GetOrderDetails(ctx context.Context, orderID string, createdBefore *Timestamp) (*OrderDetails, error) {
	if err := required("order_id", orderID); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	window := storex.TimeRange{Before: createdBefore.Ptr()}
	out := &OrderDetails{Order: o, Tickets: []TicketSummary{}}

	c, err := s.store.GetCustomer(ctx, o.CustomerID)
	switch {
	case err == nil:
		out.Customer = &CustomerSummary{Name: c.Name, Email: c.Email, LoyaltyTier: c.LoyaltyTier}
	case !errors.Is(err, storex.ErrNotFound):
		return nil, err
	}

	payments, err := s.store.SearchPayments(ctx, storex.PaymentFilter{OrderID: o.ID, Created: window, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		p := payments[0]
		out.Payment = &PaymentSummary{ID: p.ID, Amount: p.Amount, Method: p.Method, Status: p.Status}
	}

	shipments, err := s.store.SearchShipments(ctx, storex.ShipmentFilter{OrderID: o.ID, Created: window, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(shipments) > 0 {
		sh := shipments[0]
		out.Shipment = &ShipmentSummary{ID: sh.ID, TrackingNumber: sh.TrackingNumber, Carrier: sh.Carrier, Status: sh.Status}
	}

	tickets, err := s.store.SearchTickets(ctx, storex.TicketFilter{OrderID: o.ID, Created: window, Limit: storex.MaxLimit})
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		out.Tickets = append(out.Tickets, TicketSummary{ID: t.ID, Subject: t.Subject, Status: t.Status})
	}
	return out, nil
}

type OrderLineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateOrderInput struct {
	CustomerID      string                  `json:"customer_id"`
	LineItems       []OrderLineInput        `json:"line_items"`
	Status          domainx.OrderStatus     `json:"status,omitempty"`
	BuildID         string                  `json:"build_id,omitempty"`
	ShippingService domainx.ShippingService `json:"shipping_service,omitempty"`
	ShippingAddress *domainx.Address        `json:"shipping_address,omitempty"`
	ApprovedByID    string                  `json:"approved_by_id,omitempty"`
}

// CreateOrder validates and stores a new order. The id is derived from the customer, the
// line items and the status, so repeating the same request updates the same order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domainx.Order, error) {
	o, err := s.newOrder(ctx, in, nil)
	if err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storex.Store) error {
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.OrderCreated, o.ID, o)
	return o, nil
}

// newOrder validates in and applies the order policy without saving. pending is
// a build that will be saved with the order and so is not looked up.
func (s *Service) newOrder(ctx context.Context, in CreateOrderInput, pending *domainx.Build) (*domainx.Order, error) {
	if in.Status == "" {
		in.Status = domainx.OrderPending
	}
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	if len(in.LineItems) == 0 {
		return nil, invalid("order must have at least one line item")
	}
	for i, li := range in.LineItems {
		if strings.TrimSpace(li.ProductID) == "" {
			return nil, invalid("line item %d missing product_id", i)
		}
		if li.Qty < 1 {
			return nil, invalid("line item %d must have qty >= 1", i)
		}
	}
	service := in.ShippingService
	if service == "" {
		service = domainx.ShippingStandard
	}
	rate, ok := pricing.LookupShipping(service)
	if !ok {
		return nil, invalid("shipping_service %q is not a valid value", service)
	}

	customer, err := s.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}
	ids := make([]string, len(in.LineItems))
	for i, li := range in.LineItems {
		ids[i] = li.ProductID
	}
	products, err := s.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	if in.BuildID != "" && (pending == nil || pending.ID != in.BuildID) {
		if _, err := s.store.GetBuild(ctx, in.BuildID); err != nil {
			return nil, notFound(err, "build", in.BuildID)
		}
	}

	facts := policyx.Facts{"build_id": in.BuildID, "approver_permissions": []string{}, "approver_title": ""}
	if in.ApprovedByID != "" {
		emp, err := s.store.GetEmployee(ctx, in.ApprovedByID)
		if err != nil {
			return nil, notFound(err, "employee", in.ApprovedByID)
		}
		facts["approver_permissions"] = append([]string{}, emp.Permissions...)
		facts["approver_title"] = emp.Title
	}
	if err := s.rules.Enforce(policyx.OpOrderCreate, facts); err != nil {
		return nil, err
	}

	items := make([]domainx.LineItem, len(in.LineItems))
	for i, li := range in.LineItems {
		items[i] = domainx.LineItem{ProductID: li.ProductID, Qty: li.Qty, UnitPrice: products[li.ProductID].Price}
	}
	address := in.ShippingAddress
	if address == nil && len(customer.Addresses) > 0 {
		a := customer.Addresses[0]
		address = &a
	}
	now := s.Now()
	o := &domainx.Order{
		ID:           orderID(in.CustomerID, items, in.Status),
		CustomerID:   in.CustomerID,
		LineItems:    items,
		Status:       in.Status,
		BuildID:      in.BuildID,
		Shipping:     domainx.OrderShipping{Service: rate.Service, Cost: rate.Cost, Address: address},
		ApprovedByID: in.ApprovedByID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return o, nil
}

func orderID(customerID string, items []domainx.LineItem, status domainx.OrderStatus) string {
	sorted := append([]domainx.LineItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	keyed := make([]string, len(sorted))
	for i, li := range sorted {
		keyed[i] = li.ProductID + ":" + strconv.Itoa(li.Qty)
	}
	return hashID("ord_", customerID, strings.Join(keyed, "|"), string(status))
}

type CancelOrderResult struct {
	Order   *domainx.Order   `json:"order"`
	Payment *domainx.Payment `json:"payment,omitempty"`
	Refund  *domainx.Refund  `json:"refund,omitempty"`
}

// CancelOrder cancels an order and returns the money. A captured payment is refunded in
// full, shipping included, through an approved refund; an uncaptured one is voided.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (*CancelOrderResult, error) {
	if err := required("order_id", orderID); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if err := s.rules.Enforce(policyx.OpOrderCancel, policyx.Facts{"status": string(o.Status)}); err != nil {
		return nil, err
	}

	res := &CancelOrderResult{}
	now := s.Now()
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storex.Store) error {
		o.Status = domainx.OrderCancelled
		o.UpdatedAt = now
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		res.Order = o

		payments, err := tx.SearchPayments(ctx, storex.PaymentFilter{OrderID: o.ID, Limit: 1})
		if err != nil || len(payments) == 0 {
			return err
		}
		p, err := tx.LockPayment(ctx, payments[0].ID)
		if err != nil {
			return err
		}
		switch {
		case p.Status.Refundable():
			existing, err := tx.SearchRefunds(ctx, storex.RefundFilter{PaymentID: p.ID, Limit: storex.MaxLimit})
			if err != nil {
				return err
			}
			remaining := p.Amount.Sub(sumRefunds(existing))
			if remaining.IsPositive() {
				notes := "Order cancelled"
				if strings.TrimSpace(reason) != "" {
					notes += ": " + strings.TrimSpace(reason)
				}
				r := &domainx.Refund{
					ID:        refundID(p.ID, len(existing), remaining, p.Currency, domainx.ReasonOther, domainx.RefundApproved),
					PaymentID: p.ID,
					Amount:    remaining,
					Currency:  p.Currency,
					Reason:    domainx.ReasonOther,
					Notes:     notes,
					Status:    domainx.RefundApproved,
					CreatedAt: now,
				}
				if err := tx.SaveRefund(ctx, r); err != nil {
					return err
				}
				res.Refund = r
			}
			p.Status = domainx.PaymentRefunded
		case domainx.CanTransitionPayment(p.Status, domainx.PaymentVoided):
			p.Status = domainx.PaymentVoided
		default:
			return nil
		}
		p.ProcessedAt = &now
		res.Payment = p
		return tx.SavePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventx.OrderCancelled, o.ID, o)
	if res.Refund != nil {
		s.publish(ctx, eventx.RefundCreated, res.Refund.ID, res.Refund)
	}
	if res.Payment != nil {
		s.publish(ctx, eventx.PaymentStatusChanged, res.Payment.ID, res.Payment)
	}
	return res, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domainx.OrderStatus) (*domainx.Order, error) {
	if err := required("order_id", orderID); err != nil {
		return nil, err
	}
	if status == "" || !status.Valid() {
		return nil, invalid("status %q is not a valid value", status)
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if o.Status == status {
		return o, nil
	}
	if !domainx.CanTransitionOrder(o.Status, status) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidTransition, o.ID, o.Status, status)
	}
	o.Status = status
	o.UpdatedAt = s.Now()
	if err := s.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.OrderStatusChanged, o.ID, o)
	return o, nil
}

type SearchPaymentsInput struct {
	PaymentID       string                `json:"payment_id,omitempty"`
	OrderID         string                `json:"order_id,omitempty"`
	Status          domainx.PaymentStatus `json:"status,omitempty"`
	CreatedAfter    *Timestamp            `json:"created_after,omitempty"`
	CreatedBefore   *Timestamp            `json:"created_before,omitempty"`
	ProcessedAfter  *Timestamp            `json:"processed_after,omitempty"`
	ProcessedBefore *Timestamp            `json:"processed_before,omitempty"`
	Limit           int                   `json:"limit,omitempty"`
}

func (s *Service) SearchPayments(ctx context.Context, in SearchPaymentsInput) ([]*domainx.Payment, error) {
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	return s.store.SearchPayments(ctx, storex.PaymentFilter{
		ID:        in.PaymentID,
		OrderID:   in.OrderID,
		Status:    in.Status,
		Created:   timeRange(in.CreatedAfter, in.CreatedBefore),
		Processed: timeRange(in.ProcessedAfter, in.ProcessedBefore),
		Limit:     in.Limit,
	})
}

type UpdatePaymentStatusInput struct {
	PaymentID     string                `json:"payment_id"`
	Status        domainx.PaymentStatus `json:"status"`
	FailureReason string                `json:"failure_reason,omitempty"`
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, in UpdatePaymentStatusInput) (*domainx.Payment, error) {
	if err := required("payment_id", in.PaymentID); err != nil {
		return nil, err
	}
	if in.Status == "" || !in.Status.Valid() {
		return nil, invalid("status %q is not a valid value", in.Status)
	}
	if in.FailureReason != "" && in.Status != domainx.PaymentFailed {
		return nil, invalid("failure_reason only applies to failed payments")
	}
	p, err := s.store.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, notFound(err, "payment", in.PaymentID)
	}
	if p.Status == in.Status && in.FailureReason == "" {
		return p, nil
	}
	if !domainx.CanTransitionPayment(p.Status, in.Status) {
		return nil, fmt.Errorf("%w: payment %s cannot move from %s to %s", ErrInvalidTransition, p.ID, p.Status, in.Status)
	}
	if in.Status != p.Status {
		now := s.Now()
		p.ProcessedAt = &now
	}
	p.Status = in.Status
	if in.FailureReason != "" {
		p.FailureReason = in.FailureReason
	}
	if err := s.store.SavePayment(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, eventx.PaymentStatusChanged, p.ID, p)
	return p, nil
}

type SearchShipmentsInput struct {
	ShipmentID     string     `json:"shipment_id,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	Status         string     `json:"status,omitempty"`
	CreatedAfter   *Timestamp `json:"created_after,omitempty"`
	CreatedBefore  *Timestamp `json:"created_before,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

func (s *Service) SearchShipments(ctx context.Context, in SearchShipmentsInput) ([]*domainx.Shipment, error) {
	return s.store.SearchShipments(ctx, storex.ShipmentFilter{
		ID:             in.ShipmentID,
		OrderID:        in.OrderID,
		TrackingNumber: in.TrackingNumber,
		Status:         in.Status,
		Created:        timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:          in.Limit,
	})
}
