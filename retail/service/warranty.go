package service

import (
	"context"
	"fmt"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
	"github.com/tanpawarit/corecraft-support/retail/warranty"
)

type CheckWarrantyInput struct {
	OrderID      string     `json:"order_id,omitempty"`
	ProductID    string     `json:"product_id,omitempty"`
	PurchaseDate *Timestamp `json:"purchase_date,omitempty"`
}

// CheckWarrantyStatus dates coverage from the order when one is given, using the product's
// term only if the product is on that order. Without an order the purchase date defaults to
// now and the product's term applies.
func (s *Service) CheckWarrantyStatus(ctx context.Context, in CheckWarrantyInput) (warranty.Status, error) {
	if in.OrderID == "" && in.ProductID == "" {
		return warranty.Status{}, invalid("either order_id or product_id is required")
	}
	months := warranty.DefaultMonths
	now := s.Now()

	if in.OrderID != "" {
		o, err := s.store.GetOrder(ctx, in.OrderID)
		if err != nil {
			return warranty.Status{}, notFound(err, "order", in.OrderID)
		}
		if in.ProductID != "" && o.HasProduct(in.ProductID) {
			p, err := s.store.GetProduct(ctx, in.ProductID)
			if err != nil {
				return warranty.Status{}, notFound(err, "product", in.ProductID)
			}
			if p.WarrantyMonths > 0 {
				months = p.WarrantyMonths
			}
		}
		return warranty.Evaluate(o.CreatedAt, months, now), nil
	}

	p, err := s.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return warranty.Status{}, notFound(err, "product", in.ProductID)
	}
	if p.WarrantyMonths > 0 {
		months = p.WarrantyMonths
	}
	purchase := now
	if in.PurchaseDate != nil {
		purchase = in.PurchaseDate.Time
	}
	return warranty.Evaluate(purchase, months, now), nil
}

type CreateWarrantyClaimInput struct {
	ProductID    string                      `json:"product_id"`
	OrderID      string                      `json:"order_id"`
	CustomerID   string                      `json:"customer_id"`
	Reason       domainx.WarrantyClaimReason `json:"reason"`
	Status       domainx.WarrantyClaimStatus `json:"status,omitempty"`
	DenialReason domainx.DenialReason        `json:"denial_reason,omitempty"`
	Notes        string                      `json:"notes,omitempty"`
}

func (s *Service) CreateWarrantyClaim(ctx context.Context, in CreateWarrantyClaimInput) (*domainx.WarrantyClaim, error) {
	if in.Status == "" {
		in.Status = domainx.ClaimPendingReview
	}
	for _, f := range [][2]string{{"product_id", in.ProductID}, {"order_id", in.OrderID}, {"customer_id", in.CustomerID}} {
		if err := required(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if in.Reason == "" || !in.Reason.Valid() {
		return nil, invalid("reason %q is not a valid value", in.Reason)
	}
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	if err := checkEnum("denial_reason", in.DenialReason); err != nil {
		return nil, err
	}

	p, err := s.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, notFound(err, "product", in.ProductID)
	}
	o, err := s.store.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, notFound(err, "order", in.OrderID)
	}
	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}
	if o.CustomerID != in.CustomerID {
		return nil, invalid("order %s does not belong to customer %s", o.ID, in.CustomerID)
	}
	if !o.HasProduct(p.ID) {
		return nil, invalid("product %s is not on order %s", p.ID, o.ID)
	}

	coverage := warranty.Evaluate(o.CreatedAt, p.WarrantyMonths, s.Now())
	facts := policyx.Facts{
		"category":       string(p.Category),
		"status":         string(in.Status),
		"denial_reason":  string(in.DenialReason),
		"under_warranty": coverage.IsUnderWarranty,
	}
	if err := s.rules.Enforce(policyx.OpWarrantyClaim, facts); err != nil {
		return nil, err
	}

	now := s.Now()
	c := &domainx.WarrantyClaim{
		ID:           hashID("warranty_claim_", in.ProductID, in.OrderID, in.CustomerID, string(in.Reason), string(in.Status)),
		ProductID:    in.ProductID,
		OrderID:      in.OrderID,
		CustomerID:   in.CustomerID,
		Reason:       in.Reason,
		Status:       in.Status,
		DenialReason: in.DenialReason,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveWarrantyClaim(ctx, c); err != nil {
		return nil, fmt.Errorf("save warranty claim: %w", err)
	}
	s.publish(ctx, eventx.WarrantyClaimCreated, c.ID, c)
	return c, nil
}

type SearchWarrantyClaimsInput struct {
	ClaimID       string                      `json:"claim_id,omitempty"`
	ProductID     string                      `json:"product_id,omitempty"`
	OrderID       string                      `json:"order_id,omitempty"`
	CustomerID    string                      `json:"customer_id,omitempty"`
	Status        domainx.WarrantyClaimStatus `json:"status,omitempty"`
	CreatedAfter  *Timestamp                  `json:"created_after,omitempty"`
	CreatedBefore *Timestamp                  `json:"created_before,omitempty"`
	Limit         int                         `json:"limit,omitempty"`
}

func (s *Service) SearchWarrantyClaims(ctx context.Context, in SearchWarrantyClaimsInput) ([]*domainx.WarrantyClaim, error) {
	if err := checkEnum("status", in.Status); err != nil {
		return nil, err
	}
	return s.store.SearchWarrantyClaims(ctx, storex.WarrantyClaimFilter{
		ID:         in.ClaimID,
		ProductID:  in.ProductID,
		OrderID:    in.OrderID,
		CustomerID: in.CustomerID,
		Status:     in.Status,
		Created:    timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:      in.Limit,
	})
}
