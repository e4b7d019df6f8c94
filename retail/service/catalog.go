package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/tanpawarit/corecraft-support/retail/compat"
	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	"github.com/tanpawarit/corecraft-support/retail/pricing"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type SearchProductsInput struct {
	ProductID   string                  `json:"product_id,omitempty"`
	Category    domainx.ProductCategory `json:"category,omitempty"`
	Brand       string                  `json:"brand,omitempty"`
	Text        string                  `json:"text,omitempty"`
	MinPrice    *decimal.Decimal        `json:"min_price,omitempty"`
	MaxPrice    *decimal.Decimal        `json:"max_price,omitempty"`
	InStockOnly bool                    `json:"in_stock_only,omitempty"`
	MinStock    *int                    `json:"min_stock,omitempty"`
	MaxStock    *int                    `json:"max_stock,omitempty"`
	Limit       int                     `json:"limit,omitempty"`
}

func (s *Service) SearchProducts(ctx context.Context, in SearchProductsInput) ([]*domainx.Product, error) {
	if err := checkEnum("category", in.Category); err != nil {
		return nil, err
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return nil, invalid("min_price %s exceeds max_price %s", in.MinPrice, in.MaxPrice)
	}
	return s.store.SearchProducts(ctx, storex.ProductFilter{
		ID:          in.ProductID,
		Category:    in.Category,
		Brand:       in.Brand,
		Text:        in.Text,
		MinPrice:    in.MinPrice,
		MaxPrice:    in.MaxPrice,
		InStockOnly: in.InStockOnly,
		MinStock:    in.MinStock,
		MaxStock:    in.MaxStock,
		Limit:       in.Limit,
	})
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domainx.Product, error) {
	if err := required("product_id", id); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

// loadProducts resolves ids in request order and reports every missing id at once.
func (s *Service) loadProducts(ctx context.Context, ids []string) (map[string]*domainx.Product, error) {
	found, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domainx.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: Products not found: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return byID, nil
}

type SearchCustomersInput struct {
	CustomerID    string              `json:"customer_id,omitempty"`
	Name          string              `json:"name,omitempty"`
	Email         string              `json:"email,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	LoyaltyTier   domainx.LoyaltyTier `json:"loyalty_tier,omitempty"`
	Address       string              `json:"address_text,omitempty"`
	CreatedAfter  *Timestamp          `json:"created_after,omitempty"`
	CreatedBefore *Timestamp          `json:"created_before,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
}

func (s *Service) SearchCustomers(ctx context.Context, in SearchCustomersInput) ([]*domainx.Customer, error) {
	if err := checkEnum("loyalty_tier", in.LoyaltyTier); err != nil {
		return nil, err
	}
	return s.store.SearchCustomers(ctx, storex.CustomerFilter{
		ID:          in.CustomerID,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		LoyaltyTier: in.LoyaltyTier,
		AddressText: in.Address,
		Created:     timeRange(in.CreatedAfter, in.CreatedBefore),
		Limit:       in.Limit,
	})
}

type VerifyCustomerInput struct {
	CustomerID string  `json:"customer_id"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	ZipCode    *string `json:"zip_code,omitempty"`
}

type Mismatch struct {
	Field    string `json:"field"`
	Provided string `json:"provided"`
	Message  string `json:"message"`
}

type VerifyCustomerResult struct {
	Validated  bool       `json:"validated"`
	CustomerID string     `json:"customer_id"`
	Matches    []string   `json:"matches"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	Message    string     `json:"message"`
}

// VerifyCustomer needs at least two of email, phone and zip code. A single wrong value
// fails verification even when the other two match.
func (s *Service) VerifyCustomer(ctx context.Context, in VerifyCustomerInput) (*VerifyCustomerResult, error) {
	if err := required("customer_id", in.CustomerID); err != nil {
		return nil, err
	}
	provided := 0
	for _, v := range []*string{in.Email, in.Phone, in.ZipCode} {
		if v != nil {
			provided++
		}
	}
	if provided < 2 {
		return nil, invalid("at least 2 of email, phone, zip_code must be provided, got %d", provided)
	}

	c, err := s.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, notFound(err, "customer", in.CustomerID)
	}

	res := &VerifyCustomerResult{CustomerID: c.ID, Matches: []string{}}
	if in.Email != nil {
		if strings.EqualFold(strings.TrimSpace(*in.Email), c.Email) {
			res.Matches = append(res.Matches, "email")
		} else {
			res.Mismatches = append(res.Mismatches, Mismatch{Field: "email", Provided: *in.Email, Message: "Email does not match customer record"})
		}
	}
	if in.Phone != nil {
		want, got := normalizePhone(c.Phone), normalizePhone(*in.Phone)
		if want != "" && want == got {
			res.Matches = append(res.Matches, "phone")
		} else {
			res.Mismatches = append(res.Mismatches, Mismatch{Field: "phone", Provided: *in.Phone, Message: "Phone number does not match customer record"})
		}
	}
	if in.ZipCode != nil {
		if zipMatches(c.Addresses, *in.ZipCode) {
			res.Matches = append(res.Matches, "zip_code")
		} else {
			res.Mismatches = append(res.Mismatches, Mismatch{Field: "zip_code", Provided: *in.ZipCode, Message: "Zip code does not match any address on file"})
		}
	}

	switch {
	case len(res.Mismatches) > 0:
		res.Message = "Customer verification failed: provided information does not match our records"
	case len(res.Matches) >= 2:
		res.Validated = true
		res.Message = fmt.Sprintf("Customer verified with %d matching identifiers", len(res.Matches))
	default:
		res.Message = "Customer verification failed: not enough matching identifiers"
	}
	return res, nil
}

// normalizePhone keeps the digits and drops a leading US country code.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

func zipMatches(addrs []domainx.Address, zip string) bool {
	norm := func(v string) string { return strings.ToUpper(strings.ReplaceAll(v, " ", "")) }
	want := norm(zip)
	for _, a := range addrs {
		if want != "" && norm(a.PostalCode) == want {
			return true
		}
	}
	return false
}

type SearchEmployeesInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Title      string `json:"title,omitempty"`
	Permission string `json:"has_permission,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (s *Service) SearchEmployees(ctx context.Context, in SearchEmployeesInput) ([]*domainx.Employee, error) {
	return s.store.SearchEmployees(ctx, storex.EmployeeFilter{
		ID:            in.EmployeeID,
		Name:          in.Name,
		Department:    in.Department,
		Title:         in.Title,
		HasPermission: in.Permission,
		Limit:         in.Limit,
	})
}

type SearchKnowledgeBaseInput struct {
	Text          string     `json:"text,omitempty"`
	Category      string     `json:"category,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CreatedAfter  *Timestamp `json:"created_after,omitempty"`
	CreatedBefore *Timestamp `json:"created_before,omitempty"`
	UpdatedAfter  *Timestamp `json:"updated_after,omitempty"`
	UpdatedBefore *Timestamp `json:"updated_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

func (s *Service) SearchKnowledgeBase(ctx context.Context, in SearchKnowledgeBaseInput) ([]*domainx.KnowledgeBaseArticle, error) {
	return s.store.SearchKnowledgeBase(ctx, storex.KnowledgeBaseFilter{
		Text:     in.Text,
		Category: in.Category,
		Tags:     in.Tags,
		Created:  timeRange(in.CreatedAfter, in.CreatedBefore),
		Updated:  timeRange(in.UpdatedAfter, in.UpdatedBefore),
		Limit:    in.Limit,
	})
}

type PriceItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CalculatePriceInput struct {
	Items           []PriceItem             `json:"items"`
	CustomerID      string                  `json:"customer_id,omitempty"`
	LoyaltyTier     domainx.LoyaltyTier     `json:"loyalty_tier,omitempty"`
	ShippingService domainx.ShippingService `json:"shipping_service,omitempty"`
	PromoCode       string                  `json:"promo_code,omitempty"`
	TaxRate         *decimal.Decimal        `json:"tax_rate,omitempty"`
}

// CalculatePrice quotes catalog prices. A customer id, when given, supplies the loyalty tier.
func (s *Service) CalculatePrice(ctx context.Context, in CalculatePriceInput) (*pricing.Quote, error) {
	if len(in.Items) == 0 {
		return nil, invalid("at least one item is required")
	}
	if err := checkEnum("loyalty_tier", in.LoyaltyTier); err != nil {
		return nil, err
	}

	tier := in.LoyaltyTier
	if in.CustomerID != "" {
		c, err := s.store.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return nil, notFound(err, "customer", in.CustomerID)
		}
		tier = c.LoyaltyTier
	}

	ids := make([]string, len(in.Items))
	for i, it := range in.Items {
		ids[i] = it.ProductID
	}
	products, err := s.loadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, len(in.Items))
	for i, it := range in.Items {
		lines[i] = pricing.Line{ProductID: it.ProductID, UnitPrice: products[it.ProductID].Price, Qty: it.Qty}
	}
	quote, err := pricing.Calculate(pricing.QuoteRequest{
		Lines:       lines,
		LoyaltyTier: tier,
		Shipping:    in.ShippingService,
		PromoCode:   in.PromoCode,
		TaxRate:     in.TaxRate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return &quote, nil
}

func (s *Service) ValidatePromoCode(code string) pricing.PromoValidation {
	return pricing.ValidatePromoCode(strings.TrimSpace(code))
}

func (s *Service) GetShippingEstimate(method domainx.ShippingService, destinationZip string) pricing.ShippingEstimate {
	return pricing.EstimateShipping(method, destinationZip, s.Now())
}

func (s *Service) ValidateBuildCompatibility(ctx context.Context, productIDs []string) (compat.Result, error) {
	if len(productIDs) == 0 {
		return compat.Result{}, invalid("product_ids must not be empty")
	}
	found, err := s.store.GetProducts(ctx, productIDs)
	if err != nil {
		return compat.Result{}, err
	}
	return compat.Check(productIDs, found), nil
}

// VerifiedCustomer reports the customer id when verification succeeded.
func (r *VerifyCustomerResult) VerifiedCustomer() (string, bool) {
	if r == nil || !r.Validated {
		return "", false
	}
	return r.CustomerID, true
}
