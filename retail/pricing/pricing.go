package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrUnknownShipping  = errors.New("unknown shipping service")
	ErrUnknownPromo     = errors.New("promo code is not valid or has expired")
	ErrPromoIneligible  = errors.New("promo code conditions not met")
	ErrEmptyPriceLines  = errors.New("at least one product is required")
	ErrNegativeUnitCost = errors.New("unit price must not be negative")
	ErrInvalidTaxRate   = errors.New("tax rate must be at least 0 and below 1")
)

// DefaultTaxRate applies when a quote does not name its own rate.
var DefaultTaxRate = decimal.RequireFromString("0.08")

var loyaltyRates = map[domainx.LoyaltyTier]decimal.Decimal{
	domainx.TierSilver:   decimal.RequireFromString("0.05"),
	domainx.TierGold:     decimal.RequireFromString("0.10"),
	domainx.TierPlatinum: decimal.RequireFromString("0.15"),
}

// LoyaltyRate returns the fractional discount for a tier; unknown tiers get none.
func LoyaltyRate(tier domainx.LoyaltyTier) decimal.Decimal {
	rate, ok := loyaltyRates[domainx.LoyaltyTier(strings.ToLower(string(tier)))]
	if !ok {
		return decimal.Zero
	}
	return rate
}

type Line struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
}

type QuoteRequest struct {
	Lines       []Line
	LoyaltyTier domainx.LoyaltyTier
	Shipping    domainx.ShippingService
	PromoCode   string
	// TaxRate overrides DefaultTaxRate when set.
	TaxRate *decimal.Decimal
}

type Quote struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	PromoCode       string          `json:"promo_code,omitempty"`
	PromoDiscount   decimal.Decimal `json:"promo_discount"`
	Shipping        decimal.Decimal `json:"shipping"`
	ShippingService string          `json:"shipping_service"`
	Total           decimal.Decimal `json:"total"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Tax             decimal.Decimal `json:"tax"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

// Calculate prices a basket: subtotal, loyalty discount, promo discount, then shipping.
// The promo minimum is checked against the subtotal and percentage promos apply to the
// amount left after the loyalty discount. Total is before tax; tax is charged on the
// discounted goods only, never on shipping, and GrandTotal adds it.
func Calculate(req QuoteRequest) (Quote, error) {
	if len(req.Lines) == 0 {
		return Quote{}, ErrEmptyPriceLines
	}
	taxRate := DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Quote{}, fmt.Errorf("%w: %s", ErrInvalidTaxRate, taxRate)
	}

	subtotal := decimal.Zero
	for _, l := range req.Lines {
		if l.Qty < 1 {
			return Quote{}, fmt.Errorf("%w: product=%s qty=%d", ErrInvalidQuantity, l.ProductID, l.Qty)
		}
		if l.UnitPrice.IsNegative() {
			return Quote{}, fmt.Errorf("%w: product=%s", ErrNegativeUnitCost, l.ProductID)
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}

	service := req.Shipping
	if strings.TrimSpace(string(service)) == "" {
		service = domainx.ShippingStandard
	}
	rate, ok := LookupShipping(service)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownShipping, service)
	}

	discount := subtotal.Mul(LoyaltyRate(req.LoyaltyTier))
	afterLoyalty := subtotal.Sub(discount)
	shipping := rate.Cost

	quote := Quote{
		Subtotal:        domainx.RoundMoney(subtotal),
		Discount:        domainx.RoundMoney(discount),
		PromoDiscount:   decimal.Zero,
		ShippingService: string(rate.Service),
	}

	if code := strings.TrimSpace(req.PromoCode); code != "" {
		promo, ok := LookupPromo(code)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownPromo, code)
		}
		if err := promo.Eligible(subtotal, req.LoyaltyTier); err != nil {
			return Quote{}, err
		}
		quote.PromoCode = promo.Code
		switch promo.Type {
		case PromoFreeShipping:
			shipping = decimal.Zero
		default:
			quote.PromoDiscount = domainx.RoundMoney(promo.DiscountOn(afterLoyalty))
		}
	}

	total := afterLoyalty.Sub(quote.PromoDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	quote.Shipping = shipping
	quote.Total = domainx.RoundMoney(total.Add(shipping))
	quote.TaxRate = taxRate
	quote.Tax = domainx.RoundMoney(total.Mul(taxRate))
	quote.GrandTotal = quote.Total.Add(quote.Tax)
	return quote, nil
}
