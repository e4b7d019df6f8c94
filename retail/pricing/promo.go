package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

type PromoType string

const (
	PromoPercentage   PromoType = "percentage"
	PromoFixed        PromoType = "fixed"
	PromoFreeShipping PromoType = "free_shipping"
)

type Promo struct {
	Code            string
	Description     string
	Type            PromoType
	Value           decimal.Decimal
	MinimumPurchase decimal.Decimal
	MaxDiscount     decimal.NullDecimal
	Tiers           []domainx.LoyaltyTier
}

var promos = map[string]Promo{
	"WELCOME10": {
		Code:        "WELCOME10",
		Description: "10% off for new customers",
		Type:        PromoPercentage,
		Value:       decimal.NewFromInt(10),
	},
	"SAVE25": {
		Code:            "SAVE25",
		Description:     "$25 off orders over $200",
		Type:            PromoFixed,
		Value:           decimal.NewFromInt(25),
		MinimumPurchase: decimal.NewFromInt(200),
	},
	"BULK20": {
		Code:            "BULK20",
		Description:     "20% off orders over $500",
		Type:            PromoPercentage,
		Value:           decimal.NewFromInt(20),
		MinimumPurchase: decimal.NewFromInt(500),
		MaxDiscount:     decimal.NewNullDecimal(decimal.NewFromInt(100)),
	},
	"FREESHIP": {
		Code:        "FREESHIP",
		Description: "Free shipping on all orders",
		Type:        PromoFreeShipping,
	},
	"VIP15": {
		Code:        "VIP15",
		Description: "15% off for VIP members (gold and platinum loyalty tiers)",
		Type:        PromoPercentage,
		Value:       decimal.NewFromInt(15),
		MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(150)),
		Tiers:       []domainx.LoyaltyTier{domainx.TierGold, domainx.TierPlatinum},
	},
}

// LookupPromo matches codes case-insensitively.
func LookupPromo(code string) (Promo, bool) {
	p, ok := promos[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

func ActivePromoCodes() []string {
	codes := make([]string, 0, len(promos))
	for code := range promos {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Eligible checks the minimum purchase and tier restriction.
func (p Promo) Eligible(subtotal decimal.Decimal, tier domainx.LoyaltyTier) error {
	if subtotal.LessThan(p.MinimumPurchase) {
		return fmt.Errorf("%w: %s requires a minimum purchase of $%s", ErrPromoIneligible, p.Code, p.MinimumPurchase.StringFixed(2))
	}
	if len(p.Tiers) > 0 {
		want := domainx.LoyaltyTier(strings.ToLower(string(tier)))
		for _, t := range p.Tiers {
			if t == want {
				return nil
			}
		}
		return fmt.Errorf("%w: %s is limited to %v loyalty tiers", ErrPromoIneligible, p.Code, p.Tiers)
	}
	return nil
}

// DiscountOn returns the discount this promo grants on amount, capped by MaxDiscount and amount.
func (p Promo) DiscountOn(amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.Type {
	case PromoPercentage:
		d = amount.Mul(p.Value).Div(decimal.NewFromInt(100))
	case PromoFixed:
		d = p.Value
	default:
		return decimal.Zero
	}
	if p.MaxDiscount.Valid && d.GreaterThan(p.MaxDiscount.Decimal) {
		d = p.MaxDiscount.Decimal
	}
	if d.GreaterThan(amount) {
		d = amount
	}
	return d
}

type PromoValidation struct {
	Valid            bool             `json:"valid"`
	PromoCode        string           `json:"promo_code"`
	Description      string           `json:"description,omitempty"`
	DiscountType     PromoType        `json:"discount_type,omitempty"`
	DiscountValue    *decimal.Decimal `json:"discount_value,omitempty"`
	MinimumPurchase  *decimal.Decimal `json:"minimum_purchase,omitempty"`
	MaxDiscount      *decimal.Decimal `json:"max_discount,omitempty"`
	EligibleTiers    []string         `json:"eligible_tiers,omitempty"`
	Error            string           `json:"error,omitempty"`
	ActivePromoCodes []string         `json:"active_promo_codes,omitempty"`
	Message          string           `json:"message"`
}

func ValidatePromoCode(code string) PromoValidation {
	p, ok := LookupPromo(code)
	if !ok {
		return PromoValidation{
			Valid:            false,
			PromoCode:        code,
			Error:            fmt.Sprintf("Promo code '%s' is not valid or has expired", code),
			ActivePromoCodes: ActivePromoCodes(),
			Message:          "Please check the promo code and try again, or use one of the active promo codes listed.",
		}
	}

	value := p.Value
	minimum := p.MinimumPurchase
	out := PromoValidation{
		Valid:           true,
		PromoCode:       p.Code,
		Description:     p.Description,
		DiscountType:    p.Type,
		DiscountValue:   &value,
		MinimumPurchase: &minimum,
		Message:         fmt.Sprintf("Promo code '%s' is valid: %s", p.Code, p.Description),
	}
	if p.MaxDiscount.Valid {
		capped := p.MaxDiscount.Decimal
		out.MaxDiscount = &capped
	}
	for _, t := range p.Tiers {
		out.EligibleTiers = append(out.EligibleTiers, string(t))
	}
	return out
}
