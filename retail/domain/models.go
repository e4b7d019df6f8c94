package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Address struct {
	Label      string `json:"label,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID          string      `bun:"id,pk" json:"id"`
	Name        string      `bun:"name,notnull" json:"name"`
	Email       string      `bun:"email" json:"email"`
	Phone       string      `bun:"phone" json:"phone,omitempty"`
	LoyaltyTier LoyaltyTier `bun:"loyalty_tier" json:"loyalty_tier"`
	Addresses   []Address   `bun:"addresses,type:jsonb" json:"addresses,omitempty"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

type Inventory struct {
	InStock       int  `json:"in_stock"`
	Backorderable bool `json:"backorderable,omitempty"`
}

type CPUSpec struct {
	Socket   string `json:"socket,omitempty"`
	Cores    int    `json:"cores,omitempty"`
	TDPWatts int    `json:"tdp_watts,omitempty"`
}

type MotherboardSpec struct {
	Socket         string `json:"socket,omitempty"`
	FormFactor     string `json:"form_factor,omitempty"`
	MemoryType     string `json:"memory_type,omitempty"`
	MaxMemoryMhz   int    `json:"max_memory_mhz,omitempty"`
	MaxMemorySlots int    `json:"max_memory_slots,omitempty"`
	SataPorts      *int   `json:"sata_ports,omitempty"`
}

type MemorySpec struct {
	Type       string `json:"type,omitempty"`
	SpeedMhz   int    `json:"speed_mhz,omitempty"`
	CapacityGB int    `json:"capacity_gb,omitempty"`
	Modules    int    `json:"modules,omitempty"`
}

type GPUSpec struct {
	LengthMm            int `json:"length_mm,omitempty"`
	RecommendedPsuWatts int `json:"recommended_psu_watts,omitempty"`
	VramGB              int `json:"vram_gb,omitempty"`
}

type PSUSpec struct {
	Wattage int `json:"wattage,omitempty"`
}

type CaseSpec struct {
	SupportedFormFactors []string `json:"supported_form_factors,omitempty"`
	GPUMaxLengthMm       int      `json:"gpu_max_length_mm,omitempty"`
	CoolerMaxHeightMm    int      `json:"cooler_max_height_mm,omitempty"`
}

type StorageSpec struct {
	Interface  string `json:"interface,omitempty"`
	CapacityGB int    `json:"capacity_gb,omitempty"`
}

type CoolingSpec struct {
	Type     string `json:"type,omitempty"`
	HeightMm int    `json:"height_mm,omitempty"`
}

// ProductSpecs carries the category specific attributes used by the build checker.
type ProductSpecs struct {
	CPU         *CPUSpec         `json:"cpu,omitempty"`
	Motherboard *MotherboardSpec `json:"motherboard,omitempty"`
	Memory      *MemorySpec      `json:"memory,omitempty"`
	GPU         *GPUSpec         `json:"gpu,omitempty"`
	PSU         *PSUSpec         `json:"psu,omitempty"`
	Case        *CaseSpec        `json:"case,omitempty"`
	Storage     *StorageSpec     `json:"storage,omitempty"`
	Cooling     *CoolingSpec     `json:"cooling,omitempty"`
}

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID             string          `bun:"id,pk" json:"id"`
	Category       ProductCategory `bun:"category,notnull" json:"category"`
	SKU            string          `bun:"sku" json:"sku"`
	Name           string          `bun:"name,notnull" json:"name"`
	Brand          string          `bun:"brand" json:"brand"`
	Price          decimal.Decimal `bun:"price,type:numeric(12,2)" json:"price"`
	Inventory      Inventory       `bun:"inventory,type:jsonb" json:"inventory"`
	Specs          ProductSpecs    `bun:"specs,type:jsonb" json:"specs"`
	WarrantyMonths int             `bun:"warranty_months" json:"warranty_months,omitempty"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}

type LineItem struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderShipping struct {
	Service ShippingService `json:"service"`
	Cost    decimal.Decimal `json:"cost"`
	Address *Address        `json:"address,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID           string        `bun:"id,pk" json:"id"`
	CustomerID   string        `bun:"customer_id,notnull" json:"customer_id"`
	LineItems    []LineItem    `bun:"line_items,type:jsonb" json:"line_items"`
	Status       OrderStatus   `bun:"status,notnull" json:"status"`
	BuildID      string        `bun:"build_id,nullzero" json:"build_id,omitempty"`
	Shipping     OrderShipping `bun:"shipping,type:jsonb" json:"shipping"`
	ApprovedByID string        `bun:"approved_by_id,nullzero" json:"approved_by_id,omitempty"`
	CreatedAt    time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// Subtotal sums the line items at the unit price captured on the order.
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.LineItems {
		total = total.Add(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Qty))))
	}
	return RoundMoney(total)
}

func (o *Order) HasProduct(productID string) bool {
	for _, li := range o.LineItems {
		if li.ProductID == productID {
			return true
		}
	}
	return false
}

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            string          `bun:"id,pk" json:"id"`
	OrderID       string          `bun:"order_id,notnull" json:"order_id"`
	Amount        decimal.Decimal `bun:"amount,type:numeric(12,2)" json:"amount"`
	Currency      string          `bun:"currency,notnull" json:"currency"`
	Method        string          `bun:"method" json:"method"`
	Status        PaymentStatus   `bun:"status,notnull" json:"status"`
	FailureReason string          `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	ProcessedAt   *time.Time      `bun:"processed_at" json:"processed_at,omitempty"`
}

type Shipment struct {
	bun.BaseModel `bun:"table:shipments"`

	ID             string     `bun:"id,pk" json:"id"`
	OrderID        string     `bun:"order_id,notnull" json:"order_id"`
	Carrier        string     `bun:"carrier" json:"carrier"`
	TrackingNumber string     `bun:"tracking_number" json:"tracking_number"`
	Status         string     `bun:"status" json:"status"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	DeliveredAt    *time.Time `bun:"delivered_at" json:"delivered_at,omitempty"`
}

type RefundLine struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Amount    decimal.Decimal `json:"amount"`
}

type Refund struct {
	bun.BaseModel `bun:"table:refunds"`

	ID          string          `bun:"id,pk" json:"id"`
	PaymentID   string          `bun:"payment_id,notnull" json:"payment_id"`
	TicketID    string          `bun:"ticket_id,nullzero" json:"ticket_id,omitempty"`
	Amount      decimal.Decimal `bun:"amount,type:numeric(12,2)" json:"amount"`
	Currency    string          `bun:"currency,notnull" json:"currency"`
	Reason      RefundReason    `bun:"reason,notnull" json:"reason"`
	Notes       string          `bun:"notes" json:"notes,omitempty"`
	Status      RefundStatus    `bun:"status,notnull" json:"status"`
	Lines       []RefundLine    `bun:"lines,type:jsonb" json:"lines,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"created_at"`
	ProcessedAt *time.Time      `bun:"processed_at" json:"processed_at,omitempty"`
}

type SupportTicket struct {
	bun.BaseModel `bun:"table:support_tickets"`

	ID                 string         `bun:"id,pk" json:"id"`
	CustomerID         string         `bun:"customer_id,notnull" json:"customer_id"`
	OrderID            string         `bun:"order_id,nullzero" json:"order_id,omitempty"`
	BuildID            string         `bun:"build_id,nullzero" json:"build_id,omitempty"`
	AssignedEmployeeID string         `bun:"assigned_employee_id,nullzero" json:"assigned_employee_id,omitempty"`
	TicketType         TicketType     `bun:"ticket_type,notnull" json:"ticket_type"`
	Status             TicketStatus   `bun:"status,notnull" json:"status"`
	Priority           TicketPriority `bun:"priority,notnull" json:"priority"`
	Subject            string         `bun:"subject" json:"subject"`
	Body               string         `bun:"body" json:"body,omitempty"`
	CreatedAt          time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time      `bun:"updated_at,notnull" json:"updated_at"`
	ResolvedAt         *time.Time     `bun:"resolved_at" json:"resolved_at,omitempty"`
}

type Resolution struct {
	bun.BaseModel `bun:"table:resolutions"`

	ID             string            `bun:"id,pk" json:"id"`
	TicketID       string            `bun:"ticket_id,notnull" json:"ticket_id"`
	Outcome        ResolutionOutcome `bun:"outcome,notnull" json:"outcome"`
	LinkedRefundID string            `bun:"linked_refund_id,nullzero" json:"linked_refund_id,omitempty"`
	ResolvedByID   string            `bun:"resolved_by_id,nullzero" json:"resolved_by_id,omitempty"`
	Notes          string            `bun:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time         `bun:"created_at,notnull" json:"created_at"`
}

type Escalation struct {
	bun.BaseModel `bun:"table:escalations"`

	ID             string         `bun:"id,pk" json:"id"`
	TicketID       string         `bun:"ticket_id,notnull" json:"ticket_id"`
	EscalationType EscalationType `bun:"escalation_type,notnull" json:"escalation_type"`
	Destination    Destination    `bun:"destination,notnull" json:"destination"`
	Notes          string         `bun:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time      `bun:"created_at,notnull" json:"created_at"`
	ResolvedAt     *time.Time     `bun:"resolved_at" json:"resolved_at,omitempty"`
}

type Build struct {
	bun.BaseModel `bun:"table:builds"`

	ID         string    `bun:"id,pk" json:"id"`
	Name       string    `bun:"name,notnull" json:"name"`
	CustomerID string    `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	ProductIDs []string  `bun:"product_ids,type:jsonb" json:"product_ids"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Employee struct {
	bun.BaseModel `bun:"table:employees"`

	ID          string   `bun:"id,pk" json:"id"`
	Name        string   `bun:"name,notnull" json:"name"`
	Email       string   `bun:"email" json:"email"`
	Department  string   `bun:"department" json:"department"`
	Title       string   `bun:"title" json:"title"`
	ManagerID   string   `bun:"manager_id,nullzero" json:"manager_id,omitempty"`
	Permissions []string `bun:"permissions,type:jsonb" json:"permissions,omitempty"`
}

func (e *Employee) HasPermission(p string) bool {
	for _, have := range e.Permissions {
		if strings.EqualFold(have, p) {
			return true
		}
	}
	return false
}

type KnowledgeBaseArticle struct {
	bun.BaseModel `bun:"table:knowledge_base_articles"`

	ID        string    `bun:"id,pk" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Body      string    `bun:"body" json:"body"`
	Category  string    `bun:"category" json:"category,omitempty"`
	Tags      []string  `bun:"tags,type:jsonb" json:"tags,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type WarrantyClaim struct {
	bun.BaseModel `bun:"table:warranty_claims"`

	ID           string              `bun:"id,pk" json:"id"`
	ProductID    string              `bun:"product_id,notnull" json:"product_id"`
	OrderID      string              `bun:"order_id,nullzero" json:"order_id,omitempty"`
	CustomerID   string              `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	Reason       WarrantyClaimReason `bun:"reason,notnull" json:"reason"`
	Status       WarrantyClaimStatus `bun:"status,notnull" json:"status"`
	DenialReason DenialReason        `bun:"denial_reason,nullzero" json:"denial_reason,omitempty"`
	Notes        string              `bun:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time           `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time           `bun:"updated_at,notnull" json:"updated_at"`
}

// Models lists every table in creation order.
func Models() []any {
	return []any{
		(*Customer)(nil),
		(*Employee)(nil),
		(*Product)(nil),
		(*Build)(nil),
		(*Order)(nil),
		(*Payment)(nil),
		(*Shipment)(nil),
		(*SupportTicket)(nil),
		(*Refund)(nil),
		(*Resolution)(nil),
		(*Escalation)(nil),
		(*KnowledgeBaseArticle)(nil),
		(*WarrantyClaim)(nil),
	}
}
