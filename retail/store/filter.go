package store

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

// Every filter matches rows in memory and renders the same predicate for bun.
// Empty fields do not constrain the result.

type CustomerFilter struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	LoyaltyTier domainx.LoyaltyTier
	AddressText string
	Created     TimeRange
	Limit       int
}

func (f CustomerFilter) match(c *domainx.Customer) bool {
	if f.ID != "" && c.ID != f.ID {
		return false
	}
	if f.Name != "" && !containsFold(c.Name, f.Name) {
		return false
	}
	if f.Email != "" && !strings.EqualFold(c.Email, f.Email) {
		return false
	}
	if f.Phone != "" && !containsFold(c.Phone, f.Phone) {
		return false
	}
	if f.LoyaltyTier != "" && c.LoyaltyTier != f.LoyaltyTier {
		return false
	}
	if f.AddressText != "" && !addressMatches(c.Addresses, f.AddressText) {
		return false
	}
	return f.Created.Contains(c.CreatedAt)
}

func addressMatches(addrs []domainx.Address, text string) bool {
	for _, a := range addrs {
		joined := strings.Join([]string{a.Label, a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country}, " ")
		if containsFold(joined, text) {
			return true
		}
	}
	return false
}

func (f CustomerFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Name != "" {
		q = q.Where("name ILIKE ?", likePattern(f.Name))
	}
	if f.Email != "" {
		q = q.Where("lower(email) = lower(?)", f.Email)
	}
	if f.Phone != "" {
		q = q.Where("phone ILIKE ?", likePattern(f.Phone))
	}
	if f.LoyaltyTier != "" {
		q = q.Where("loyalty_tier = ?", f.LoyaltyTier)
	}
	if f.AddressText != "" {
		q = q.Where("addresses::text ILIKE ?", likePattern(f.AddressText))
	}
	return applyRange(q, "created_at", f.Created)
}

type ProductFilter struct {
	ID          string
	Category    domainx.ProductCategory
	Brand       string
	Text        string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	MinStock    *int
	MaxStock    *int
	Limit       int
}

func (f ProductFilter) match(p *domainx.Product) bool {
	if f.ID != "" && p.ID != f.ID {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(p.Brand, f.Brand) {
		return false
	}
	if f.Text != "" && !containsFold(p.Name, f.Text) && !containsFold(p.SKU, f.Text) && !containsFold(p.Brand, f.Text) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.InStockOnly && p.Inventory.InStock <= 0 {
		return false
	}
	if f.MinStock != nil && p.Inventory.InStock < *f.MinStock {
		return false
	}
	if f.MaxStock != nil && p.Inventory.InStock > *f.MaxStock {
		return false
	}
	return true
}

func (f ProductFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Brand != "" {
		q = q.Where("lower(brand) = lower(?)", f.Brand)
	}
	if f.Text != "" {
		pattern := likePattern(f.Text)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("name ILIKE ?", pattern).WhereOr("sku ILIKE ?", pattern).WhereOr("brand ILIKE ?", pattern)
		})
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.InStockOnly {
		q = q.Where("(inventory->>'in_stock')::int > 0")
	}
	if f.MinStock != nil {
		q = q.Where("(inventory->>'in_stock')::int >= ?", *f.MinStock)
	}
	if f.MaxStock != nil {
		q = q.Where("(inventory->>'in_stock')::int <= ?", *f.MaxStock)
	}
	return q
}

type OrderFilter struct {
	ID         string
	CustomerID string
	Status     domainx.OrderStatus
	BuildID    string
	ProductID  string
	Created    TimeRange
	Limit      int
}

func (f OrderFilter) match(o *domainx.Order) bool {
	if f.ID != "" && o.ID != f.ID {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.BuildID != "" && o.BuildID != f.BuildID {
		return false
	}
	if f.ProductID != "" && !o.HasProduct(f.ProductID) {
		return false
	}
	return f.Created.Contains(o.CreatedAt)
}

func (f OrderFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BuildID != "" {
		q = q.Where("build_id = ?", f.BuildID)
	}
	if f.ProductID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM jsonb_array_elements(line_items) AS li WHERE li->>'product_id' = ?)", f.ProductID)
	}
	return applyRange(q, "created_at", f.Created)
}

type PaymentFilter struct {
	ID        string
	OrderID   string
	Status    domainx.PaymentStatus
	Created   TimeRange
	Processed TimeRange
	Limit     int
}

func (f PaymentFilter) match(p *domainx.Payment) bool {
	if f.ID != "" && p.ID != f.ID {
		return false
	}
	if f.OrderID != "" && p.OrderID != f.OrderID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return f.Created.Contains(p.CreatedAt) && f.Processed.ContainsPtr(p.ProcessedAt)
}

func (f PaymentFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.OrderID != "" {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = applyRange(q, "created_at", f.Created)
	return applyRange(q, "processed_at", f.Processed)
}

type ShipmentFilter struct {
	ID             string
	OrderID        string
	TrackingNumber string
	Status         string
	Created        TimeRange
	Limit          int
}

func (f ShipmentFilter) match(s *domainx.Shipment) bool {
	if f.ID != "" && s.ID != f.ID {
		return false
	}
	if f.OrderID != "" && s.OrderID != f.OrderID {
		return false
	}
	if f.TrackingNumber != "" && s.TrackingNumber != f.TrackingNumber {
		return false
	}
	if f.Status != "" && !strings.EqualFold(s.Status, f.Status) {
		return false
	}
	return f.Created.Contains(s.CreatedAt)
}

func (f ShipmentFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.OrderID != "" {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.TrackingNumber != "" {
		q = q.Where("tracking_number = ?", f.TrackingNumber)
	}
	if f.Status != "" {
		q = q.Where("lower(status) = lower(?)", f.Status)
	}
	return applyRange(q, "created_at", f.Created)
}

type RefundFilter struct {
	ID        string
	PaymentID string
	TicketID  string
	Reason    domainx.RefundReason
	Status    domainx.RefundStatus
	Created   TimeRange
	Processed TimeRange
	Limit     int
}

func (f RefundFilter) match(r *domainx.Refund) bool {
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.PaymentID != "" && r.PaymentID != f.PaymentID {
		return false
	}
	if f.TicketID != "" && r.TicketID != f.TicketID {
		return false
	}
	if f.Reason != "" && r.Reason != f.Reason {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return f.Created.Contains(r.CreatedAt) && f.Processed.ContainsPtr(r.ProcessedAt)
}

func (f RefundFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.PaymentID != "" {
		q = q.Where("payment_id = ?", f.PaymentID)
	}
	if f.TicketID != "" {
		q = q.Where("ticket_id = ?", f.TicketID)
	}
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = applyRange(q, "created_at", f.Created)
	return applyRange(q, "processed_at", f.Processed)
}

type TicketFilter struct {
	ID                 string
	CustomerID         string
	OrderID            string
	AssignedEmployeeID string
	Status             domainx.TicketStatus
	Priority           domainx.TicketPriority
	TicketType         domainx.TicketType
	Text               string
	Created            TimeRange
	Updated            TimeRange
	Resolved           TimeRange
	Limit              int
}

func (f TicketFilter) match(t *domainx.SupportTicket) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.CustomerID != "" && t.CustomerID != f.CustomerID {
		return false
	}
	if f.OrderID != "" && t.OrderID != f.OrderID {
		return false
	}
	if f.AssignedEmployeeID != "" && t.AssignedEmployeeID != f.AssignedEmployeeID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.TicketType != "" && t.TicketType != f.TicketType {
		return false
	}
	if f.Text != "" && !containsFold(t.Subject, f.Text) && !containsFold(t.Body, f.Text) {
		return false
	}
	return f.Created.Contains(t.CreatedAt) && f.Updated.Contains(t.UpdatedAt) && f.Resolved.ContainsPtr(t.ResolvedAt)
}

func (f TicketFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.OrderID != "" {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.AssignedEmployeeID != "" {
		q = q.Where("assigned_employee_id = ?", f.AssignedEmployeeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.TicketType != "" {
		q = q.Where("ticket_type = ?", f.TicketType)
	}
	if f.Text != "" {
		pattern := likePattern(f.Text)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("subject ILIKE ?", pattern).WhereOr("body ILIKE ?", pattern)
		})
	}
	q = applyRange(q, "created_at", f.Created)
	q = applyRange(q, "updated_at", f.Updated)
	return applyRange(q, "resolved_at", f.Resolved)
}

type ResolutionFilter struct {
	ID             string
	TicketID       string
	Outcome        domainx.ResolutionOutcome
	ResolvedByID   string
	LinkedRefundID string
	NotesText      string
	Created        TimeRange
	Limit          int
}

func (f ResolutionFilter) match(r *domainx.Resolution) bool {
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.TicketID != "" && r.TicketID != f.TicketID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.ResolvedByID != "" && r.ResolvedByID != f.ResolvedByID {
		return false
	}
	if f.LinkedRefundID != "" && r.LinkedRefundID != f.LinkedRefundID {
		return false
	}
	if f.NotesText != "" && !containsFold(r.Notes, f.NotesText) {
		return false
	}
	return f.Created.Contains(r.CreatedAt)
}

func (f ResolutionFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.TicketID != "" {
		q = q.Where("ticket_id = ?", f.TicketID)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	if f.ResolvedByID != "" {
		q = q.Where("resolved_by_id = ?", f.ResolvedByID)
	}
	if f.LinkedRefundID != "" {
		q = q.Where("linked_refund_id = ?", f.LinkedRefundID)
	}
	if f.NotesText != "" {
		q = q.Where("notes ILIKE ?", likePattern(f.NotesText))
	}
	return applyRange(q, "created_at", f.Created)
}

type EscalationFilter struct {
	ID             string
	TicketID       string
	EscalationType domainx.EscalationType
	Destination    domainx.Destination
	NotesText      string
	Created        TimeRange
	Resolved       TimeRange
	Unresolved     bool
	Limit          int
}

func (f EscalationFilter) match(e *domainx.Escalation) bool {
	if f.ID != "" && e.ID != f.ID {
		return false
	}
	if f.TicketID != "" && e.TicketID != f.TicketID {
		return false
	}
	if f.EscalationType != "" && e.EscalationType != f.EscalationType {
		return false
	}
	if f.Destination != "" && e.Destination != f.Destination {
		return false
	}
	if f.NotesText != "" && !containsFold(e.Notes, f.NotesText) {
		return false
	}
	if f.Unresolved && e.ResolvedAt != nil {
		return false
	}
	return f.Created.Contains(e.CreatedAt) && f.Resolved.ContainsPtr(e.ResolvedAt)
}

func (f EscalationFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.TicketID != "" {
		q = q.Where("ticket_id = ?", f.TicketID)
	}
	if f.EscalationType != "" {
		q = q.Where("escalation_type = ?", f.EscalationType)
	}
	if f.Destination != "" {
		q = q.Where("destination = ?", f.Destination)
	}
	if f.NotesText != "" {
		q = q.Where("notes ILIKE ?", likePattern(f.NotesText))
	}
	if f.Unresolved {
		q = q.Where("resolved_at IS NULL")
	}
	q = applyRange(q, "created_at", f.Created)
	return applyRange(q, "resolved_at", f.Resolved)
}

type BuildFilter struct {
	ID         string
	Name       string
	CustomerID string
	Created    TimeRange
	Limit      int
}

func (f BuildFilter) match(b *domainx.Build) bool {
	if f.ID != "" && b.ID != f.ID {
		return false
	}
	if f.Name != "" && !containsFold(b.Name, f.Name) {
		return false
	}
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	return f.Created.Contains(b.CreatedAt)
}

func (f BuildFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Name != "" {
		q = q.Where("name ILIKE ?", likePattern(f.Name))
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	return applyRange(q, "created_at", f.Created)
}

type EmployeeFilter struct {
	ID            string
	Name          string
	Department    string
	Title         string
	HasPermission string
	Limit         int
}

func (f EmployeeFilter) match(e *domainx.Employee) bool {
	if f.ID != "" && e.ID != f.ID {
		return false
	}
	if f.Name != "" && !containsFold(e.Name, f.Name) {
		return false
	}
	if f.Department != "" && !strings.EqualFold(e.Department, f.Department) {
		return false
	}
	if f.Title != "" && !containsFold(e.Title, f.Title) {
		return false
	}
	if f.HasPermission != "" && !e.HasPermission(f.HasPermission) {
		return false
	}
	return true
}

func (f EmployeeFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Name != "" {
		q = q.Where("name ILIKE ?", likePattern(f.Name))
	}
	if f.Department != "" {
		q = q.Where("lower(department) = lower(?)", f.Department)
	}
	if f.Title != "" {
		q = q.Where("title ILIKE ?", likePattern(f.Title))
	}
	if f.HasPermission != "" {
		q = q.Where("EXISTS (SELECT 1 FROM jsonb_array_elements_text(permissions) AS p WHERE lower(p) = lower(?))", f.HasPermission)
	}
	return q
}

type KnowledgeBaseFilter struct {
	Text     string
	Category string
	Tags     []string
	Created  TimeRange
	Updated  TimeRange
	Limit    int
}

func (f KnowledgeBaseFilter) match(a *domainx.KnowledgeBaseArticle) bool {
	if f.Text != "" && !containsFold(a.Title, f.Text) && !containsFold(a.Body, f.Text) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range a.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return f.Created.Contains(a.CreatedAt) && f.Updated.Contains(a.UpdatedAt)
}

func (f KnowledgeBaseFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.Text != "" {
		pattern := likePattern(f.Text)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("title ILIKE ?", pattern).WhereOr("body ILIKE ?", pattern)
		})
	}
	if f.Category != "" {
		q = q.Where("lower(category) = lower(?)", f.Category)
	}
	for _, tag := range f.Tags {
		q = q.Where("EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) AS t WHERE lower(t) = lower(?))", tag)
	}
	q = applyRange(q, "created_at", f.Created)
	return applyRange(q, "updated_at", f.Updated)
}

type WarrantyClaimFilter struct {
	ID         string
	ProductID  string
	OrderID    string
	CustomerID string
	Status     domainx.WarrantyClaimStatus
	Created    TimeRange
	Limit      int
}

func (f WarrantyClaimFilter) match(c *domainx.WarrantyClaim) bool {
	if f.ID != "" && c.ID != f.ID {
		return false
	}
	if f.ProductID != "" && c.ProductID != f.ProductID {
		return false
	}
	if f.OrderID != "" && c.OrderID != f.OrderID {
		return false
	}
	if f.CustomerID != "" && c.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return f.Created.Contains(c.CreatedAt)
}

func (f WarrantyClaimFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.ProductID != "" {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.OrderID != "" {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return applyRange(q, "created_at", f.Created)
}

func applyRange(q *bun.SelectQuery, column string, r TimeRange) *bun.SelectQuery {
	if r.After != nil {
		q = q.Where("? >= ?", bun.Ident(column), *r.After)
	}
	if r.Before != nil {
		q = q.Where("? <= ?", bun.Ident(column), *r.Before)
	}
	return q
}
