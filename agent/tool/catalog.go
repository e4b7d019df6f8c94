package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	servicex "github.com/tanpawarit/corecraft-support/retail/service"
)

// Executor runs one tool call. Business failures come back in ToolResult.Error.
type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

type runner func(ctx context.Context, raw []byte) (any, error)

type entry struct {
	info   *schema.ToolInfo
	agents map[contractx.AgentType]bool
	run    runner
}

var (
	sales     = []contractx.AgentType{contractx.AgentTypeSales}
	support   = []contractx.AgentType{contractx.AgentTypeSupport}
	both      = []contractx.AgentType{contractx.AgentTypeSales, contractx.AgentTypeSupport}
	staffOnly = []contractx.AgentType{}
)

// Catalog exposes the retail service as model tools and implements
// contract.ToolGateway. Staff callers may use every tool.
type Catalog struct {
	svc     *servicex.Service
	math    *mathEvaluator
	metrics *metricsx.Registry
	entries map[string]*entry
	order   []string
}

type Option func(*Catalog)

func WithMetrics(m *metricsx.Registry) Option {
	return func(c *Catalog) { c.metrics = m }
}

var _ contractx.ToolGateway = (*Catalog)(nil)

func NewCatalog(svc *servicex.Service, opts ...Option) (*Catalog, error) {
	if svc == nil {
		return nil, errors.New("retail service is required")
	}
	m, err := newMathEvaluator()
	if err != nil {
		return nil, err
	}
	c := &Catalog{svc: svc, math: m, entries: make(map[string]*entry)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.registerCatalogTools()
	c.registerOrderTools()
	c.registerSupportTools()
	c.add(ToolMathEvaluate, "Evaluate an arithmetic expression with + - * / and parentheses.", params{
		"expression": req(str("Expression to evaluate, e.g. (129.99 * 2) + 9.99")),
	}, both, bind(c.math.Evaluate))
	return c, nil
}

func (c *Catalog) add(name, desc string, p params, agents []contractx.AgentType, run runner) {
	set := make(map[contractx.AgentType]bool, len(agents))
	for _, a := range agents {
		set[a] = true
	}
	c.entries[name] = &entry{
		info:   &schema.ToolInfo{Name: name, Desc: desc, ParamsOneOf: schema.NewParamsOneOfByParams(p)},
		agents: set,
		run:    run,
	}
	c.order = append(c.order, name)
}

func (c *Catalog) allowed(agentType contractx.AgentType, e *entry) bool {
	return agentType == contractx.AgentTypeStaff || e.agents[agentType]
}

// InfosForAgent returns the tool definitions a specialist may call, in registration order.
func (c *Catalog) InfosForAgent(agentType contractx.AgentType) []*schema.ToolInfo {
	var out []*schema.ToolInfo
	for _, name := range c.order {
		if e := c.entries[name]; c.allowed(agentType, e) {
			out = append(out, e.info)
		}
	}
	return out
}

// Names lists every registered tool sorted by name.
func (c *Catalog) Names() []string {
	out := append([]string(nil), c.order...)
	sort.Strings(out)
	return out
}

func (c *Catalog) BuildForAgent(agentType contractx.AgentType) ([]*schema.ToolInfo, Executor) {
	return c.InfosForAgent(agentType), c.NewExecutor(agentType)
}

func (c *Catalog) NewExecutor(agentType contractx.AgentType) Executor {
	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		return c.ExecuteOne(ctx, agentType, contractx.ToolRequest{Tool: tool, Args: args})
	}
}

// Execute runs the requests in order and stops at the first infrastructure error.
func (c *Catalog) Execute(ctx context.Context, agentType contractx.AgentType, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	out := make([]contractx.ToolResult, 0, len(reqs))
	for _, r := range reqs {
		res, err := c.ExecuteOne(ctx, agentType, r)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (c *Catalog) ExecuteOne(ctx context.Context, agentType contractx.AgentType, r contractx.ToolRequest) (contractx.ToolResult, error) {
	name := strings.TrimSpace(r.Tool)
	start := time.Now()
	logger := log.With().Str("agent", string(agentType)).Str("tool", name).Logger()

	e, ok := c.entries[name]
	if !ok || !c.allowed(agentType, e) {
		c.observe(agentType, name, metricsx.OutcomeError)
		logger.Warn().Msg("tool: unavailable")
		return contractx.ToolResult{
			Tool:  name,
			Error: fmt.Sprintf("%v: tool=%s agent=%s", contractx.ErrToolUnavailable, name, agentType),
		}, nil
	}

	raw, err := json.Marshal(r.Args)
	if err != nil {
		c.observe(agentType, name, metricsx.OutcomeError)
		return contractx.ToolResult{Tool: name, Error: fmt.Sprintf("arguments are not valid JSON: %v", err)}, nil
	}

	value, err := e.run(ctx, raw)
	res := contractx.ToolResult{Tool: name}
	var perr *policyx.PolicyError
	switch {
	case err == nil:
		res.Result = value
		c.observe(agentType, name, metricsx.OutcomeOK)
	case errors.As(err, &perr):
		res.Error = err.Error()
		res.Denials = perr.RuleIDs()
		c.observe(agentType, name, metricsx.OutcomeDenied)
	case errors.Is(err, servicex.ErrNotFound),
		errors.Is(err, servicex.ErrInvalidArgument),
		errors.Is(err, servicex.ErrInvalidTransition),
		errors.Is(err, servicex.ErrConflict):
		res.Error = err.Error()
		c.observe(agentType, name, metricsx.OutcomeError)
	default:
		c.observe(agentType, name, metricsx.OutcomeError)
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("tool: failed")
		return contractx.ToolResult{}, fmt.Errorf("tool %s: %w", name, err)
	}

	logger.Info().
		Bool("ok", res.Error == "").
		Strs("denials", res.Denials).
		Dur("took", time.Since(start)).
		Msg("tool: executed")
	return res, nil
}

func (c *Catalog) observe(agentType contractx.AgentType, tool, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveTool(string(agentType), tool, outcome)
	}
}

func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{servicex.ErrInvalidArgument}, args...)...)
}

func decodeArgs(raw []byte, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return invalidArgs("arguments do not match the tool schema: %v", err)
	}
	return nil
}

// bind adapts a typed operation to a runner that decodes JSON arguments.
func bind[In any, Out any](fn func(context.Context, In) (Out, error)) runner {
	return func(ctx context.Context, raw []byte) (any, error) {
		var in In
		if err := decodeArgs(raw, &in); err != nil {
			return nil, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

type productArgs struct {
	ProductID string `json:"product_id"`
}

type orderDetailsArgs struct {
	OrderID       string              `json:"order_id"`
	CreatedBefore *servicex.Timestamp `json:"created_before,omitempty"`
}

type cancelOrderArgs struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type orderStatusArgs struct {
	OrderID string              `json:"order_id"`
	Status  domainx.OrderStatus `json:"status"`
}

type promoArgs struct {
	PromoCode string `json:"promo_code"`
}

type shippingArgs struct {
	ShippingService domainx.ShippingService `json:"shipping_service"`
	DestinationZip  string                  `json:"destination_zip"`
}

type compatibilityArgs struct {
	ProductIDs []string `json:"product_ids"`
}

func (c *Catalog) registerCatalogTools() {
	svc := c.svc

	c.add("search_products", "Search the product catalog by category, brand, text, price and stock.",
		withLimit(params{
			"product_id":    str("Exact product id"),
			"category":      enum("Product category", domainx.ProductCategories),
			"brand":         str("Brand name, case-insensitive"),
			"text":          str("Text matched against name and SKU"),
			"min_price":     number("Minimum unit price in USD"),
			"max_price":     number("Maximum unit price in USD"),
			"in_stock_only": boolean("Only products with stock on hand"),
			"min_stock":     integer("Minimum units in stock"),
			"max_stock":     integer("Maximum units in stock"),
		}), both, bind(svc.SearchProducts))

	c.add("get_product", "Fetch one product with specs, price, stock and warranty months.",
		params{"product_id": req(str("Catalog product id"))}, both,
		bind(func(ctx context.Context, in productArgs) (*domainx.Product, error) {
			return svc.GetProduct(ctx, in.ProductID)
		}))

	c.add("search_customers", "Find customer records by id, name, email, phone, tier or address.",
		withLimit(withRange(params{
			"customer_id":  str("Exact customer id"),
			"name":         str("Name, partial match"),
			"email":        str("Email, case-insensitive"),
			"phone":        str("Phone, formatting ignored"),
			"loyalty_tier": enum("Loyalty tier", domainx.LoyaltyTiers),
			"address_text": str("Text matched against the default address"),
		}, "created", "created")), both, bind(svc.SearchCustomers))

	c.add("verify_customer", "Verify a customer's identity. Give at least two of email, phone and ZIP code; every one given must match.",
		params{
			"customer_id": req(str("Customer id to verify")),
			"email":       str("Email the customer provided"),
			"phone":       str("Phone the customer provided"),
			"zip_code":    str("ZIP code of the customer's default address"),
		}, both, bind(svc.VerifyCustomer))

	c.add("search_knowledge_base", "Search support articles by text, category or tags.",
		withLimit(withRange(withRange(params{
			"text":     str("Text matched against title and content"),
			"category": str("Article category"),
			"tags":     strList("Every tag must be present, case-insensitive"),
		}, "created", "created"), "updated", "updated")), both, bind(svc.SearchKnowledgeBase))

	c.add("calculate_price", "Quote a list of items with loyalty discount, promo code and shipping. total is before tax; tax is charged on the discounted items, not shipping, and grand_total includes it.",
		params{
			"items":            req(lineItems("Items to price")),
			"customer_id":      str("Customer whose loyalty tier applies"),
			"loyalty_tier":     enum("Loyalty tier when no customer is given", domainx.LoyaltyTiers),
			"shipping_service": enum("Shipping service", domainx.ShippingServices),
			"promo_code":       str("Promo code to apply"),
			"tax_rate":         number("Tax rate as a fraction, default 0.08"),
		}, sales, bind(svc.CalculatePrice))

	c.add("validate_promo_code", "Check a promo code and describe its discount.",
		params{"promo_code": req(str("Promo code"))}, sales,
		bind(func(_ context.Context, in promoArgs) (any, error) {
			return svc.ValidatePromoCode(in.PromoCode), nil
		}))

	c.add("get_shipping_estimate", "Estimate shipping cost and delivery days for a service level.",
		params{
			"shipping_service": req(enum("Shipping service", domainx.ShippingServices)),
			"destination_zip":  str("Destination ZIP code"),
		}, sales,
		bind(func(_ context.Context, in shippingArgs) (any, error) {
			if !in.ShippingService.Valid() {
				return nil, invalidArgs("shipping_service %q is not a valid value", in.ShippingService)
			}
			return svc.GetShippingEstimate(in.ShippingService, in.DestinationZip), nil
		}))

	c.add("validate_build_compatibility", "Check that a set of parts work together: socket, memory, form factor, clearances and PSU headroom.",
		params{"product_ids": req(strList("Product ids in the build, repeats allowed"))}, sales,
		bind(func(ctx context.Context, in compatibilityArgs) (any, error) {
			return svc.ValidateBuildCompatibility(ctx, in.ProductIDs)
		}))

	c.add("create_build", "Save a named custom PC parts list for a customer.",
		params{
			"name":        req(str("Build name")),
			"customer_id": req(str("Owner customer id")),
			"product_ids": req(strList("Product ids, repeats allowed")),
		}, sales, bind(svc.CreateBuild))

	c.add("create_and_order_build", "Save a complete custom PC build and place a pending order for its parts in one step. The parts must cover cpu, motherboard, memory, storage, psu and case and be compatible. Needs a manager or an employee allowed to approve custom builds.",
		params{
			"customer_id":      req(str("Customer id")),
			"name":             req(str("Build name")),
			"components":       req(lineItems("Build parts; qty defaults to 1")),
			"shipping_service": enum("Shipping service", domainx.ShippingServices),
			"shipping_address": shippingAddress(),
			"approved_by_id":   str("Employee approving the custom build order"),
		}, sales, bind(svc.CreateAndOrderBuild))

	c.add("update_build", "Rename a saved build or add and remove parts.",
		params{
			"build_id":           req(str("Build id")),
			"name":               str("New name"),
			"add_product_ids":    strList("Parts to add"),
			"remove_product_ids": strList("Parts to remove, one occurrence each"),
		}, sales, bind(svc.UpdateBuild))

	c.add("search_builds", "Find saved builds by id, name or customer.",
		withLimit(withRange(params{
			"build_id":    str("Exact build id"),
			"name":        str("Name, partial match"),
			"customer_id": str("Owner customer id"),
		}, "created", "created")), sales, bind(svc.SearchBuilds))
}

func (c *Catalog) registerOrderTools() {
	svc := c.svc

	c.add("search_orders", "Find orders by id, customer, status, build or contained product, newest first.",
		withLimit(withRange(params{
			"order_id":    str("Exact order id"),
			"customer_id": str("Customer id"),
			"status":      enum("Order status", domainx.OrderStatuses),
			"build_id":    str("Build id"),
			"product_id":  str("Orders containing this product"),
		}, "created", "created")), support, bind(svc.SearchOrders))

	c.add("get_order_details", "Fetch an order with its latest payment, latest shipment, customer contact and the order's support tickets. Refunds and totals are not included.",
		params{
			"order_id":       req(str("Order id")),
			"created_before": timestamp("Hide payments, shipments and tickets created after this time; the order itself is always returned"),
		}, support,
		bind(func(ctx context.Context, in orderDetailsArgs) (*servicex.OrderDetails, error) {
			return svc.GetOrderDetails(ctx, in.OrderID, in.CreatedBefore)
		}))

	c.add("create_order", "Place an order for a customer. Custom build orders need a manager or an employee allowed to approve custom builds.",
		params{
			"customer_id":      req(str("Customer id")),
			"line_items":       req(lineItems("Ordered items")),
			"status":           enum("Initial status, default pending", domainx.OrderStatuses),
			"build_id":         str("Custom build this order fulfils"),
			"shipping_service": enum("Shipping service", domainx.ShippingServices),
			"shipping_address": shippingAddress(),
			"approved_by_id":   str("Employee approving a custom build order"),
		}, sales, bind(svc.CreateOrder))

	c.add("cancel_order", "Cancel an order that has not shipped. Captured payments are refunded, authorized ones voided.",
		params{
			"order_id": req(str("Order id")),
			"reason":   req(str("Why the order is cancelled")),
		}, support,
		bind(func(ctx context.Context, in cancelOrderArgs) (*servicex.CancelOrderResult, error) {
			return svc.CancelOrder(ctx, in.OrderID, in.Reason)
		}))

	c.add("update_order_status", "Move an order to a new status along the allowed transitions.",
		params{
			"order_id": req(str("Order id")),
			"status":   req(enum("Target status", domainx.OrderStatuses)),
		}, support,
		bind(func(ctx context.Context, in orderStatusArgs) (*domainx.Order, error) {
			return svc.UpdateOrderStatus(ctx, in.OrderID, in.Status)
		}))

	c.add("search_payments", "Find payments by id, order or status.",
		withLimit(withRange(withRange(params{
			"payment_id": str("Exact payment id"),
			"order_id":   str("Order id"),
			"status":     enum("Payment status", domainx.PaymentStatuses),
		}, "created", "created"), "processed", "processed")), support, bind(svc.SearchPayments))

	c.add("update_payment_status", "Move a payment to a new status along the allowed transitions.",
		params{
			"payment_id":     req(str("Payment id")),
			"status":         req(enum("Target status", domainx.PaymentStatuses)),
			"failure_reason": str("Reason, only for failed payments"),
		}, support, bind(svc.UpdatePaymentStatus))

	c.add("search_shipments", "Find shipments by id, order, tracking number or status.",
		withLimit(withRange(params{
			"shipment_id":     str("Exact shipment id"),
			"order_id":        str("Order id"),
			"tracking_number": str("Carrier tracking number"),
			"status":          str("Shipment status"),
		}, "created", "created")), support, bind(svc.SearchShipments))
}

func (c *Catalog) registerSupportTools() {
	svc := c.svc

	c.add("process_refund", "Refund part or all of a captured payment. Shipping is never refunded and refunds over $2,500 need finance approval.",
		params{
			"payment_id":     req(str("Payment id")),
			"amount":         req(number("Refund amount in the payment currency")),
			"currency":       str("Currency, defaults to the payment's"),
			"reason":         req(enum("Refund reason", domainx.RefundReasons)),
			"status":         enum("Refund status, default pending", domainx.RefundStatuses),
			"ticket_id":      str("Support ticket the refund belongs to"),
			"notes":          str("Notes for the refund record"),
			"lines":          lineItems("Refunded items; when given the amount must equal their value"),
			"approved_by_id": str("Employee approving a high value refund"),
		}, support, bind(svc.ProcessRefund))

	c.add("search_refunds", "Find refunds by id, payment, ticket, reason or status.",
		withLimit(withRange(withRange(params{
			"refund_id":  str("Exact refund id"),
			"payment_id": str("Payment id"),
			"ticket_id":  str("Ticket id"),
			"reason":     enum("Refund reason", domainx.RefundReasons),
			"status":     enum("Refund status", domainx.RefundStatuses),
		}, "created", "created"), "processed", "processed")), support, bind(svc.SearchRefunds))

	c.add("search_tickets", "Find support tickets by customer, order, assignee, status, priority, type or text.",
		withLimit(withRange(withRange(withRange(params{
			"ticket_id":            str("Exact ticket id"),
			"customer_id":          str("Customer id"),
			"order_id":             str("Order id"),
			"assigned_employee_id": str("Assigned employee id"),
			"status":               enum("Ticket status", domainx.TicketStatuses),
			"priority":             enum("Ticket priority", domainx.TicketPriorities),
			"ticket_type":          enum("Ticket type", domainx.TicketTypes),
			"text":                 str("Text matched against subject and description"),
		}, "created", "created"), "updated", "updated"), "resolved", "resolved")), support, bind(svc.SearchTickets))

	c.add("get_customer_ticket_history", "Summarize a customer's tickets and flag high contact volume.",
		withRange(withRange(params{
			"customer_id":      req(str("Customer id")),
			"include_resolved": boolean("Include resolved and closed tickets, default true"),
		}, "created", "created"), "updated", "updated"), support, bind(svc.GetCustomerTicketHistory))

	c.add("analyze_customer_value", "Summarize a customer's orders, revenue net of approved refunds, average order value, orders per month, estimated lifetime value, payment methods and support tickets, with a value segment.",
		params{"customer_id": req(str("Customer id"))}, support, bind(svc.AnalyzeCustomerValue))

	c.add("get_entities_needing_attention", "List the staff work queue: unfinished tickets with high priority ones as urgent, pending refunds, failed payments, unresolved escalations and cancelled orders.",
		params{}, staffOnly,
		bind(func(ctx context.Context, _ struct{}) (*servicex.AttentionReport, error) {
			return svc.GetEntitiesNeedingAttention(ctx)
		}))

	c.add("update_ticket", "Change a ticket's status, priority or assignee.",
		params{
			"ticket_id":            req(str("Ticket id")),
			"status":               enum("New status", domainx.TicketStatuses),
			"priority":             enum("New priority", domainx.TicketPriorities),
			"assigned_employee_id": str("Employee to assign"),
		}, support, bind(svc.UpdateTicketStatus))

	c.add("create_escalation", "Escalate a ticket to another team.",
		params{
			"ticket_id":       req(str("Ticket id")),
			"escalation_type": req(enum("Escalation type", domainx.EscalationTypes)),
			"destination":     req(enum("Receiving team", domainx.Destinations)),
			"notes":           str("Context for the receiving team"),
		}, support, bind(svc.CreateEscalation))

	c.add("search_escalations", "Find escalations by ticket, type or destination.",
		withLimit(withRange(withRange(params{
			"escalation_id":   str("Exact escalation id"),
			"ticket_id":       str("Ticket id"),
			"escalation_type": enum("Escalation type", domainx.EscalationTypes),
			"destination":     enum("Receiving team", domainx.Destinations),
			"notes":           str("Text matched against notes"),
		}, "created", "created"), "resolved", "resolved")), support, bind(svc.SearchEscalations))

	c.add("create_resolution", "Record how a ticket was resolved, optionally closing it and notifying the customer.",
		params{
			"ticket_id":        req(str("Ticket id")),
			"outcome":          req(enum("Resolution outcome", domainx.ResolutionOutcomes)),
			"linked_refund_id": str("Refund issued for this ticket"),
			"resolved_by_id":   str("Employee resolving the ticket"),
			"notes":            str("Resolution notes"),
			"close_ticket":     boolean("Close the ticket"),
			"notify_customer":  boolean("Send the customer a notification"),
		}, support, bind(svc.CreateResolution))

	c.add("search_resolutions", "Find ticket resolutions by ticket, outcome, employee or linked refund.",
		withLimit(withRange(params{
			"resolution_id":    str("Exact resolution id"),
			"ticket_id":        str("Ticket id"),
			"outcome":          enum("Resolution outcome", domainx.ResolutionOutcomes),
			"resolved_by_id":   str("Employee id"),
			"linked_refund_id": str("Refund id"),
			"notes":            str("Text matched against notes"),
		}, "created", "created")), support, bind(svc.SearchResolutions))

	c.add("check_warranty_status", "Compute warranty coverage for a purchased product from an order or a purchase date, as of the store's current date. An unknown order id is a not-found error, not an uncovered result.",
		params{
			"order_id":      str("Order the product was bought in"),
			"product_id":    str("Product id"),
			"purchase_date": timestamp("Purchase date when there is no order"),
		}, support, bind(svc.CheckWarrantyStatus))

	c.add("create_warranty_claim", "Open a warranty claim for a component the customer bought. Prebuilt systems and expired warranties are rejected.",
		params{
			"product_id":    req(str("Product id")),
			"order_id":      req(str("Order containing the product")),
			"customer_id":   req(str("Customer who owns the order")),
			"reason":        req(enum("Claim reason", domainx.WarrantyClaimReasons)),
			"status":        enum("Claim status, default pending_review", domainx.WarrantyClaimStatuses),
			"denial_reason": enum("Required when status is denied", domainx.DenialReasons),
			"notes":         str("Symptoms and troubleshooting done"),
		}, support, bind(svc.CreateWarrantyClaim))

	c.add("search_warranty_claims", "Find warranty claims by id, product, order, customer or status.",
		withLimit(withRange(params{
			"claim_id":    str("Exact claim id"),
			"product_id":  str("Product id"),
			"order_id":    str("Order id"),
			"customer_id": str("Customer id"),
			"status":      enum("Claim status", domainx.WarrantyClaimStatuses),
		}, "created", "created")), support, bind(svc.SearchWarrantyClaims))

	c.add("search_employees", "Find employees by department, title or permission, e.g. approvers.",
		withLimit(params{
			"employee_id":    str("Exact employee id"),
			"name":           str("Name, partial match"),
			"department":     str("Department"),
			"title":          str("Job title"),
			"has_permission": str("Permission the employee must hold"),
		}), both, bind(svc.SearchEmployees))
}
