package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	servicex "github.com/tanpawarit/corecraft-support/retail/service"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

type failingStore struct {
	storex.Store
}

func (failingStore) SearchProducts(context.Context, storex.ProductFilter) ([]*domainx.Product, error) {
	return nil, errors.New("connection reset")
}

func newCatalog(t *testing.T, st storex.Store) (*Catalog, *metricsx.Registry) {
	t.Helper()
	if st == nil {
		fx, err := storex.DefaultFixture()
		if err != nil {
			t.Fatalf("DefaultFixture() error = %v", err)
		}
		mem := storex.NewMemoryStore()
		if err := mem.Seed(context.Background(), fx); err != nil {
			t.Fatalf("Seed() error = %v", err)
		}
		st = mem
	}
	svc, err := servicex.New(st, policyx.MustDefault(), nil, nil, servicex.Config{
		Now: func() time.Time { return time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}
	reg := metricsx.NewRegistry()
	c, err := NewCatalog(svc, WithMetrics(reg))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c, reg
}

func names(c *Catalog, agent contractx.AgentType) map[string]bool {
	out := map[string]bool{}
	for _, info := range c.InfosForAgent(agent) {
		out[info.Name] = true
	}
	return out
}

func TestBuildForAgentSplitsTools(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	sales, support := names(c, contractx.AgentTypeSales), names(c, contractx.AgentTypeSupport)

	for _, name := range []string{"search_products", "calculate_price", "create_build", "validate_build_compatibility", "create_order"} {
		if !sales[name] {
			t.Fatalf("sales is missing %s", name)
		}
	}
	for _, name := range []string{"cancel_order", "process_refund", "create_warranty_claim", "update_ticket", "create_escalation", "create_resolution"} {
		if !support[name] {
			t.Fatalf("support is missing %s", name)
		}
		if sales[name] {
			t.Fatalf("sales must not see %s", name)
		}
	}
	for _, name := range []string{"search_knowledge_base", "verify_customer", ToolMathEvaluate} {
		if !sales[name] || !support[name] {
			t.Fatalf("%s must be shared", name)
		}
	}
	if support["create_order"] {
		t.Fatal("support must not create orders")
	}
	if got := len(c.InfosForAgent(contractx.AgentTypeStaff)); got != len(c.Names()) {
		t.Fatalf("staff sees %d of %d tools", got, len(c.Names()))
	}
	if len(c.InfosForAgent(contractx.AgentTypeOrchestrator)) != 0 {
		t.Fatal("the orchestrator has no tools")
	}

	infos, executor := c.BuildForAgent(contractx.AgentTypeSales)
	if len(infos) == 0 || executor == nil {
		t.Fatal("BuildForAgent must return tools and an executor")
	}
}

func TestExecuteUnavailableTool(t *testing.T) {
	t.Parallel()

	c, reg := newCatalog(t, nil)
	out, err := c.Execute(context.Background(), contractx.AgentTypeSales, []contractx.ToolRequest{
		{Tool: "process_refund", Args: map[string]any{"payment_id": "pay_5002"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out) != 1 || !strings.Contains(out[0].Error, contractx.ErrToolUnavailable.Error()) {
		t.Fatalf("unexpected result: %+v", out)
	}
	if got := testutil.ToFloat64(reg.ToolCalls.WithLabelValues("sales", "process_refund", metricsx.OutcomeError)); got != 1 {
		t.Fatalf("tool error metric = %v", got)
	}
}

func TestExecuteReturnsServiceResults(t *testing.T) {
	t.Parallel()

	c, reg := newCatalog(t, nil)
	exec := c.NewExecutor(contractx.AgentTypeSupport)

	out, err := exec(context.Background(), "get_order_details", map[string]any{"order_id": "ord_4002"})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	details, ok := out.Result.(*servicex.OrderDetails)
	if out.Error != "" || !ok {
		t.Fatalf("unexpected result: %+v", out)
	}
	if details.Order.ID != "ord_4002" {
		t.Fatalf("order = %s", details.Order.ID)
	}
	if got := testutil.ToFloat64(reg.ToolCalls.WithLabelValues("support", "get_order_details", metricsx.OutcomeOK)); got != 1 {
		t.Fatalf("tool ok metric = %v", got)
	}

	out, _ = exec(context.Background(), "get_order_details", map[string]any{"order_id": "ord_nope"})
	if !strings.Contains(out.Error, "not found") {
		t.Fatalf("missing order must be a tool error: %+v", out)
	}
}

func TestExecuteReportsPolicyDenials(t *testing.T) {
	t.Parallel()

	c, reg := newCatalog(t, nil)
	out, err := c.ExecuteOne(context.Background(), contractx.AgentTypeSupport, contractx.ToolRequest{
		Tool: "process_refund",
		Args: map[string]any{"payment_id": "pay_5002", "amount": 509.98, "reason": "customer_remorse"},
	})
	if err != nil {
		t.Fatalf("ExecuteOne() error = %v", err)
	}
	if out.Error == "" || len(out.Denials) == 0 {
		t.Fatalf("refund including shipping must be denied: %+v", out)
	}
	found := false
	for _, rule := range out.Denials {
		found = found || rule == "refund.excludes_shipping"
	}
	if !found {
		t.Fatalf("denials = %v", out.Denials)
	}
	if got := testutil.ToFloat64(reg.ToolCalls.WithLabelValues("support", "process_refund", metricsx.OutcomeDenied)); got != 1 {
		t.Fatalf("tool denied metric = %v", got)
	}
}

func TestExecuteRejectsBadArguments(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	out, err := c.ExecuteOne(context.Background(), contractx.AgentTypeSales, contractx.ToolRequest{
		Tool: "create_build",
		Args: map[string]any{"name": "Rig", "customer_id": "cust_1001", "product_ids": "cpu_r7_7800x3d"},
	})
	if err != nil {
		t.Fatalf("ExecuteOne() error = %v", err)
	}
	if !strings.Contains(out.Error, "do not match the tool schema") {
		t.Fatalf("expected schema error, got %+v", out)
	}
}

func TestExecuteInfrastructureErrorFailsTurn(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, failingStore{Store: storex.NewMemoryStore()})
	out, err := c.Execute(context.Background(), contractx.AgentTypeSales, []contractx.ToolRequest{
		{Tool: ToolMathEvaluate, Args: map[string]any{"expression": "1 + 1"}},
		{Tool: "search_products", Args: map[string]any{"text": "rtx"}},
	})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("results before the failure must be kept: %+v", out)
	}
}

func TestMathEvaluate(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	exec := c.NewExecutor(contractx.AgentTypeSales)

	cases := []struct {
		expr string
		want float64
		err  bool
	}{
		{expr: "2 + 3 * (4 - 1)", want: 11},
		{expr: "7 / 2", want: 3.5},
		{expr: "0.1 + 0.2", want: 0.3},
		{expr: "(129.99 * 2) + 9.99", want: 269.97},
		{expr: "2 - -3", want: 5},
		{expr: ".5 * 4", want: 2},
		{expr: "100 * .08", want: 8},
		{expr: "3. + 1", want: 4},
		{expr: "2 + abc", err: true},
		{expr: "(1 + 2", err: true},
		{expr: "1 / 0", err: true},
		{expr: "", err: true},
		{expr: "1.2.3", err: true},
	}
	for _, tc := range cases {
		out, err := exec(context.Background(), ToolMathEvaluate, map[string]any{"expression": tc.expr})
		if err != nil {
			t.Fatalf("%q: executor error = %v", tc.expr, err)
		}
		if tc.err {
			if out.Error == "" {
				t.Fatalf("%q: expected tool error", tc.expr)
			}
			continue
		}
		res, ok := out.Result.(MathEvaluateOutput)
		if !ok || out.Error != "" {
			t.Fatalf("%q: unexpected result %+v", tc.expr, out)
		}
		if res.Result != tc.want {
			t.Fatalf("%q = %v, want %v", tc.expr, res.Result, tc.want)
		}
	}
}

func TestOrderDetailsCutoffHidesRelatedRows(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	exec := c.NewExecutor(contractx.AgentTypeSupport)

	out, err := exec(context.Background(), "get_order_details", map[string]any{
		"order_id":       "ord_4002",
		"created_before": "2000-01-01",
	})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	details, ok := out.Result.(*servicex.OrderDetails)
	if out.Error != "" || !ok {
		t.Fatalf("a cutoff before the order must still return it: %+v", out)
	}
	if details.Order.ID != "ord_4002" || details.Payment != nil || details.Shipment != nil || len(details.Tickets) != 0 {
		t.Fatalf("rows after the cutoff leaked: %+v", details)
	}

	for _, info := range c.InfosForAgent(contractx.AgentTypeSupport) {
		if info.Name == "get_order_details" && strings.Contains(info.Desc, "refunds") && !strings.Contains(info.Desc, "Refunds and totals are not included") {
			t.Fatalf("description promises data the tool does not return: %q", info.Desc)
		}
	}
}

func TestWarrantyUnknownOrderIsNotFound(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	exec := c.NewExecutor(contractx.AgentTypeSupport)

	out, err := exec(context.Background(), "check_warranty_status", map[string]any{"order_id": "ord_missing"})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	if out.Result != nil || !strings.Contains(out.Error, "not found") {
		t.Fatalf("unknown order must surface as not found: %+v", out)
	}
}

func TestAccountInsightToolsByAgent(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	sales, support := names(c, contractx.AgentTypeSales), names(c, contractx.AgentTypeSupport)
	if !sales["create_and_order_build"] || support["create_and_order_build"] {
		t.Fatal("create_and_order_build belongs to sales")
	}
	if !support["analyze_customer_value"] || sales["analyze_customer_value"] {
		t.Fatal("analyze_customer_value belongs to support")
	}
	if sales["get_entities_needing_attention"] || support["get_entities_needing_attention"] {
		t.Fatal("the attention queue is staff only")
	}

	out, err := c.NewExecutor(contractx.AgentTypeStaff)(context.Background(), "get_entities_needing_attention", nil)
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	report, ok := out.Result.(*servicex.AttentionReport)
	if out.Error != "" || !ok || report.Total != 3 {
		t.Fatalf("unexpected attention report: %+v", out)
	}

	out, err = c.NewExecutor(contractx.AgentTypeSupport)(context.Background(), "analyze_customer_value", map[string]any{"customer_id": "cust_1003"})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	value, ok := out.Result.(*servicex.CustomerValue)
	if out.Error != "" || !ok || value.Segment != servicex.SegmentMediumValue {
		t.Fatalf("unexpected customer value: %+v", out)
	}
}

func TestCreateAndOrderBuildTool(t *testing.T) {
	t.Parallel()

	c, _ := newCatalog(t, nil)
	exec := c.NewExecutor(contractx.AgentTypeSales)
	components := []any{
		map[string]any{"product_id": "cpu_r7_7800x3d", "qty": 1},
		map[string]any{"product_id": "mb_b650_tomahawk"},
		map[string]any{"product_id": "ram_ddr5_6000_32", "qty": 1},
		map[string]any{"product_id": "ssd_990pro_2tb", "qty": 1},
	}

	out, err := exec(context.Background(), "create_and_order_build", map[string]any{
		"customer_id": "cust_1001", "name": "Half a PC", "components": components, "approved_by_id": "emp_2003",
	})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	if out.Result != nil || !strings.Contains(out.Error, "missing required component categories: psu, case") {
		t.Fatalf("incomplete build must be a tool error: %+v", out)
	}

	components = append(components,
		map[string]any{"product_id": "psu_rm850x", "qty": 1},
		map[string]any{"product_id": "case_lancool216", "qty": 1},
	)
	out, err = exec(context.Background(), "create_and_order_build", map[string]any{
		"customer_id": "cust_1001", "name": "Whole PC", "components": components, "approved_by_id": "emp_2003",
	})
	if err != nil {
		t.Fatalf("executor error = %v", err)
	}
	res, ok := out.Result.(*servicex.CreateAndOrderBuildResult)
	if out.Error != "" || !ok || res.Order.BuildID != res.Build.ID {
		t.Fatalf("unexpected result: %+v", out)
	}
}
