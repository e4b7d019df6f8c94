package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
)

type fakeStore struct {
	loadState *statex.SessionState
	loadErr   error
	saveErr   error
	saved     []*statex.SessionState
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (*statex.SessionState, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loadState == nil {
		return nil, statex.ErrStateNotFound
	}
	return cloneSessionState(f.loadState), nil
}

func (f *fakeStore) Save(ctx context.Context, st *statex.SessionState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, cloneSessionState(st))
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	return nil
}

type memoryWrite struct {
	customerID string
	update     string
}

type fakeMemory struct {
	summary  string
	readErr  error
	writeErr error
	writes   []memoryWrite
}

func (f *fakeMemory) ReadSummary(ctx context.Context, customerID string) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.summary, nil
}

func (f *fakeMemory) WriteSummary(ctx context.Context, customerID string, update string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, memoryWrite{customerID: customerID, update: update})
	return nil
}

type fakePlanner struct {
	resp  contractx.PlannerResponse
	err   error
	calls int
}

func (f *fakePlanner) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.PlannerResponse, error) {
	f.calls++
	if f.err != nil {
		return contractx.PlannerResponse{}, f.err
	}
	return f.resp, nil
}

type fakeSpecialist struct {
	responses []contractx.SpecialistResponse
	err       error
	calls     int
	lastReqs  []contractx.SpecialistRequest
}

func (f *fakeSpecialist) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	f.calls++
	f.lastReqs = append(f.lastReqs, req)
	if f.err != nil {
		return contractx.SpecialistResponse{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		return contractx.SpecialistResponse{}, fmt.Errorf("no specialist response left at call=%d", f.calls)
	}
	return f.responses[idx], nil
}

type toolCallRecord struct {
	agentType contractx.AgentType
	reqs      []contractx.ToolRequest
}

type fakeTools struct {
	results map[string]contractx.ToolResult
	err     error
	calls   []toolCallRecord
}

func (f *fakeTools) Execute(ctx context.Context, agentType contractx.AgentType, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	f.calls = append(f.calls, toolCallRecord{
		agentType: agentType,
		reqs:      append([]contractx.ToolRequest(nil), reqs...),
	})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]contractx.ToolResult, 0, len(reqs))
	for _, r := range reqs {
		res, ok := f.results[r.Tool]
		if !ok {
			res = contractx.ToolResult{Tool: r.Tool, Result: "ok"}
		}
		out = append(out, res)
	}
	return out, nil
}

type fakeRegistry struct {
	planner contractx.Planner
	sales   contractx.Specialist
	support contractx.Specialist
}

func (f *fakeRegistry) Planner() contractx.Planner {
	return f.planner
}

func (f *fakeRegistry) Sales() contractx.Specialist {
	return f.sales
}

func (f *fakeRegistry) Support() contractx.Specialist {
	return f.support
}

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func plannerFor(goalType string) *fakePlanner {
	return &fakePlanner{
		resp: contractx.PlannerResponse{
			Goal: contractx.GoalPatch{GoalType: goalType},
		},
	}
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{
			planner: &fakePlanner{},
			sales:   &fakeSpecialist{},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		&fakeMemory{},
	)

	_, err := o.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), "s1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{planner: &fakePlanner{}, sales: &fakeSpecialist{}, support: &fakeSpecialist{}}
	if _, err := New(nil, registry, &fakeTools{}, nil, Config{}); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := New(&fakeStore{}, nil, &fakeTools{}, nil, Config{}); err == nil {
		t.Fatal("expected error for missing registry")
	}
	if _, err := New(&fakeStore{}, registry, nil, nil, Config{}); err == nil {
		t.Fatal("expected error for missing tool gateway")
	}
	o, err := New(&fakeStore{}, registry, &fakeTools{}, nil, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if o.maxToolRounds != 4 || o.workspaceID != "corecraft" || o.channelType != "chat" {
		t.Fatalf("unexpected defaults: rounds=%d workspace=%s channel=%s", o.maxToolRounds, o.workspaceID, o.channelType)
	}
}

func TestHandleMessageNoToolPath(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	planner := &fakePlanner{
		resp: contractx.PlannerResponse{
			Goal: contractx.GoalPatch{
				GoalType:   statex.GoalSalesRecommend,
				SlotsPatch: map[string]any{"use_case": "1440p gaming"},
			},
		},
	}
	sales := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			{
				Message: "For 1440p gaming, what budget do you have in mind?",
				StateUpdates: contractx.StateUpdates{
					Missing:      []string{"budget"},
					NextQuestion: "What is your budget?",
					SetStatus:    string(statex.GoalBlocked),
					MemoryUpdate: "Plays games at 1440p.",
				},
			},
		},
	}
	memory := &fakeMemory{summary: "Prefers quiet cases."}
	tools := &fakeTools{}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: planner, sales: sales, support: &fakeSpecialist{}},
		tools,
		memory,
	)

	out, err := o.Handle(context.Background(), Input{SessionID: "sess-1", CustomerID: "cust_1001", Text: "I need a GPU for 1440p gaming"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Reply != "For 1440p gaming, what budget do you have in mind?" {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.GoalType != statex.GoalSalesRecommend || out.GoalStatus != string(statex.GoalBlocked) {
		t.Fatalf("unexpected goal in output: %+v", out)
	}
	if planner.calls != 1 || sales.calls != 1 {
		t.Fatalf("planner calls=%d sales calls=%d, want 1 and 1", planner.calls, sales.calls)
	}
	if len(tools.calls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(tools.calls))
	}
	if got := sales.lastReqs[0]; got.MemorySummary != "Prefers quiet cases." || got.CustomerID != "cust_1001" || got.Finalize {
		t.Fatalf("unexpected specialist request: %+v", got)
	}

	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}
	saved := store.saved[0]
	if saved.Turns != 1 || saved.CustomerID != "cust_1001" {
		t.Fatalf("unexpected saved session: turns=%d customer=%s", saved.Turns, saved.CustomerID)
	}
	goal := saved.ActiveGoal()
	if goal == nil || goal.Priority != statex.DefaultPriority(statex.GoalSalesRecommend) {
		t.Fatalf("expected default priority goal, got %+v", goal)
	}
	if goal.SlotString("use_case") != "1440p gaming" || goal.NextQuestion != "What is your budget?" {
		t.Fatalf("unexpected goal slots: %+v", goal)
	}

	if len(memory.writes) != 1 || memory.writes[0].customerID != "cust_1001" || memory.writes[0].update != "Plays games at 1440p." {
		t.Fatalf("unexpected memory writes: %+v", memory.writes)
	}
}

func TestHandleMessageToolPath(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	support := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			{
				ToolRequests: []contractx.ToolRequest{
					{Tool: "get_order_details", Args: map[string]any{"order_id": "ord_4002"}},
				},
			},
			{
				Message: "Order ord_4002 shipped with UPS and should arrive Friday.",
				StateUpdates: contractx.StateUpdates{
					SetStatus: string(statex.GoalDone),
				},
			},
		},
	}
	tools := &fakeTools{
		results: map[string]contractx.ToolResult{
			"get_order_details": {Tool: "get_order_details", Result: map[string]any{"status": "fulfilled"}},
		},
	}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: plannerFor(statex.GoalSupportOrderStatus), sales: &fakeSpecialist{}, support: support},
		tools,
		&fakeMemory{},
	)

	out, err := o.Handle(context.Background(), Input{SessionID: "sess-2", Text: "Where is order ord_4002?"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Reply != "Order ord_4002 shipped with UPS and should arrive Friday." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if support.calls != 2 {
		t.Fatalf("expected support specialist called twice, got %d", support.calls)
	}
	if len(tools.calls) != 1 {
		t.Fatalf("expected one tool execution, got %d", len(tools.calls))
	}
	if tools.calls[0].agentType != contractx.AgentTypeSupport {
		t.Fatalf("unexpected tool agent type: %s", tools.calls[0].agentType)
	}
	second := support.lastReqs[1]
	if len(second.ToolResults) != 1 || second.ToolResults[0].Tool != "get_order_details" {
		t.Fatalf("tool results not fed back: %+v", second.ToolResults)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0] != "get_order_details" {
		t.Fatalf("unexpected tool calls in output: %v", out.ToolCalls)
	}

	saved := store.saved[0]
	if saved.ActiveGoalID != "" {
		t.Fatalf("done goal must leave no active goal, got %s", saved.ActiveGoalID)
	}
	for _, g := range saved.Goals {
		if g.ToolCalls != 1 || !g.IsDone() {
			t.Fatalf("unexpected goal after tool path: %+v", g)
		}
	}
}

func TestHandleMessageExecutesOneToolPerStep(t *testing.T) {
	t.Parallel()

	support := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			{
				ToolRequests: []contractx.ToolRequest{
					{Tool: "search_orders", Args: map[string]any{"customer_id": "cust_1001"}},
					{Tool: "search_refunds", Args: map[string]any{"customer_id": "cust_1001"}},
				},
			},
			{Message: "You have one open order."},
		},
	}
	tools := &fakeTools{}

	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{planner: plannerFor(statex.GoalSupportOrderStatus), sales: &fakeSpecialist{}, support: support},
		tools,
		&fakeMemory{},
	)

	if _, err := o.HandleMessage(context.Background(), "sess-3", "What orders do I have?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(tools.calls) != 1 || len(tools.calls[0].reqs) != 1 || tools.calls[0].reqs[0].Tool != "search_orders" {
		t.Fatalf("expected only the first tool request executed, got %+v", tools.calls)
	}
}

func TestHandleMessageFinalizesWhenRoundsExhausted(t *testing.T) {
	t.Parallel()

	lookup := contractx.SpecialistResponse{
		ToolRequests: []contractx.ToolRequest{{Tool: "search_knowledge_base", Args: map[string]any{"query": "no post"}}},
	}
	support := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			lookup,
			lookup,
			{Message: "Try reseating the RAM and clearing CMOS."},
		},
	}
	tools := &fakeTools{}

	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{planner: plannerFor(statex.GoalSupportTechnical), sales: &fakeSpecialist{}, support: support},
		tools,
		&fakeMemory{},
		func(c *Config) { c.MaxToolRounds = 2 },
	)

	reply, err := o.HandleMessage(context.Background(), "sess-4", "My new build does not POST")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply != "Try reseating the RAM and clearing CMOS." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(tools.calls) != 2 {
		t.Fatalf("expected two tool executions, got %d", len(tools.calls))
	}
	if support.calls != 3 {
		t.Fatalf("expected three specialist calls, got %d", support.calls)
	}
	if support.lastReqs[1].Finalize || !support.lastReqs[2].Finalize {
		t.Fatalf("only the last request must finalize: %+v", support.lastReqs)
	}
	if len(support.lastReqs[2].ToolResults) != 2 {
		t.Fatalf("final request must carry every tool result, got %d", len(support.lastReqs[2].ToolResults))
	}
}

func TestHandleMessageToolsAfterFinalizeFail(t *testing.T) {
	t.Parallel()

	lookup := contractx.SpecialistResponse{
		ToolRequests: []contractx.ToolRequest{{Tool: "search_products"}},
	}
	store := &fakeStore{}
	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales:   &fakeSpecialist{responses: []contractx.SpecialistResponse{lookup, lookup}},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		&fakeMemory{},
		func(c *Config) { c.MaxToolRounds = 1 },
	)

	_, err := o.HandleMessage(context.Background(), "sess-5", "Show me cases")
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("failed turn must not save state, got %d saves", len(store.saved))
	}
}

func TestHandleMessageToolGatewayErrorFailsTurn(t *testing.T) {
	t.Parallel()

	gatewayErr := errors.New("connection reset")
	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{
			planner: plannerFor(statex.GoalSupportOrderStatus),
			sales:   &fakeSpecialist{},
			support: &fakeSpecialist{responses: []contractx.SpecialistResponse{
				{ToolRequests: []contractx.ToolRequest{{Tool: "search_orders"}}},
			}},
		},
		&fakeTools{err: gatewayErr},
		&fakeMemory{},
	)

	_, err := o.HandleMessage(context.Background(), "sess-6", "Where is my order?")
	if !errors.Is(err, gatewayErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !strings.Contains(err.Error(), "search_orders") {
		t.Fatalf("error must name the tool: %v", err)
	}
}

func TestHandleMessageVerifyCustomerBindsSession(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	memory := &fakeMemory{}
	support := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			{
				ToolRequests: []contractx.ToolRequest{{
					Tool: "verify_customer",
					Args: map[string]any{"customer_id": "cust_1001", "email": "ava@example.com", "zip_code": "94107"},
				}},
			},
			{
				Message: "Thanks Ava, you are verified.",
				StateUpdates: contractx.StateUpdates{
					MemoryUpdate: "Verified by email and ZIP.",
				},
			},
		},
	}
	tools := &fakeTools{
		results: map[string]contractx.ToolResult{
			"verify_customer": {Tool: "verify_customer", Result: map[string]any{"validated": true, "customer_id": "cust_1001"}},
		},
	}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: plannerFor(statex.GoalSupportAccount), sales: &fakeSpecialist{}, support: support},
		tools,
		memory,
	)

	if _, err := o.HandleMessage(context.Background(), "sess-7", "I'm cust_1001, ava@example.com, 94107"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	saved := store.saved[0]
	if saved.CustomerID != "cust_1001" || !saved.Verified {
		t.Fatalf("session not bound: customer=%q verified=%v", saved.CustomerID, saved.Verified)
	}
	if len(memory.writes) != 1 || memory.writes[0].customerID != "cust_1001" {
		t.Fatalf("memory must be written for the verified customer: %+v", memory.writes)
	}
}

func TestHandleMessageFailedVerificationDoesNotBind(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{
			planner: plannerFor(statex.GoalSupportAccount),
			sales:   &fakeSpecialist{},
			support: &fakeSpecialist{responses: []contractx.SpecialistResponse{
				{ToolRequests: []contractx.ToolRequest{{Tool: "verify_customer"}}},
				{Message: "Those details do not match our records."},
			}},
		},
		&fakeTools{results: map[string]contractx.ToolResult{
			"verify_customer": {Tool: "verify_customer", Result: map[string]any{"validated": false, "customer_id": "cust_1001"}},
		}},
		&fakeMemory{},
	)

	if _, err := o.HandleMessage(context.Background(), "sess-8", "I'm cust_1001"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if saved := store.saved[0]; saved.CustomerID != "" || saved.Verified {
		t.Fatalf("failed verification must not bind: %+v", saved)
	}
}

func TestHandleMessageVerifyKeepsSessionOwner(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadState: statex.NewSessionState("sess-10", "corecraft", "cust_1001", "chat", testNow)}
	support := &fakeSpecialist{responses: []contractx.SpecialistResponse{
		{ToolRequests: []contractx.ToolRequest{{
			Tool: "verify_customer",
			Args: map[string]any{"customer_id": "cust_1002", "email": "ben@example.com", "zip_code": "10001"},
		}}},
		{Message: "I can only help with the account this chat started with."},
	}}
	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: plannerFor(statex.GoalSupportAccount), sales: &fakeSpecialist{}, support: support},
		&fakeTools{results: map[string]contractx.ToolResult{
			"verify_customer": {Tool: "verify_customer", Result: map[string]any{"validated": true, "customer_id": "cust_1002"}},
		}},
		&fakeMemory{},
	)

	if _, err := o.HandleMessage(context.Background(), "sess-10", "Actually I'm cust_1002"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if saved := store.saved[0]; saved.CustomerID != "cust_1001" {
		t.Fatalf("session owner changed to %q", saved.CustomerID)
	}
	results := support.lastReqs[1].ToolResults
	if len(results) != 1 || results[0].Error == "" || results[0].Result != nil {
		t.Fatalf("specialist must see the refused verification as an error: %+v", results)
	}
}

func TestHandleMessageRejectsOtherCustomersSession(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("sess-9", "corecraft", "cust_1001", "chat", testNow)
	o := newTestOrchestrator(t,
		&fakeStore{loadState: st},
		&fakeRegistry{planner: plannerFor(statex.GoalSupportOrderStatus), sales: &fakeSpecialist{}, support: &fakeSpecialist{}},
		&fakeTools{},
		&fakeMemory{},
	)

	_, err := o.Handle(context.Background(), Input{SessionID: "sess-9", CustomerID: "cust_2002", Text: "hi"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleMessageEmptySpecialistMessage(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t,
		&fakeStore{loadErr: statex.ErrStateNotFound},
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales: &fakeSpecialist{
				responses: []contractx.SpecialistResponse{
					{Message: "   "},
				},
			},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		&fakeMemory{},
	)

	_, err := o.HandleMessage(context.Background(), "session-3", "hello")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "specialist returned empty message") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestHandleMessageHigherPriorityGoalSuspendsActive(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("sess-10", "corecraft", "cust_1001", "chat", testNow)
	build := statex.CreateGoal("g_build", statex.GoalSalesCustomBuild, 0, testNow)
	if err := st.AddGoal(build); err != nil {
		t.Fatalf("AddGoal() error = %v", err)
	}
	if err := st.SetActiveGoal(build.ID); err != nil {
		t.Fatalf("SetActiveGoal() error = %v", err)
	}

	store := &fakeStore{loadState: st}
	support := &fakeSpecialist{responses: []contractx.SpecialistResponse{{Message: "Which order should be refunded?"}}}
	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: plannerFor(statex.GoalSupportRefund), sales: &fakeSpecialist{}, support: support},
		&fakeTools{},
		&fakeMemory{},
	)

	if _, err := o.HandleMessage(context.Background(), "sess-10", "Actually, I want a refund first"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	saved := store.saved[0]
	active := saved.ActiveGoal()
	if active == nil || active.Type != statex.GoalSupportRefund {
		t.Fatalf("expected refund goal active, got %+v", active)
	}
	if saved.Goals["g_build"].Status != statex.GoalSuspended {
		t.Fatalf("expected build goal suspended, got %s", saved.Goals["g_build"].Status)
	}
	if len(saved.GoalStack) != 2 || saved.GoalStack[0] != "g_build" {
		t.Fatalf("unexpected goal stack: %v", saved.GoalStack)
	}
}

func TestHandleMessageLowerPriorityGoalIsQueued(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("sess-11", "corecraft", "cust_1001", "chat", testNow)
	refund := statex.CreateGoal("g_refund", statex.GoalSupportRefund, 0, testNow)
	if err := st.AddGoal(refund); err != nil {
		t.Fatalf("AddGoal() error = %v", err)
	}
	if err := st.SetActiveGoal(refund.ID); err != nil {
		t.Fatalf("SetActiveGoal() error = %v", err)
	}

	store := &fakeStore{loadState: st}
	sales := &fakeSpecialist{}
	support := &fakeSpecialist{responses: []contractx.SpecialistResponse{{Message: "Let's finish the refund first."}}}
	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: plannerFor(statex.GoalSalesRecommend), sales: sales, support: support},
		&fakeTools{},
		&fakeMemory{},
	)

	if _, err := o.HandleMessage(context.Background(), "sess-11", "Also, which PSU should I buy?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if sales.calls != 0 || support.calls != 1 {
		t.Fatalf("active refund goal must keep the turn: sales=%d support=%d", sales.calls, support.calls)
	}
	saved := store.saved[0]
	if saved.ActiveGoalID != "g_refund" {
		t.Fatalf("expected refund goal to stay active, got %s", saved.ActiveGoalID)
	}
	if len(saved.GoalStack) != 2 || saved.GoalStack[1] != "g_refund" {
		t.Fatalf("sales goal must be queued below refund: %v", saved.GoalStack)
	}
	queued := saved.Goals[saved.GoalStack[0]]
	if queued.Type != statex.GoalSalesRecommend || queued.Status != statex.GoalSuspended {
		t.Fatalf("unexpected queued goal: %+v", queued)
	}
}

func TestHandleMessageMarkDoneResumesPreviousGoal(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("session-4", "corecraft", "cust_1001", "chat", testNow)

	prev := statex.CreateGoal("g_prev", statex.GoalSupportTechnical, 90, testNow)
	prev.Status = statex.GoalSuspended

	active := statex.CreateGoal("g_active", statex.GoalSupportRefund, 100, testNow)
	active.Status = statex.GoalActive

	if err := st.AddGoal(prev); err != nil {
		t.Fatalf("AddGoal(prev) error = %v", err)
	}
	if err := st.AddGoal(active); err != nil {
		t.Fatalf("AddGoal(active) error = %v", err)
	}
	st.ActiveGoalID = active.ID
	st.GoalStack = []string{prev.ID, active.ID}

	store := &fakeStore{loadState: st}
	planner := &fakePlanner{
		resp: contractx.PlannerResponse{
			Goal: contractx.GoalPatch{
				GoalID:   "g_active",
				GoalType: statex.GoalSupportRefund,
			},
		},
	}
	support := &fakeSpecialist{
		responses: []contractx.SpecialistResponse{
			{
				Message: "Your refund is on its way.",
				StateUpdates: contractx.StateUpdates{
					SetStatus: string(statex.GoalDone),
				},
			},
		},
	}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{planner: planner, sales: &fakeSpecialist{}, support: support},
		&fakeTools{},
		&fakeMemory{},
	)

	reply, err := o.HandleMessage(context.Background(), "session-4", "Thanks")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply != "Your refund is on its way." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}

	saved := store.saved[0]
	if saved.Goals["g_active"].Status != statex.GoalDone {
		t.Fatalf("expected g_active done, got %s", saved.Goals["g_active"].Status)
	}
	if saved.ActiveGoalID != "g_prev" {
		t.Fatalf("expected active goal switched to g_prev, got %s", saved.ActiveGoalID)
	}
	if saved.Goals["g_prev"].Status != statex.GoalActive {
		t.Fatalf("expected g_prev active, got %s", saved.Goals["g_prev"].Status)
	}
}

func TestHandleMessageSuspendStatusRejected(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{
			planner: plannerFor(statex.GoalSupportWarranty),
			sales:   &fakeSpecialist{},
			support: &fakeSpecialist{responses: []contractx.SpecialistResponse{
				{Message: "ok", StateUpdates: contractx.StateUpdates{SetStatus: string(statex.GoalSuspended)}},
			}},
		},
		&fakeTools{},
		&fakeMemory{},
	)

	_, err := o.HandleMessage(context.Background(), "sess-12", "Is my GPU under warranty?")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleMessageSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("save failed")
	store := &fakeStore{
		loadErr: statex.ErrStateNotFound,
		saveErr: saveErr,
	}
	memory := &fakeMemory{}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales: &fakeSpecialist{
				responses: []contractx.SpecialistResponse{
					{Message: "ok"},
				},
			},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		memory,
	)

	_, err := o.HandleMessage(context.Background(), "session-5", "hello")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if len(memory.writes) != 0 {
		t.Fatalf("memory write must not be called on save error, got %d", len(memory.writes))
	}
}

func TestHandleMessageWriteMemoryErrorPropagates(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("write memory failed")
	memory := &fakeMemory{
		writeErr: writeErr,
	}
	store := &fakeStore{loadErr: statex.ErrStateNotFound}

	o := newTestOrchestrator(t,
		store,
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales: &fakeSpecialist{
				responses: []contractx.SpecialistResponse{
					{Message: "ok", StateUpdates: contractx.StateUpdates{MemoryUpdate: "Prefers AMD."}},
				},
			},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		memory,
	)

	_, err := o.Handle(context.Background(), Input{SessionID: "session-6", CustomerID: "cust_1001", Text: "hello"})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write memory error, got %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected state already saved before memory error, got %d", len(store.saved))
	}
}

func TestHandleMessageAnonymousSessionSkipsMemory(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{readErr: errors.New("memory must not be read")}
	o := newTestOrchestrator(t,
		&fakeStore{loadErr: statex.ErrStateNotFound},
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales: &fakeSpecialist{
				responses: []contractx.SpecialistResponse{
					{Message: "Happy to help.", StateUpdates: contractx.StateUpdates{MemoryUpdate: "Wants a quiet build."}},
				},
			},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		memory,
	)

	reply, err := o.HandleMessage(context.Background(), "session-anon", "I want a quiet PC")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply != "Happy to help." {
		t.Fatalf("reply = %q", reply)
	}
	if len(memory.writes) != 0 {
		t.Fatalf("anonymous session must not write memory, got %+v", memory.writes)
	}
}

func TestHandleObservesTurnLatency(t *testing.T) {
	t.Parallel()

	reg := metricsx.NewRegistry()
	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{
			planner: plannerFor(statex.GoalSalesRecommend),
			sales:   &fakeSpecialist{responses: []contractx.SpecialistResponse{{Message: "ok"}}},
			support: &fakeSpecialist{},
		},
		&fakeTools{},
		&fakeMemory{},
		func(c *Config) { c.Metrics = reg },
	)

	if _, err := o.HandleMessage(context.Background(), "sess-13", "hello"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if _, err := o.HandleMessage(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error for empty session")
	}
	if got := testutil.CollectAndCount(reg.TurnLatencySec); got != 2 {
		t.Fatalf("expected ok and error latency series, got %d", got)
	}
}

func newTestOrchestrator(
	t *testing.T,
	store statex.Store,
	registry contractx.Registry,
	tools contractx.ToolGateway,
	memory contractx.MemoryStore,
	opts ...func(*Config),
) *Orchestrator {
	t.Helper()
	cfg := Config{Metrics: metricsx.NewRegistry()}
	for _, opt := range opts {
		opt(&cfg)
	}
	o, err := New(store, registry, tools, memory, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.now = func() time.Time { return testNow }
	return o
}

func cloneSessionState(in *statex.SessionState) *statex.SessionState {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	var out statex.SessionState
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	out.EnsureGoalsMap()
	return &out
}
