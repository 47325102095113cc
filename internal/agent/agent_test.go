package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/fraud"
	"IVA-Bank/internal/llm"
	"IVA-Bank/internal/policy"
	"IVA-Bank/internal/tools"
)

// scriptedLLM 依次返回预设响应，并记录每次请求。
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llm.Message
	requests  []llm.Request
	err       error
	delay     time.Duration
}

func (s *scriptedLLM) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "loop", Name: tools.GetAccountBalance}}}}, nil
	}
	msg := s.responses[0]
	s.responses = s.responses[1:]
	return &llm.Response{Message: msg}, nil
}

func toolCall(id, name string, args map[string]any) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

type harness struct {
	store    *bank.MemoryStore
	registry *tools.Registry
	customer *CustomerInfo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := bank.NewMemoryStore()
	ada := &bank.Customer{FullName: "Ada Lovelace", Email: "ada@example.com", IsAuthenticated: true}
	bob := &bank.Customer{FullName: "Bob Stone", Email: "bob@example.com", IsAuthenticated: true}
	for _, c := range []*bank.Customer{ada, bob} {
		if err := store.CreateCustomer(ctx, c); err != nil {
			t.Fatalf("create customer: %v", err)
		}
	}
	for _, a := range []*bank.Account{
		{CustomerID: ada.ID, AccountNumber: "ADA-1", AccountType: "Checking", Balance: bank.FromDollars(9000)},
		{CustomerID: bob.ID, AccountNumber: "BOB-1", AccountType: "Checking", Balance: 0},
	} {
		if err := store.OpenAccount(ctx, a); err != nil {
			t.Fatalf("open account: %v", err)
		}
	}
	policies := policy.NewService(store)
	if _, err := policies.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	registry := tools.NewRegistry()
	if err := tools.NewBanking(store, policies, fraud.NewChecker(5000), nil).Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &harness{
		store:    store,
		registry: registry,
		customer: &CustomerInfo{ID: ada.ID, Name: ada.FullName, Email: ada.Email},
	}
}

func TestRouter(t *testing.T) {
	router := NewRouter()
	cases := []struct {
		text          string
		authenticated bool
		want          Route
	}{
		{"What is the ACH policy?", false, RouteOnboarding},
		{"What is the ACH policy?", true, RouteAdvisory},
		{"How long do cheques take to clear?", true, RouteAdvisory},
		{"Any investment suggestions?", true, RouteAdvisory},
		{"Any suggestions for my savings?", true, RouteAdvisory},
		{"Transfer $50 to each of my kids", true, RouteAdvisory},
		{"Tell me about bank policies", true, RouteBanking},
		{"What's my balance?", true, RouteBanking},
		{"Transfer $50 to Bob", true, RouteBanking},
	}
	for _, tc := range cases {
		state := &State{Messages: []llm.Message{llm.UserMessage(tc.text)}, Authenticated: tc.authenticated}
		if got := router.Route(state); got != tc.want {
			t.Fatalf("%q (auth=%v): expected %s, got %s", tc.text, tc.authenticated, tc.want, got)
		}
	}
	if got := router.Route(nil); got != RouteOnboarding {
		t.Fatalf("nil state should route to onboarding, got %s", got)
	}
}

func TestProcessQueryRunsBankingTools(t *testing.T) {
	h := newHarness(t)
	client := &scriptedLLM{responses: []llm.Message{
		toolCall("1", tools.GetAccountBalance, nil),
		llm.AssistantMessage("You have $9000.00 in ADA-1."),
	}}
	assistant := New(client, h.registry)

	reply, err := assistant.ProcessQuery(context.Background(), Query{Text: "What's my balance?", Customer: h.customer, Authenticated: true})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if reply.Route != RouteBanking || reply.Text != "You have $9000.00 in ADA-1." {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(reply.Invocations) != 1 || !strings.Contains(reply.Invocations[0].Result, "ADA-1") {
		t.Fatalf("unexpected invocations: %+v", reply.Invocations)
	}

	first := client.requests[0]
	var names []string
	for _, spec := range first.Tools {
		names = append(names, spec.Name)
	}
	want := []string{tools.GetAccountBalance, tools.TransferFunds, tools.UpdateCustomerAddress, tools.ValidateTransactionFraud}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("banking toolset mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(first.System, "Banking Assistant") || !strings.Contains(first.System, "ada@example.com") {
		t.Fatalf("system prompt missing profile or customer context: %s", first.System)
	}
	second := client.requests[1]
	if len(second.Messages) != 3 || second.Messages[2].Role != llm.RoleTool || second.Messages[2].ToolCallID != "1" {
		t.Fatalf("tool result should be fed back to the model: %+v", second.Messages)
	}
}

func TestSpecialistRejectsToolsOutsideProfile(t *testing.T) {
	h := newHarness(t)
	client := &scriptedLLM{responses: []llm.Message{
		toolCall("1", tools.TransferFunds, map[string]any{"from_account": "ADA-1", "to_account": "BOB-1", "amount": 10}),
		llm.AssistantMessage("I can only help with policy questions."),
	}}
	assistant := New(client, h.registry)

	reply, err := assistant.ProcessQuery(context.Background(), Query{Text: "policy on transfers?", Customer: h.customer, Authenticated: true})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if reply.Route != RouteAdvisory {
		t.Fatalf("expected advisory route, got %s", reply.Route)
	}
	if len(reply.Invocations) != 1 || !reply.Invocations[0].IsError || !strings.Contains(reply.Invocations[0].Result, "not available") {
		t.Fatalf("expected rejected invocation, got %+v", reply.Invocations)
	}
	acc, _ := h.store.GetAccountByNumber(context.Background(), "ADA-1")
	if acc.Balance != bank.FromDollars(9000) {
		t.Fatalf("out-of-profile tool must not run, balance %s", acc.Balance)
	}
}

func TestFraudGuardWithinTurn(t *testing.T) {
	h := newHarness(t)
	transfer := map[string]any{"from_account": "ADA-1", "to_account": "BOB-1", "amount": 6000}
	client := &scriptedLLM{responses: []llm.Message{
		toolCall("1", tools.TransferFunds, transfer),
		toolCall("2", tools.ValidateTransactionFraud, map[string]any{"account_id": "ADA-1", "amount": 6000}),
		toolCall("3", tools.TransferFunds, transfer),
		llm.AssistantMessage("Done. The transfer was flagged for review."),
	}}
	assistant := New(client, h.registry)

	reply, err := assistant.ProcessQuery(context.Background(), Query{Text: "Send 6000 to BOB-1", Customer: h.customer, Authenticated: true})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(reply.Invocations) != 3 {
		t.Fatalf("expected three invocations, got %+v", reply.Invocations)
	}
	if !reply.Invocations[0].IsError || reply.Invocations[2].IsError {
		t.Fatalf("first transfer must be guarded and second must pass: %+v", reply.Invocations)
	}
	acc, _ := h.store.GetAccountByNumber(context.Background(), "BOB-1")
	if acc.Balance != bank.FromDollars(6000) {
		t.Fatalf("expected exactly one transfer, got balance %s", acc.Balance)
	}
}

func TestSpecialistReturnsArgumentErrorsToModel(t *testing.T) {
	h := newHarness(t)
	broken := llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
		ID:             "1",
		Name:           tools.TransferFunds,
		Arguments:      map[string]any{},
		ArgumentsError: "unexpected end of JSON input",
	}}}
	client := &scriptedLLM{responses: []llm.Message{
		broken,
		toolCall("2", tools.TransferFunds, map[string]any{"from_account": "ADA-1", "to_account": "BOB-1", "amount": 10}),
		llm.AssistantMessage("Sent $10.00 to BOB-1."),
	}}

	reply, err := New(client, h.registry).ProcessQuery(context.Background(), Query{Text: "Send 10 to BOB-1", Customer: h.customer, Authenticated: true})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(reply.Invocations) != 2 || !reply.Invocations[0].IsError || reply.Invocations[1].IsError {
		t.Fatalf("unexpected invocations: %+v", reply.Invocations)
	}
	if !strings.Contains(reply.Invocations[0].Result, "not valid JSON") {
		t.Fatalf("model should be told why the call was rejected: %s", reply.Invocations[0].Result)
	}
	acc, err := h.store.GetAccountByNumber(context.Background(), "ADA-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance != bank.FromDollars(8990) {
		t.Fatalf("only the repaired call should move money, balance %s", acc.Balance)
	}
}

func TestGuestRoutesToOnboarding(t *testing.T) {
	h := newHarness(t)
	client := &scriptedLLM{responses: []llm.Message{
		toolCall("1", tools.ApplyForProduct, map[string]any{"product_type": "Credit Card", "email": "new@example.com"}),
		llm.AssistantMessage("Your application is pending."),
	}}
	reply, err := New(client, h.registry).ProcessQuery(context.Background(), Query{Text: "I want a credit card, my email is new@example.com"})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if reply.Route != RouteOnboarding || reply.Invocations[0].IsError {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if !strings.Contains(client.requests[0].System, "not signed in") {
		t.Fatalf("guest context missing from prompt: %s", client.requests[0].System)
	}
}

func TestProcessQueryErrors(t *testing.T) {
	h := newHarness(t)

	if _, err := New(&scriptedLLM{}, h.registry).ProcessQuery(context.Background(), Query{Text: "  "}); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	_, err := New(&scriptedLLM{}, h.registry, WithMaxSteps(3)).ProcessQuery(context.Background(), Query{Text: "balance", Customer: h.customer, Authenticated: true})
	if !xerrors.IsCode(err, CodeAgentStepsExceeded) {
		t.Fatalf("expected step limit error, got %v", err)
	}

	_, err = New(&scriptedLLM{err: errors.New("connection refused")}, h.registry).ProcessQuery(context.Background(), Query{Text: "hi"})
	if !xerrors.IsCode(err, xerrors.CodeExecutorFailure) {
		t.Fatalf("expected executor failure, got %v", err)
	}

	slow := &scriptedLLM{delay: time.Second}
	_, err = New(slow, h.registry, WithLLMTimeout(20*time.Millisecond)).ProcessQuery(context.Background(), Query{Text: "hi"})
	if !xerrors.IsCode(err, xerrors.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEmptyModelReplyGetsFallback(t *testing.T) {
	h := newHarness(t)
	client := &scriptedLLM{responses: []llm.Message{llm.AssistantMessage("")}}
	reply, err := New(client, h.registry).ProcessQuery(context.Background(), Query{Text: "hello"})
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if reply.Text != emptyReplyFallback {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestGraphUnknownRoute(t *testing.T) {
	graph := NewGraph(NewRouter(), map[Route]Node{})
	if _, err := graph.Invoke(context.Background(), &State{Messages: []llm.Message{llm.UserMessage("hi")}}); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for missing node, got %v", err)
	}
}
