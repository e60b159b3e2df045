package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datachat-ai/datachat/internal/analyze"
	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/dispatch"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/ops"
	"github.com/datachat-ai/datachat/internal/quota"
	"github.com/datachat-ai/datachat/internal/store"
)

// fakeClient scripts a sequence of responses; each Chat call consumes
// the next entry.
type fakeClient struct {
	name    string
	calls   int
	scripts []func() (*llm.ChatResponse, error)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i >= len(f.scripts) {
		return nil, &llm.BackendError{Provider: f.name, Kind: llm.FailureTransport, Err: errors.New("unscripted call")}
	}
	return f.scripts[i]()
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func sayText(provider, text string) func() (*llm.ChatResponse, error) {
	return func() (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Provider: provider,
			Message:  llm.Message{Role: "assistant", Content: text},
		}, nil
	}
}

func callTool(provider, name string, args map[string]any) func() (*llm.ChatResponse, error) {
	return func() (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Provider: provider,
			Message: llm.Message{
				Role:    "assistant",
				Content: "let me check",
				ToolCalls: []llm.ToolCall{{
					ID:       "tc-1",
					Function: llm.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}, nil
	}
}

func fail(provider string) func() (*llm.ChatResponse, error) {
	return func() (*llm.ChatResponse, error) {
		return nil, &llm.BackendError{Provider: provider, Kind: llm.FailureTimeout, Err: context.DeadlineExceeded}
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Publish(sessionID string, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	orch     *Orchestrator
	store    *store.Store
	registry *dataset.Registry
	notifier *captureNotifier
	primary  *fakeClient
	second   *fakeClient
	user     *store.User
	session  *store.Session
}

func newFixture(t *testing.T, primary, second *fakeClient) *fixture {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	user, err := st.CreateUser(ctx, "tester", "hash", false)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := st.CreateSession(ctx, user.ID, "test")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	registry := dataset.NewRegistry()
	catalog := analyze.Catalog()
	dispatcher := dispatch.NewDispatcher(primary, second, time.Second, time.Millisecond, nil)
	notifier := &captureNotifier{}

	orch := New(
		st,
		registry,
		catalog,
		ops.NewInvoker(catalog, registry, nil),
		dispatcher,
		quota.NewLedger(st, 10),
		notifier,
		nil,
	)

	return &fixture{
		orch:     orch,
		store:    st,
		registry: registry,
		notifier: notifier,
		primary:  primary,
		second:   second,
		user:     user,
		session:  session,
	}
}

func (f *fixture) bindDataset() {
	f.registry.Put(f.session.ID, &dataset.Dataset{
		Columns: []dataset.Column{
			{Name: "region", Type: dataset.TypeString},
			{Name: "revenue", Type: dataset.TypeNumber},
		},
		Rows: [][]any{
			{"north", 10.0},
			{"south", 20.0},
			{"east", 30.0},
		},
	})
}

func (f *fixture) request(message string) Request {
	return Request{Session: f.session, User: f.user, Message: message}
}

func TestHandleMessageNoDataset(t *testing.T) {
	primary := &fakeClient{name: "anthropic"}
	second := &fakeClient{name: "openai"}
	f := newFixture(t, primary, second)

	resp, err := f.orch.HandleMessage(context.Background(), f.request("what's in the data?"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Message != noDatasetMessage {
		t.Errorf("message = %q, want the upload prompt", resp.Message)
	}
	if resp.Error != "" {
		t.Errorf("a missing dataset is not an error, got %q", resp.Error)
	}
	if primary.calls != 0 || second.calls != 0 {
		t.Errorf("backends called %d/%d times, want none", primary.calls, second.calls)
	}

	// Still a full persisted exchange: user turn plus assistant turn.
	exchanges, err := f.store.ListExchanges(context.Background(), f.session.ID)
	if err != nil {
		t.Fatalf("ListExchanges: %v", err)
	}
	if len(exchanges) != 2 {
		t.Fatalf("got %d exchanges, want 2", len(exchanges))
	}
}

func TestHandleMessageDirectAnswer(t *testing.T) {
	primary := &fakeClient{name: "anthropic", scripts: []func() (*llm.ChatResponse, error){
		sayText("anthropic", "It covers three regions."),
	}}
	f := newFixture(t, primary, &fakeClient{name: "openai"})
	f.bindDataset()

	resp, err := f.orch.HandleMessage(context.Background(), f.request("what is this data?"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Message != "It covers three regions." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Suggestions) < 3 {
		t.Errorf("got %d suggestions, want at least 3", len(resp.Suggestions))
	}
	if resp.Remaining != 9 {
		t.Errorf("remaining = %d, want 9", resp.Remaining)
	}
	if got := f.notifier.types(); len(got) != 2 || got[0] != "accepted" || got[1] != "completed" {
		t.Errorf("events = %v, want [accepted completed]", got)
	}
}

func TestHandleMessageInvokeFlow(t *testing.T) {
	primary := &fakeClient{name: "anthropic", scripts: []func() (*llm.ChatResponse, error){
		callTool("anthropic", "describe", map[string]any{}),
		sayText("anthropic", "Revenue averages 20."),
	}}
	f := newFixture(t, primary, &fakeClient{name: "openai"})
	f.bindDataset()

	resp, err := f.orch.HandleMessage(context.Background(), f.request("summarize the numbers"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Message != "Revenue averages 20." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Operations) != 1 || resp.Operations[0] != "describe" {
		t.Errorf("operations = %v, want [describe]", resp.Operations)
	}
	if resp.Table == nil {
		t.Error("describe should surface a table preview")
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want decide + synthesize", primary.calls)
	}

	// The persisted assistant exchange carries the payloads.
	exchanges, _ := f.store.ListExchanges(context.Background(), f.session.ID)
	last := exchanges[len(exchanges)-1]
	if last.Role != store.RoleAssistant || last.Table == nil {
		t.Errorf("persisted assistant exchange = %+v, want table payload", last)
	}
}

func TestHandleMessageBothBackendsFail(t *testing.T) {
	primary := &fakeClient{name: "anthropic", scripts: []func() (*llm.ChatResponse, error){
		fail("anthropic"), fail("anthropic"),
	}}
	second := &fakeClient{name: "openai", scripts: []func() (*llm.ChatResponse, error){
		fail("openai"), fail("openai"),
	}}
	f := newFixture(t, primary, second)
	f.bindDataset()

	resp, err := f.orch.HandleMessage(context.Background(), f.request("hello?"))
	if err != nil {
		t.Fatalf("HandleMessage should not fail outright: %v", err)
	}
	if resp.Error == "" {
		t.Error("want error field set after total backend failure")
	}
	if resp.Message != backendDownMessage {
		t.Errorf("message = %q, want the outage text", resp.Message)
	}
	if resp.Table != nil || resp.Chart != nil {
		t.Error("error response must not carry payloads")
	}

	// The failed attempt still consumed a quota slot.
	count, err := f.store.CountUserExchangesSince(context.Background(), f.user.ID, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("user exchange count = %d, want 1", count)
	}
	if got := f.notifier.types(); len(got) != 2 || got[1] != "failed" {
		t.Errorf("events = %v, want [accepted failed]", got)
	}
}

func TestHandleMessagePartialOperationFailure(t *testing.T) {
	primary := &fakeClient{name: "anthropic", scripts: []func() (*llm.ChatResponse, error){
		func() (*llm.ChatResponse, error) {
			return &llm.ChatResponse{
				Provider: "anthropic",
				Message: llm.Message{
					Role: "assistant",
					ToolCalls: []llm.ToolCall{
						{Function: llm.FunctionCall{Name: "describe", Arguments: map[string]any{}}},
						{Function: llm.FunctionCall{Name: "value_counts", Arguments: map[string]any{}}},
					},
				},
			}, nil
		},
		sayText("anthropic", "Here's what worked."),
	}}
	f := newFixture(t, primary, &fakeClient{name: "openai"})
	f.bindDataset()

	// value_counts is missing its required column argument; the batch
	// still completes and the exchange succeeds.
	resp, err := f.orch.HandleMessage(context.Background(), f.request("describe and count"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Error != "" {
		t.Errorf("partial operation failure must not fail the exchange: %q", resp.Error)
	}
	if len(resp.Operations) != 2 {
		t.Errorf("operations = %v, want both attempted calls", resp.Operations)
	}
}

func TestHandleMessageQuotaRejection(t *testing.T) {
	primary := &fakeClient{name: "anthropic"}
	f := newFixture(t, primary, &fakeClient{name: "openai"})
	f.bindDataset()

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if err := f.store.AppendExchange(ctx, &store.Exchange{
			SessionID: f.session.ID,
			Role:      store.RoleUser,
			Content:   "earlier message",
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("seed exchange: %v", err)
		}
	}

	_, err := f.orch.HandleMessage(ctx, f.request("one more"))
	var qe *quota.Error
	if !errors.As(err, &qe) {
		t.Fatalf("error = %v, want *quota.Error", err)
	}
	if qe.Limit != 10 || qe.Current != 10 {
		t.Errorf("quota error = %+v, want limit 10 current 10", qe)
	}
	if primary.calls != 0 {
		t.Error("rejected attempt must not reach a backend")
	}

	// Nothing new was persisted.
	exchanges, _ := f.store.ListExchanges(ctx, f.session.ID)
	if len(exchanges) != 10 {
		t.Errorf("got %d exchanges, want the seeded 10", len(exchanges))
	}
}

func TestHandleMessageFailoverPinsSecondary(t *testing.T) {
	primary := &fakeClient{name: "anthropic", scripts: []func() (*llm.ChatResponse, error){
		fail("anthropic"), fail("anthropic"),
	}}
	second := &fakeClient{name: "openai", scripts: []func() (*llm.ChatResponse, error){
		callTool("openai", "describe", map[string]any{}),
		sayText("openai", "Done via backup."),
	}}
	f := newFixture(t, primary, second)
	f.bindDataset()

	resp, err := f.orch.HandleMessage(context.Background(), f.request("summarize"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Message != "Done via backup." {
		t.Errorf("message = %q", resp.Message)
	}
	// Decide exhausted the primary; synthesize must go straight to the
	// secondary rather than retrying the primary again.
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want only the decide attempts", primary.calls)
	}
	if second.calls != 2 {
		t.Errorf("secondary calls = %d, want decide + synthesize", second.calls)
	}
}

func TestHistoryMessagesWindow(t *testing.T) {
	var history []*store.Exchange
	for i := 0; i < 30; i++ {
		history = append(history, &store.Exchange{Role: store.RoleUser, Content: "m"})
	}
	history = append(history, &store.Exchange{Role: store.RoleAssistant, Content: ""})

	msgs := historyMessages(history)
	if len(msgs) > historyWindow {
		t.Errorf("history = %d messages, want at most %d", len(msgs), historyWindow)
	}
	for _, m := range msgs {
		if m.Content == "" {
			t.Error("empty content should be skipped")
		}
	}
}
