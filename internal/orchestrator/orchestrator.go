// Package orchestrator implements the per-exchange control flow: admit
// against the quota, decide, invoke operations, synthesize, suggest,
// and persist. Every admitted attempt terminates in exactly one
// persisted assistant exchange; no error escapes uncaught.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/dispatch"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/ops"
	"github.com/datachat-ai/datachat/internal/quota"
	"github.com/datachat-ai/datachat/internal/store"
	"github.com/datachat-ai/datachat/internal/suggest"
)

// historyWindow caps how many prior exchanges are replayed to the
// backend as conversation context.
const historyWindow = 20

// exchangeDeadline bounds one whole exchange after admission. Generous:
// two backend turns plus operations.
const exchangeDeadline = 5 * time.Minute

// noDatasetMessage is the clarifying response when a session has no
// dataset bound. Not an error: the user just needs to upload.
const noDatasetMessage = "I don't see a dataset in this session yet. Upload one and I'll be happy to dig into it."

// backendDownMessage is the user-facing text of an error exchange.
const backendDownMessage = "I couldn't reach the analysis backends just now. Please try again in a moment."

// Event is a lifecycle notification for a session's exchange.
type Event struct {
	Type       string `json:"type"` // "accepted", "completed", "failed"
	SessionID  string `json:"sessionId"`
	ExchangeID string `json:"exchangeId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Notifier receives exchange lifecycle events. Implementations must not
// block; delivery is best-effort.
type Notifier interface {
	Publish(sessionID string, event Event)
}

// Request is one inbound user message bound to its session and user.
type Request struct {
	Session    *store.Session
	User       *store.User
	Message    string
	Preference string // provider preference; empty means automatic
}

// Response is the structured multi-part reply.
type Response struct {
	ExchangeID  string           `json:"exchangeId"`
	Message     string           `json:"message"`
	Operations  []string         `json:"operationsInvoked,omitempty"`
	Table       *ops.Table       `json:"tablePreview,omitempty"`
	Chart       *ops.Chart       `json:"chartData,omitempty"`
	Suggestions []suggest.Action `json:"suggestedActions,omitempty"`
	Remaining   int              `json:"remaining"`
	Error       string           `json:"error,omitempty"`
}

// Orchestrator wires the quota ledger, dataset registry, dispatcher,
// invoker, suggestion generator, and exchange store into one flow.
type Orchestrator struct {
	store      *store.Store
	registry   *dataset.Registry
	catalog    *ops.Catalog
	invoker    *ops.Invoker
	dispatcher *dispatch.Dispatcher
	ledger     *quota.Ledger
	notifier   Notifier
	logger     *slog.Logger
}

// New creates an orchestrator. notifier may be nil.
func New(
	st *store.Store,
	registry *dataset.Registry,
	catalog *ops.Catalog,
	invoker *ops.Invoker,
	dispatcher *dispatch.Dispatcher,
	ledger *quota.Ledger,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		registry:   registry,
		catalog:    catalog,
		invoker:    invoker,
		dispatcher: dispatcher,
		ledger:     ledger,
		notifier:   notifier,
		logger:     logger,
	}
}

// HandleMessage processes one user message end to end. A quota
// rejection returns *quota.Error before anything is persisted or any
// backend is called.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	decision, err := o.ledger.CheckAndAdmit(ctx, req.User.ID, req.User.Unlimited)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Admitted {
		o.logger.Info("quota rejected",
			"user", req.User.ID,
			"current", decision.Current,
			"limit", decision.Limit,
		)
		return nil, &quota.Error{Limit: decision.Limit, Current: decision.Current}
	}

	// The client may disconnect mid-exchange; the work still runs to
	// completion and persists so quota accounting matches history.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeDeadline)
	defer cancel()

	logger := o.logger.With("session", req.Session.ID, "user", req.User.ID)
	logger.Info("exchange started", "remaining", decision.Remaining)

	history, err := o.store.ListExchanges(ctx, req.Session.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// Appending the user exchange is what consumes the quota slot. It
	// happens before the backend calls so a failed attempt still counts:
	// the slot was spent on a real attempt.
	userEx := &store.Exchange{
		SessionID: req.Session.ID,
		Role:      store.RoleUser,
		Content:   req.Message,
	}
	if err := o.store.AppendExchange(ctx, userEx); err != nil {
		return nil, fmt.Errorf("append user exchange: %w", err)
	}
	o.publish(req.Session.ID, Event{Type: "accepted", SessionID: req.Session.ID, ExchangeID: userEx.ID})

	resp := o.run(ctx, logger, req, history, decision)

	assistantEx := &store.Exchange{
		SessionID:   req.Session.ID,
		Role:        store.RoleAssistant,
		Content:     resp.Message,
		Chart:       resp.Chart,
		Table:       resp.Table,
		Suggestions: resp.Suggestions,
		Operations:  resp.Operations,
		Error:       resp.Error,
	}
	if err := o.store.AppendExchange(ctx, assistantEx); err != nil {
		return nil, fmt.Errorf("append assistant exchange: %w", err)
	}
	resp.ExchangeID = assistantEx.ID

	if resp.Error != "" {
		logger.Warn("exchange failed", "error", resp.Error)
		o.publish(req.Session.ID, Event{Type: "failed", SessionID: req.Session.ID, ExchangeID: assistantEx.ID, Error: resp.Error})
	} else {
		logger.Info("exchange completed", "operations", len(resp.Operations))
		o.publish(req.Session.ID, Event{Type: "completed", SessionID: req.Session.ID, ExchangeID: assistantEx.ID})
	}

	return resp, nil
}

// run produces the assistant side of the exchange. It never returns an
// error: failures become the Error field so the caller persists exactly
// one assistant exchange either way.
func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, req Request, history []*store.Exchange, decision quota.Decision) *Response {
	resp := &Response{Remaining: decision.Remaining}

	_, summary, err := o.registry.Get(req.Session.ID)
	if errors.Is(err, dataset.ErrNotFound) {
		// Clarifying response, no backend call, invoker never runs.
		logger.Info("no dataset bound, asking for upload")
		resp.Message = noDatasetMessage
		return resp
	}

	messages := historyMessages(history)
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	decideReq := dispatch.Request{
		Preference: req.Preference,
		System:     decideSystemPrompt(summary),
		Messages:   messages,
		Tools:      o.catalog.ToolSpecs(),
	}
	turn, err := o.dispatcher.Decide(ctx, decideReq)
	if err != nil {
		resp.Message = backendDownMessage
		resp.Error = err.Error()
		return resp
	}

	if turn.Kind == dispatch.TurnDirect {
		resp.Message = turn.Text
		resp.Suggestions = suggest.Suggest(summary, nil)
		return resp
	}

	results := o.invoker.Run(ctx, req.Session.ID, turn.Calls)
	for _, r := range results {
		resp.Operations = append(resp.Operations, r.Name)
		if r.Err != nil || r.Result == nil {
			continue
		}
		switch r.Result.Kind {
		case ops.KindTable:
			resp.Table = r.Result.Table
		case ops.KindChart:
			resp.Chart = r.Result.Chart
		}
	}

	// Operations may have replaced the dataset; suggestions and the
	// synthesis prompt work from the current summary.
	if _, current, err := o.registry.Get(req.Session.ID); err == nil {
		summary = current
	}

	synthMessages := append(messages, llm.Message{
		Role:    "assistant",
		Content: invokeTranscript(turn),
	})
	synthMessages = append(synthMessages, llm.Message{
		Role:    "user",
		Content: resultsPrompt(results),
	})

	// Once a failover happened, the secondary serves the rest of this
	// exchange; the stored preference is untouched.
	synthReq := dispatch.Request{
		Preference: o.dispatcher.PinAfterFailover(req.Preference, turn.Provider),
		System:     synthesisSystemPrompt(summary),
		Messages:   synthMessages,
	}
	synthTurn, err := o.dispatcher.Synthesize(ctx, synthReq)
	if err != nil {
		resp.Table = nil
		resp.Chart = nil
		resp.Message = backendDownMessage
		resp.Error = err.Error()
		return resp
	}

	resp.Message = synthTurn.Text
	resp.Suggestions = suggest.Suggest(summary, resp.Operations)
	return resp
}

func (o *Orchestrator) publish(sessionID string, event Event) {
	if o.notifier != nil {
		o.notifier.Publish(sessionID, event)
	}
}

// historyMessages converts the most recent persisted exchanges into
// backend messages. Error exchanges are replayed as their user-visible
// text; payloads don't travel back to the backend.
func historyMessages(history []*store.Exchange) []llm.Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var messages []llm.Message
	for _, ex := range history {
		if ex.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: ex.Role, Content: ex.Content})
	}
	return messages
}
