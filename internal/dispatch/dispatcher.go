// Package dispatch selects among interchangeable inference backends and
// conducts the bounded two-turn protocol: a decide turn that may
// request operations, then a synthesize turn forced to plain text.
// There is no recursive re-planning; every exchange costs at most two
// backend round-trips per backend tried.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/ops"
)

// Backend preference values. Automatic tries the primary first and
// fails over to the secondary for the remainder of the exchange.
const (
	PreferPrimary   = "primary"
	PreferSecondary = "secondary"
	PreferAutomatic = "automatic"
)

// ErrBothBackendsFailed terminates an exchange after every candidate
// backend has been exhausted. The exchange is persisted as an error
// exchange; no partial assistant turn survives.
var ErrBothBackendsFailed = errors.New("all inference backends failed")

// fallbackMessage covers the degenerate case of a backend signaling
// tool use without any parseable calls.
const fallbackMessage = "I wasn't able to work out what to do with that. Could you rephrase the question?"

// TurnKind tags the Turn union.
type TurnKind int

const (
	// TurnDirect is a plain-text answer for the user.
	TurnDirect TurnKind = iota
	// TurnInvoke requests operation calls before answering.
	TurnInvoke
)

// Turn is the outcome of one backend round-trip.
type Turn struct {
	Kind      TurnKind
	Text      string
	Calls     []ops.Call // executed in the order the backend listed them
	Rationale string     // backend's accompanying text on an invoke turn
	Provider  string     // backend that produced the turn
}

// Request carries everything one backend call needs.
type Request struct {
	Preference string // PreferPrimary, PreferSecondary, PreferAutomatic, or ""
	System     string
	Messages   []llm.Message
	Tools      []map[string]any // nil on the synthesize turn
}

// Dispatcher routes requests between the primary and secondary
// backends. Adding a backend means implementing llm.Client; the
// dispatch logic does not change.
type Dispatcher struct {
	primary   llm.Client
	secondary llm.Client
	timeout   time.Duration
	backoff   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds a single backend
// call; backoff is the pause before the single same-backend retry.
func NewDispatcher(primary, secondary llm.Client, timeout, backoff time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{
		primary:   primary,
		secondary: secondary,
		timeout:   timeout,
		backoff:   backoff,
		logger:    logger,
	}
}

// Decide runs turn 1: the backend chooses between answering directly
// and requesting operation calls.
func (d *Dispatcher) Decide(ctx context.Context, req Request) (*Turn, error) {
	return d.converse(ctx, req, false)
}

// Synthesize runs turn 2 after operation results are known. The turn is
// forced to Direct: no tools are offered and any stray tool calls in
// the response are discarded in favor of its text.
func (d *Dispatcher) Synthesize(ctx context.Context, req Request) (*Turn, error) {
	req.Tools = nil
	return d.converse(ctx, req, true)
}

func (d *Dispatcher) converse(ctx context.Context, req Request, forceDirect bool) (*Turn, error) {
	candidates, err := d.candidates(req.Preference)
	if err != nil {
		return nil, err
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]llm.Message{{Role: "system", Content: req.System}}, messages...)
	}

	var failures []error
	for _, client := range candidates {
		resp, err := d.tryBackend(ctx, client, messages, req.Tools)
		if err != nil {
			failures = append(failures, err)
			d.logger.Warn("backend exhausted, failing over",
				"provider", client.Name(),
				"error", err,
			)
			continue
		}
		return buildTurn(resp, forceDirect), nil
	}

	return nil, fmt.Errorf("%w: %w", ErrBothBackendsFailed, errors.Join(failures...))
}

// tryBackend makes the initial attempt plus one retry after a short
// fixed backoff. Any error a backend returns is a classified failure,
// so every error is retryable here.
func (d *Dispatcher) tryBackend(ctx context.Context, client llm.Client, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			d.logger.Info("retrying backend",
				"provider", client.Name(),
				"backoff", d.backoff,
			)
			select {
			case <-time.After(d.backoff):
			case <-ctx.Done():
				return nil, &llm.BackendError{Provider: client.Name(), Kind: llm.FailureTimeout, Err: ctx.Err()}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		resp, err := client.Chat(callCtx, messages, tools)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var be *llm.BackendError
		if !errors.As(err, &be) {
			// Unclassified errors are provider bugs; treat as transport.
			lastErr = &llm.BackendError{Provider: client.Name(), Kind: llm.FailureTransport, Err: err}
		}
	}
	return nil, lastErr
}

// candidates resolves the preference into the ordered backends to try.
// Only automatic gets a failover target; an explicit preference pins
// the exchange to that backend.
func (d *Dispatcher) candidates(preference string) ([]llm.Client, error) {
	switch preference {
	case PreferPrimary:
		return []llm.Client{d.primary}, nil
	case PreferSecondary:
		return []llm.Client{d.secondary}, nil
	case PreferAutomatic, "":
		return []llm.Client{d.primary, d.secondary}, nil
	}
	return nil, fmt.Errorf("unknown provider preference %q", preference)
}

// buildTurn normalizes a backend response into the Turn union.
func buildTurn(resp *llm.ChatResponse, forceDirect bool) *Turn {
	turn := &Turn{Provider: resp.Provider}

	if forceDirect || len(resp.Message.ToolCalls) == 0 {
		turn.Kind = TurnDirect
		turn.Text = resp.Message.Content
		if turn.Text == "" {
			turn.Text = fallbackMessage
		}
		return turn
	}

	for _, tc := range resp.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		turn.Calls = append(turn.Calls, ops.Call{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	// A tool-use response with nothing callable degrades to Direct so
	// the user still gets an answer.
	if len(turn.Calls) == 0 {
		turn.Kind = TurnDirect
		turn.Text = resp.Message.Content
		if turn.Text == "" {
			turn.Text = fallbackMessage
		}
		return turn
	}

	turn.Kind = TurnInvoke
	turn.Rationale = resp.Message.Content
	return turn
}

// PinAfterFailover returns the preference for the rest of an exchange
// after a turn served by provider. Under automatic selection, once the
// secondary has taken over it serves the remainder of the exchange; the
// stored preference itself never changes.
func (d *Dispatcher) PinAfterFailover(preference, provider string) string {
	if (preference == PreferAutomatic || preference == "") && provider == d.secondary.Name() {
		return PreferSecondary
	}
	return preference
}

// Ping checks both backends, returning the first failure.
func (d *Dispatcher) Ping(ctx context.Context) error {
	if err := d.primary.Ping(ctx); err != nil {
		return fmt.Errorf("primary (%s): %w", d.primary.Name(), err)
	}
	if err := d.secondary.Ping(ctx); err != nil {
		return fmt.Errorf("secondary (%s): %w", d.secondary.Name(), err)
	}
	return nil
}
