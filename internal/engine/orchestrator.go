package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Orchestrator runs retrieval-gated tool-calling queries for one conversation.
// It allows a single query at a time.
type Orchestrator struct {
	gateway      InferenceGateway
	catalog      ToolCatalog
	executor     ToolExecutor
	retriever    ToolRetriever
	cfg          Config
	hooks        Hooks
	state        *ConversationState
	systemPrompt string

	busy sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever sets the retriever used to select the tool subset.
func WithRetriever(r ToolRetriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

func WithHooks(hooks ...Hook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, hooks...) }
}

// WithState continues an existing conversation, e.g. one restored from disk.
func WithState(st *ConversationState) Option {
	return func(o *Orchestrator) {
		if st != nil {
			o.state = st
		}
	}
}

// WithSystemPrompt prepends a system message to every inference request.
// It is not stored in the conversation history.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// New validates cfg and returns an orchestrator with an empty conversation.
func New(gateway InferenceGateway, catalog ToolCatalog, executor ToolExecutor, cfg Config, opts ...Option) (*Orchestrator, error) {
	if gateway == nil {
		return nil, errors.New("inference gateway is required")
	}
	if catalog == nil {
		return nil, errors.New("tool catalog is required")
	}
	if executor == nil {
		return nil, errors.New("tool executor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		gateway:  gateway,
		catalog:  catalog,
		executor: executor,
		cfg:      cfg,
		state:    NewConversationState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// State exposes the conversation for reading.
func (o *Orchestrator) State() *ConversationState { return o.state }

// Clear resets the conversation. It fails with ErrQueryInProgress while a
// query is running.
func (o *Orchestrator) Clear() error {
	if !o.busy.TryLock() {
		return ErrQueryInProgress
	}
	defer o.busy.Unlock()
	o.state.Clear()
	return nil
}

// HandleQuery answers one user query.
//
// The query is appended to the conversation, a tool subset is selected and at
// most RoundLimit rounds are run. A query that exhausts its rounds is returned
// with StatusAborted and a nil error; Termination carries *RoundLimitExceeded.
// A failed inference call aborts the query with *InferenceError. Cancellation
// discards the round in flight and returns an error wrapping ctx.Err().
func (o *Orchestrator) HandleQuery(ctx context.Context, query string) (FinalResponse, error) {
	if !o.busy.TryLock() {
		return FinalResponse{}, ErrQueryInProgress
	}
	defer o.busy.Unlock()

	if strings.TrimSpace(query) == "" {
		return FinalResponse{}, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return FinalResponse{}, fmt.Errorf("query cancelled: %w", err)
	}

	o.state.Append(ChatMessage{Role: RoleUser, Content: query})
	o.hooks.OnQueryStart(ctx, query)

	tools, fallback, retrievalErr := o.resolveTools(ctx)
	o.hooks.OnRetrieval(ctx, tools, fallback, retrievalErr)

	resp := FinalResponse{
		ToolsOffered:      ToolNames(tools),
		RetrievalFallback: fallback,
	}

	lastText := ""
	for round := 1; round <= o.cfg.RoundLimit; round++ {
		out, err := o.runRound(ctx, round, tools)
		if err != nil {
			o.hooks.OnDone(ctx, resp, err)
			return resp, err
		}

		o.state.Append(out.messages...)
		o.state.AddUsage(out.usage)

		metrics := RoundMetrics{Round: round, InputTokens: out.usage.Input, OutputTokens: out.usage.Output}
		resp.Rounds = round
		resp.Usage = resp.Usage.Add(out.usage)
		resp.RoundMetrics = append(resp.RoundMetrics, metrics)
		o.hooks.OnRoundEnd(ctx, metrics)

		if strings.TrimSpace(out.text) != "" {
			lastText = out.text
		}
		if out.final {
			resp.Text = out.text
			resp.Status = StatusFinished
			o.hooks.OnDone(ctx, resp, nil)
			return resp, nil
		}
	}

	resp.Status = StatusAborted
	resp.Termination = &RoundLimitExceeded{Limit: o.cfg.RoundLimit}
	resp.Text = abortText(lastText)
	o.hooks.OnDone(ctx, resp, nil)
	return resp, nil
}

// resolveTools picks the tool subset for the current conversation. Any
// retrieval failure falls back to the full catalog.
func (o *Orchestrator) resolveTools(ctx context.Context) ([]ToolDefinition, bool, error) {
	if !o.cfg.RetrievalEnabled {
		return o.catalog.All(), false, nil
	}
	if o.retriever == nil {
		return o.catalog.All(), true, &RetrievalError{Err: errors.New("no retriever configured")}
	}

	query := o.state.ConversationContext()
	result, err := o.retriever.Retrieve(ctx, query, o.cfg.TopK)
	if err != nil {
		var retrievalErr *RetrievalError
		if !errors.As(err, &retrievalErr) {
			err = &RetrievalError{Query: query, Err: err}
		}
		return o.catalog.All(), true, err
	}
	return result.Definitions(), false, nil
}

func abortText(lastText string) string {
	if lastText == "" {
		return RoundLimitMarker
	}
	return lastText + "\n\n" + RoundLimitMarker
}
