package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"github.com/harun/hive/internal/observability"
	"github.com/harun/hive/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilProvider is returned when a runner is created without a provider
var ErrNilProvider = errors.New("completion provider is required")

// ErrStreamConsumed is yielded when a streamed run is ranged over again
var ErrStreamConsumed = errors.New("stream already consumed")

// Runner drives the turn loop. It holds no per-run state and may be shared
// by concurrent runs.
type Runner struct {
	provider   Provider
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Provider Provider
	Logger   zerolog.Logger

	// ValidateArguments checks tool arguments against each function's schema
	// before invoking it. Invalid arguments are reported back to the model.
	ValidateArguments bool
}

// NewRunner creates a new runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, ErrNilProvider
	}

	dispatcher := NewDispatcher(cfg.Logger)
	dispatcher.ValidateArguments = cfg.ValidateArguments

	return &Runner{
		provider:   cfg.Provider,
		dispatcher: dispatcher,
		logger:     cfg.Logger,
	}, nil
}

type runOptions struct {
	contextVariables ContextVariables
	modelOverride    string
	maxTurns         int
	executeTools     bool
	debug            bool
}

// RunOption configures a single run
type RunOption func(*runOptions)

// WithContextVariables sets the initial context variables
func WithContextVariables(cv ContextVariables) RunOption {
	return func(o *runOptions) {
		o.contextVariables = cv
	}
}

// WithModelOverride replaces every agent's model for the run
func WithModelOverride(model string) RunOption {
	return func(o *runOptions) {
		o.modelOverride = model
	}
}

// WithMaxTurns bounds the number of messages appended by the run. A negative
// value means unlimited.
func WithMaxTurns(n int) RunOption {
	return func(o *runOptions) {
		if n < 0 {
			n = math.MaxInt
		}
		o.maxTurns = n
	}
}

// WithExecuteTools controls whether requested tool calls are executed.
// When false the run ends after the first completion.
func WithExecuteTools(execute bool) RunOption {
	return func(o *runOptions) {
		o.executeTools = execute
	}
}

// WithDebug logs the run at debug level
func WithDebug(debug bool) RunOption {
	return func(o *runOptions) {
		o.debug = debug
	}
}

func applyOptions(opts []RunOption) runOptions {
	o := runOptions{
		maxTurns:     math.MaxInt,
		executeTools: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.contextVariables = o.contextVariables.Clone()
	return o
}

// runState is the mutable state of one run. It lives on the run's stack.
type runState struct {
	ctx     context.Context
	logger  zerolog.Logger
	active  *Agent
	history []Message
	initLen int
	cv      ContextVariables
	turns   int
}

func newRunState(ctx context.Context, logger zerolog.Logger, agent *Agent, messages []Message, cv ContextVariables) *runState {
	history := make([]Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, m.Clone())
	}
	return &runState{
		ctx:     ctx,
		logger:  logger,
		active:  agent,
		history: history,
		initLen: len(history),
		cv:      cv,
	}
}

func (s *runState) canContinue(maxTurns int) bool {
	return len(s.history)-s.initLen < maxTurns && s.active != nil
}

func (s *runState) response() *Response {
	messages := make([]Message, len(s.history)-s.initLen)
	copy(messages, s.history[s.initLen:])
	return &Response{
		Messages:         messages,
		Agent:            s.active,
		ContextVariables: s.cv,
	}
}

// Run executes the turn loop until the active agent replies without tool
// calls, tool execution is disabled, or the turn budget is exhausted.
func (r *Runner) Run(ctx context.Context, agent *Agent, messages []Message, opts ...RunOption) (*Response, error) {
	o := applyOptions(opts)
	ctx, span, logger := r.startRun(ctx, agent, o, false)
	defer span.End()

	start := time.Now()
	state := newRunState(ctx, logger, agent, messages, o.contextVariables)

	for state.canContinue(o.maxTurns) {
		request := r.buildRequest(state, o, false)
		state.logger.Debug().Int("messages", len(request.Messages)).Msg("Getting chat completion")

		message, err := r.complete(state.ctx, request)
		if err != nil {
			return nil, r.failRun(span, state.logger, start, err)
		}

		done, err := r.finishTurn(state, *message, o)
		if err != nil {
			return nil, r.failRun(span, state.logger, start, err)
		}
		if done {
			break
		}
	}

	observability.RecordRun(time.Since(start), state.turns, true)
	return state.response(), nil
}

// EventType identifies a streamed run event
type EventType string

const (
	EventTurnStart EventType = "start"
	EventDelta     EventType = "delta"
	EventTurnEnd   EventType = "end"
	EventResponse  EventType = "response"
)

// StreamEvent is one element of a streamed run. The final element of a
// successful run has type EventResponse.
type StreamEvent struct {
	Type     EventType `json:"type"`
	Delta    *Delta    `json:"delta,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// RunStream executes the turn loop with streamed completions. The returned
// sequence is lazy and single pass: nothing happens until it is ranged over,
// and the run stops as soon as the consumer stops. Ranging over it again
// yields only ErrStreamConsumed. Each completion is framed by EventTurnStart
// and EventTurnEnd; an error is yielded once and ends the sequence.
func (r *Runner) RunStream(ctx context.Context, agent *Agent, messages []Message, opts ...RunOption) iter.Seq2[StreamEvent, error] {
	var consumed atomic.Bool
	return func(yield func(StreamEvent, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(StreamEvent{}, ErrStreamConsumed)
			return
		}

		o := applyOptions(opts)
		ctx, span, logger := r.startRun(ctx, agent, o, true)
		defer span.End()

		start := time.Now()
		state := newRunState(ctx, logger, agent, messages, o.contextVariables)

		for state.canContinue(o.maxTurns) {
			request := r.buildRequest(state, o, true)
			state.logger.Debug().Int("messages", len(request.Messages)).Msg("Getting chat completion")

			if !yield(StreamEvent{Type: EventTurnStart}, nil) {
				return
			}

			sender := state.active.Name
			acc := NewAccumulator(sender)
			completionStart := time.Now()
			for delta, err := range r.provider.Stream(state.ctx, request) {
				if err != nil {
					observability.RecordCompletion(r.provider.Name(), request.Model, time.Since(completionStart), false)
					yield(StreamEvent{}, r.failRun(span, state.logger, start, fmt.Errorf("completion failed: %w", err)))
					return
				}
				if delta == nil {
					continue
				}
				d := cloneDelta(*delta)
				if d.Role == RoleAssistant {
					d.Sender = sender
				}
				if !yield(StreamEvent{Type: EventDelta, Delta: &d}, nil) {
					return
				}
				acc.Add(d)
			}
			observability.RecordCompletion(r.provider.Name(), request.Model, time.Since(completionStart), true)

			if !yield(StreamEvent{Type: EventTurnEnd}, nil) {
				return
			}

			done, err := r.finishTurn(state, acc.Message(), o)
			if err != nil {
				yield(StreamEvent{}, r.failRun(span, state.logger, start, err))
				return
			}
			if done {
				break
			}
		}

		observability.RecordRun(time.Since(start), state.turns, true)
		yield(StreamEvent{Type: EventResponse, Response: state.response()}, nil)
	}
}

// CollectStream drains a streamed run and returns its Response
func CollectStream(seq iter.Seq2[StreamEvent, error]) (*Response, error) {
	var response *Response
	for event, err := range seq {
		if err != nil {
			return nil, err
		}
		if event.Type == EventResponse {
			response = event.Response
		}
	}
	if response == nil {
		return nil, fmt.Errorf("stream ended without a response")
	}
	return response, nil
}

func (r *Runner) startRun(ctx context.Context, agent *Agent, o runOptions, stream bool) (context.Context, trace.Span, zerolog.Logger) {
	if ctx == nil {
		ctx = context.Background()
	}
	agentName := ""
	if agent != nil {
		agentName = agent.Name
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.NewAgentRunContext(ctx, agentName)
	ctx, span := tracing.StartSpan(
		ctx,
		"hive.agent",
		"agent.run",
		attribute.String("agent", agentName),
		attribute.Bool("stream", stream),
	)

	logger := tracing.LoggerFromContext(ctx, r.logger)
	if o.debug {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return ctx, span, logger
}

func (r *Runner) failRun(span trace.Span, logger zerolog.Logger, start time.Time, err error) error {
	tracing.FailSpan(span, err)
	observability.RecordRun(time.Since(start), 0, false)
	logger.Error().Err(err).Msg("Agent run failed")
	return err
}

// buildRequest assembles the completion request for the active agent.
// Instructions are resolved against the current context variables.
func (r *Runner) buildRequest(state *runState, o runOptions, stream bool) *CompletionRequest {
	active := state.active
	instructions := active.Instructions.Resolve(state.cv)

	messages := make([]Message, 0, len(state.history)+1)
	messages = append(messages, SystemMessage(instructions))
	messages = append(messages, state.history...)

	model := active.Model
	if o.modelOverride != "" {
		model = o.modelOverride
	}

	request := &CompletionRequest{
		Model:      model,
		Messages:   messages,
		Tools:      active.ToolSchemas(),
		ToolChoice: active.ToolChoice,
		Stream:     stream,
	}
	if len(request.Tools) > 0 {
		parallel := active.ParallelToolCalls
		request.ParallelToolCalls = &parallel
	}
	return request
}

func (r *Runner) complete(ctx context.Context, request *CompletionRequest) (*Message, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"hive.agent",
		"agent.completion",
		attribute.String("provider", r.provider.Name()),
		attribute.String("model", request.Model),
	)
	defer span.End()
	start := time.Now()

	message, err := r.provider.Complete(ctx, request)
	if err == nil && message == nil {
		err = fmt.Errorf("provider %s returned no message", r.provider.Name())
	}
	if err != nil {
		observability.RecordCompletion(r.provider.Name(), request.Model, time.Since(start), false)
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	observability.RecordCompletion(r.provider.Name(), request.Model, time.Since(start), true)
	return message, nil
}

// finishTurn records the assistant message and, when tools should run,
// dispatches its tool calls. It reports whether the loop is done.
func (r *Runner) finishTurn(state *runState, message Message, o runOptions) (bool, error) {
	if message.Role == "" {
		message.Role = RoleAssistant
	}
	message.Sender = state.active.Name
	state.logger.Debug().
		Str("agent", message.Sender).
		Str("content", message.ContentString()).
		Int("tool_calls", len(message.ToolCalls)).
		Msg("Received completion")

	state.history = append(state.history, message.Clone())
	state.turns++

	if len(message.ToolCalls) == 0 || !o.executeTools {
		state.logger.Debug().Msg("Ending turn")
		return true, nil
	}

	partial, err := r.dispatcher.Dispatch(state.ctx, message.ToolCalls, state.active.Functions, state.cv)
	if err != nil {
		return false, err
	}

	state.history = append(state.history, partial.Messages...)
	state.cv = state.cv.Merge(partial.ContextVariables)
	if partial.Agent != nil {
		state.logger.Info().
			Str("from", state.active.Name).
			Str("to", partial.Agent.Name).
			Msg("Agent handoff")
		observability.RecordHandoff(state.active.Name, partial.Agent.Name)
		observability.RecordHandoffAudit(state.ctx, state.active.Name, partial.Agent.Name)
		state.active = partial.Agent
		state.ctx = tracing.PropagateHandoff(state.ctx, partial.Agent.Name)
		state.logger = tracing.LoggerFromContext(state.ctx, r.logger)
		if o.debug {
			state.logger = state.logger.Level(zerolog.DebugLevel)
		}
	}
	return false, nil
}

func cloneDelta(d Delta) Delta {
	if d.ToolCalls != nil {
		calls := make([]ToolCallDelta, len(d.ToolCalls))
		copy(calls, d.ToolCalls)
		d.ToolCalls = calls
	}
	return d
}
