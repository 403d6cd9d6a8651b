// Package agent runs multi-agent conversations against an LLM completion
// provider: the active agent produces a completion, requested tool calls run
// locally, results are fed back, and a tool may hand the conversation to
// another agent.
//
// Invariants:
// - Agents are never mutated by a run; a handoff replaces the active agent.
// - Tool calls of one turn run sequentially, in the order they were requested.
// - Context variable updates merge shallowly, last write wins.
// - The context_variables parameter is never sent to a provider.
// - A failing tool function aborts the run; an unknown tool does not.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{Provider: provider, Logger: logger})
//	resp, _ := runner.Run(ctx, triage, []agent.Message{agent.UserMessage("hi")},
//		agent.WithContextVariables(agent.ContextVariables{"user": "ada"}),
//		agent.WithMaxTurns(10),
//	)
//	_ = resp.Messages
package agent
