package gateway

import (
	"sync"

	"github.com/harun/hive/pkg/agent"
)

// Session is the conversation a client carries across chat.send calls: its
// history, the agent holding the floor and the context variables. At most one
// run is in flight per session.
type Session struct {
	mu               sync.Mutex
	running          bool
	active           *agent.Agent
	history          []agent.Message
	contextVariables agent.ContextVariables
}

// NewSession creates a session that starts with entry holding the floor
func NewSession(entry *agent.Agent) *Session {
	return &Session{
		active:           entry,
		contextVariables: agent.ContextVariables{},
	}
}

// SessionSnapshot is a copy of the session state taken at the start of a run
type SessionSnapshot struct {
	Active           *agent.Agent
	History          []agent.Message
	ContextVariables agent.ContextVariables
}

// Begin marks a run in flight and returns the current state. It reports
// false when another run holds the session.
func (s *Session) Begin() (SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return SessionSnapshot{}, false
	}
	s.running = true

	history := make([]agent.Message, len(s.history))
	copy(history, s.history)
	return SessionSnapshot{
		Active:           s.active,
		History:          history,
		ContextVariables: s.contextVariables.Clone(),
	}, true
}

// Commit appends the run's messages to the history and adopts its final
// agent and context variables. An agent selected for the run only takes the
// floor here, so a failed run leaves the session untouched.
func (s *Session) Commit(sent []agent.Message, resp *agent.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, sent...)
	if resp == nil {
		return
	}
	s.history = append(s.history, resp.Messages...)
	if resp.Agent != nil {
		s.active = resp.Agent
	}
	s.contextVariables = resp.ContextVariables.Clone()
}

// End releases the session after a run
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Reset clears the history and hands the floor to entry
func (s *Session) Reset(entry *agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = entry
	s.history = nil
	s.contextVariables = agent.ContextVariables{}
}

// Stats returns the active agent's name and the history length
func (s *Session) Stats() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ""
	if s.active != nil {
		name = s.active.Name
	}
	return name, len(s.history)
}
