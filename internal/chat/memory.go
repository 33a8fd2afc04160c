package chat

import "unicode/utf8"

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// EstimateTokens approximates the token count of s at 4 characters per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Memory is a token-bounded conversation history. Oldest turns are evicted
// first; after every Append the total is within the budget.
type Memory struct {
	limit  int
	turns  []Turn
	costs  []int
	tokens int
}

// NewMemory creates a Memory holding at most limit estimated tokens.
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Append adds a turn and evicts from the front until the budget holds.
// A single turn larger than the budget evicts everything including itself.
func (m *Memory) Append(turn Turn) {
	cost := EstimateTokens(turn.Content)
	m.turns = append(m.turns, turn)
	m.costs = append(m.costs, cost)
	m.tokens += cost

	drop := 0
	for m.tokens > m.limit && drop < len(m.turns) {
		m.tokens -= m.costs[drop]
		drop++
	}
	if drop > 0 {
		m.turns = append([]Turn(nil), m.turns[drop:]...)
		m.costs = append([]int(nil), m.costs[drop:]...)
	}
}

// Turns returns a copy of the retained history, oldest first. It is never nil.
func (m *Memory) Turns() []Turn {
	turns := make([]Turn, len(m.turns))
	copy(turns, m.turns)
	return turns
}

// Tokens returns the estimated size of the retained history.
func (m *Memory) Tokens() int { return m.tokens }

// Limit returns the token budget.
func (m *Memory) Limit() int { return m.limit }

// Reset drops all history.
func (m *Memory) Reset() {
	m.turns = nil
	m.costs = nil
	m.tokens = 0
}
