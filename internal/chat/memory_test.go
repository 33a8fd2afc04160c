package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 1, EstimateTokens("four"))
	assert.Equal(t, 2, EstimateTokens("fives"))
	assert.Equal(t, 1, EstimateTokens("日本語"), "runes, not bytes")
}

func TestMemory_EvictsOldestFirst(t *testing.T) {
	m := NewMemory(10)
	turn := func(i int) Turn { return Turn{Role: RoleUser, Content: strings.Repeat(string(rune('a'+i)), 12)} } // 3 tokens

	for i := 0; i < 6; i++ {
		m.Append(turn(i))
		assert.LessOrEqual(t, m.Tokens(), m.Limit())
	}

	turns := m.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, turn(3), turns[0])
	assert.Equal(t, turn(5), turns[2])
	assert.Equal(t, 9, m.Tokens())
}

func TestMemory_BudgetProperty(t *testing.T) {
	for _, budget := range []int{1, 5, 17, 100} {
		m := NewMemory(budget)
		var appended []Turn
		for i := 0; i < 40; i++ {
			turn := Turn{Role: RoleAssistant, Content: strings.Repeat("x", (i*7)%23)}
			appended = append(appended, turn)
			m.Append(turn)

			kept := m.Turns()
			total := 0
			for _, k := range kept {
				total += EstimateTokens(k.Content)
			}
			assert.LessOrEqual(t, total, budget)
			assert.Equal(t, total, m.Tokens())
			// The retained turns are always a suffix of everything appended.
			require.NotNil(t, kept)
			assert.Equal(t, appended[len(appended)-len(kept):], kept)
		}
	}
}

func TestMemory_OversizedTurnEvictsEverything(t *testing.T) {
	m := NewMemory(4)
	m.Append(Turn{Role: RoleUser, Content: "hey"})
	m.Append(Turn{Role: RoleUser, Content: strings.Repeat("z", 100)})

	assert.Equal(t, []Turn{}, m.Turns())
	assert.Zero(t, m.Tokens())
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory(100)
	m.Append(Turn{Role: RoleUser, Content: "question"})
	m.Reset()
	assert.Empty(t, m.Turns())
	assert.Zero(t, m.Tokens())
}
