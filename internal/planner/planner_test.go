package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPromptListsState(t *testing.T) {
	p := SystemPrompt(Context{Tabs: []string{"Overview", "Details"}, Columns: []string{"region", "has_color"}})

	assert.Contains(t, p, "delete_tab (name)")
	assert.Contains(t, p, "rollback_layout")
	assert.Contains(t, p, "Current tabs: Overview, Details")
	assert.Contains(t, p, "Available columns: region, has_color")
}

func TestSystemPromptCapsColumns(t *testing.T) {
	cols := make([]string, maxListed+5)
	for i := range cols {
		cols[i] = "c"
	}
	p := SystemPrompt(Context{Columns: cols})
	assert.Contains(t, p, "(5 more)")
	assert.Contains(t, p, "Current tabs: (none)")
}

func TestCommandsExtractsFromProse(t *testing.T) {
	var got Context
	fake := Func(func(_ context.Context, request string, pc Context) (string, error) {
		got = pc
		assert.Equal(t, "remove the overview", request)
		return "Sure:\n```json\n{\"action\":\"delete_tab\",\"name\":\"Overview\"}\n```", nil
	})

	raws, reply, err := Commands(context.Background(), fake, "remove the overview", Context{Tabs: []string{"Overview"}})
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.JSONEq(t, `{"action":"delete_tab","name":"Overview"}`, string(raws[0].Object))
	assert.True(t, strings.HasPrefix(reply, "Sure:"))
	assert.Equal(t, []string{"Overview"}, got.Tabs)
}

func TestCommandsNoJSON(t *testing.T) {
	fake := Func(func(context.Context, string, Context) (string, error) {
		return "I cannot help with that.", nil
	})
	_, reply, err := Commands(context.Background(), fake, "x", Context{})
	assert.ErrorIs(t, err, ErrNoCommands)
	assert.Equal(t, "I cannot help with that.", reply)
}

func TestCommandsPropagatesError(t *testing.T) {
	boom := errors.New("quota exceeded")
	fake := Func(func(context.Context, string, Context) (string, error) { return "", boom })
	_, _, err := Commands(context.Background(), fake, "x", Context{})
	assert.ErrorIs(t, err, boom)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
