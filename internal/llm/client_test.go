package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsage(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 5}
	b := Usage{InputTokens: 3, OutputTokens: 7}

	assert.Equal(t, 15, a.Total())
	assert.Equal(t, Usage{InputTokens: 13, OutputTokens: 12}, a.Add(b))
}

func TestCallContext(t *testing.T) {
	t.Run("adds deadline when caller has none", func(t *testing.T) {
		ctx, cancel := callContext(context.Background(), time.Minute)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.InDelta(t, time.Minute.Seconds(), time.Until(deadline).Seconds(), 5)
	})

	t.Run("keeps the caller deadline", func(t *testing.T) {
		parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
		defer parentCancel()
		want, _ := parent.Deadline()

		ctx, cancel := callContext(parent, time.Minute)
		defer cancel()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got, "a caller deadline must not be replaced")
	})

	t.Run("no deadline when timeout disabled", func(t *testing.T) {
		ctx, cancel := callContext(context.Background(), 0)
		defer cancel()

		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})
}
