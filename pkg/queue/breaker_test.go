package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerStoreAllowsWhenNoRowExists(t *testing.T) {
	pool := newTestPool(t)
	breaker := NewBreakerStore(pool)

	allowed, err := breaker.Allow(context.Background(), "llm:openai", time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestBreakerStoreOpensAfterThreshold(t *testing.T) {
	pool := newTestPool(t)
	breaker := NewBreakerStore(pool)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, "llm:openai", 3, time.Minute))
	}
	allowed, err := breaker.Allow(ctx, "llm:openai", time.Minute)
	require.NoError(t, err)
	require.True(t, allowed, "below threshold should still allow")

	require.NoError(t, breaker.RecordFailure(ctx, "llm:openai", 3, time.Minute))
	allowed, err = breaker.Allow(ctx, "llm:openai", time.Minute)
	require.NoError(t, err)
	require.False(t, allowed, "at threshold should trip open")
}

func TestBreakerStorePromotesToHalfOpenAfterCooldown(t *testing.T) {
	pool := newTestPool(t)
	breaker := NewBreakerStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, "llm:openai", 3, time.Minute))
	}
	allowed, err := breaker.Allow(ctx, "llm:openai", time.Nanosecond)
	require.NoError(t, err)
	require.True(t, allowed, "cooldown elapsed should promote to half_open and allow a probe")
}

func TestBreakerStoreRecordSuccessCloses(t *testing.T) {
	pool := newTestPool(t)
	breaker := NewBreakerStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, "llm:openai", 3, time.Minute))
	}
	require.NoError(t, breaker.RecordSuccess(ctx, "llm:openai"))

	allowed, err := breaker.Allow(ctx, "llm:openai", time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestBreakerStoreListOpen(t *testing.T) {
	pool := newTestPool(t)
	breaker := NewBreakerStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, "llm:anthropic", 3, time.Minute))
	}

	open, err := breaker.ListOpen(ctx)
	require.NoError(t, err)
	require.Contains(t, open, "llm:anthropic")
}
