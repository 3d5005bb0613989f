package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstPerKey(t *testing.T) {
	l := New(1, 2)

	assert.True(t, l.Allow("news"))
	assert.True(t, l.Allow("news"))
	assert.False(t, l.Allow("news"))

	assert.True(t, l.Allow("insider"), "keys have separate buckets")
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(1, 1)
	assert.True(t, l.Allow("ohlcv"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "ohlcv"))
}
