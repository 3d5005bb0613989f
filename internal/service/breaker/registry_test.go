package breaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/repository"
)

var errBadGateway = errors.New("502 bad gateway")

func TestSuccessLeavesBreakerClosed(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	require.NoError(t, r.Do(context.Background(), News, func(context.Context) error { return nil }))

	st := r.Status()
	require.Len(t, st, 1)
	assert.Equal(t, "closed", st[0].State)
	assert.Equal(t, uint32(0), st[0].Failures)
}

func TestFiveFailuresOpen(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	fail := func(context.Context) error { return errBadGateway }

	for i := 0; i < MaxFailures-1; i++ {
		assert.ErrorIs(t, r.Do(context.Background(), News, fail), errBadGateway)
		assert.False(t, r.IsOpen(News))
	}
	assert.ErrorIs(t, r.Do(context.Background(), News, fail), errBadGateway)
	assert.True(t, r.IsOpen(News))

	called := false
	err := r.Do(context.Background(), News, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, repository.ErrUpstreamUnavailable)

	st := r.Status()
	require.Len(t, st, 1)
	assert.True(t, st[0].Open())
	assert.Equal(t, uint32(MaxFailures), st[0].Failures)
	assert.False(t, st[0].OpenedAt.IsZero())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	fail := func(context.Context) error { return errBadGateway }

	for i := 0; i < MaxFailures-1; i++ {
		_ = r.Do(context.Background(), Insider, fail)
	}
	require.NoError(t, r.Do(context.Background(), Insider, func(context.Context) error { return nil }))
	_ = r.Do(context.Background(), Insider, fail)

	assert.False(t, r.IsOpen(Insider))
	assert.Equal(t, uint32(1), r.Status()[0].Failures)
}

func TestCallReturnsFallback(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	for i := 0; i < MaxFailures; i++ {
		_ = r.Do(context.Background(), OHLCV, func(context.Context) error { return errBadGateway })
	}

	v, err := Call(context.Background(), r, OHLCV,
		func(context.Context) (float64, error) { return 1.5, nil },
		func() float64 { return -1 })
	assert.ErrorIs(t, err, repository.ErrUpstreamUnavailable)
	assert.Equal(t, -1.0, v)

	v, err = Call[float64](context.Background(), r, CryptoOHLCV,
		func(context.Context) (float64, error) { return 2.5, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestResetOpen(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	for i := 0; i < MaxFailures; i++ {
		_ = r.Do(context.Background(), Fundamentals, func(context.Context) error { return errBadGateway })
	}
	_ = r.Do(context.Background(), News, func(context.Context) error { return nil })

	assert.Equal(t, []string{Fundamentals}, r.ResetOpen())
	assert.False(t, r.IsOpen(Fundamentals))
	assert.Empty(t, r.ResetOpen())
}
