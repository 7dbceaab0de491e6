package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote blew up")

func passthroughFallback(ctx context.Context, cause error) error { return cause }

func testConfig() Config {
	return Config{
		Timeout:                  100 * time.Millisecond,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Second,
		RollingWindow:            10 * time.Second,
		MinRequests:              4,
	}
}

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	b, err := New(t.Name(), testConfig(), passthroughFallback)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestNewRequiresFallback(t *testing.T) {
	_, err := New("orphan", testConfig(), nil)
	require.ErrorIs(t, err, ErrNoFallback)
}

func TestSuccessKeepsClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Do(context.Background(), func(ctx context.Context) error { return nil }))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestOpensAtErrorThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MinRequests = 6
	b, err := New(t.Name(), cfg, passthroughFallback)
	require.NoError(t, err)
	ctx := context.Background()

	// 3 successes + 3 failures = 50% error rate, opening on the sixth call.
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Do(ctx, func(ctx context.Context) error { return nil }))
	}
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(ctx, func(ctx context.Context) error { return errRemote }), errRemote)
	}
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err = b.Do(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.False(t, invoked, "open breaker must not invoke the remote call")
}

func TestBelowMinRequestsStaysClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.Error(t, b.Do(ctx, func(ctx context.Context) error { return errRemote }))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := b.Do(ctx, func(ctx context.Context) error {
			time.Sleep(300 * time.Millisecond)
			return nil
		})
		require.ErrorIs(t, err, ErrTimeout)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()
	forceOpen(t, b)

	*now = now.Add(31 * time.Second)

	invoked := false
	require.NoError(t, b.Do(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	}))
	assert.True(t, invoked, "probe call must reach the remote")
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b, now := newTestBreaker(t)
	ctx := context.Background()
	forceOpen(t, b)

	*now = now.Add(31 * time.Second)
	require.ErrorIs(t, b.Do(ctx, func(ctx context.Context) error { return errRemote }), errRemote)
	assert.Equal(t, StateOpen, b.State())

	// Cooldown restarts after a failed probe.
	err := b.Do(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestFallbackAnswersWhileOpen(t *testing.T) {
	fallbackErr := errors.New("inventory unavailable, try again later")
	b, err := New(t.Name(), testConfig(), func(ctx context.Context, cause error) error {
		assert.ErrorIs(t, cause, ErrServiceUnavailable)
		return fallbackErr
	})
	require.NoError(t, err)
	forceOpen(t, b)

	got := b.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, fallbackErr, got)
}

func forceOpen(t *testing.T, b *Breaker) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.Error(t, b.Do(ctx, func(ctx context.Context) error { return errRemote }))
	}
	require.Equal(t, StateOpen, b.State())
}
