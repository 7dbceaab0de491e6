package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLifecycle(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	payload := []byte(`{"productId":"p1","quantity":5}`)

	res, err := ledger.Check(ctx, "k1", "inventory-service", "add_stock", payload)
	require.NoError(t, err)
	assert.True(t, res.Fresh)

	// Same key while pending: concurrent duplicate rejected.
	_, err = ledger.Check(ctx, "k1", "inventory-service", "add_stock", payload)
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, ledger.MarkCompleted(ctx, "k1", []byte(`{"ok":true}`), 200))

	res, err = ledger.Check(ctx, "k1", "inventory-service", "add_stock", payload)
	require.NoError(t, err)
	assert.False(t, res.Fresh)
	assert.Equal(t, []byte(`{"ok":true}`), res.ResultPayload)
	assert.Equal(t, 200, res.ResultStatusCode)
}

func TestFailedKeyIsRetrySafe(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	payload := []byte(`{"productId":"p1"}`)

	res, err := ledger.Check(ctx, "k1", "order-service", "create_order", payload)
	require.NoError(t, err)
	require.True(t, res.Fresh)

	require.NoError(t, ledger.MarkFailed(ctx, "k1", "payment declined"))

	res, err = ledger.Check(ctx, "k1", "order-service", "create_order", payload)
	require.NoError(t, err)
	assert.True(t, res.Fresh, "failed key must re-admit the operation")
}

func TestFingerprintMismatchRejected(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()

	_, err := ledger.Check(ctx, "k1", "order-service", "create_order", []byte(`{"a":1}`))
	require.NoError(t, err)

	_, err = ledger.Check(ctx, "k1", "order-service", "create_order", []byte(`{"a":2}`))
	require.ErrorIs(t, err, ErrKeyReused)
}

func TestConcurrentSameKeyAdmitsExactlyOne(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	payload := []byte(`{"n":1}`)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh, rejected := 0, 0

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			res, err := ledger.Check(ctx, "contended", "svc", "op", payload)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Fresh:
				fresh++
			case errors.Is(err, ErrInProgress):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh, "exactly one caller may execute")
	assert.Equal(t, callers-1, rejected)
}

func TestSweepKeepsPending(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()

	_, err := ledger.Check(ctx, "settled", "svc", "op", []byte(`1`))
	require.NoError(t, err)
	require.NoError(t, ledger.MarkCompleted(ctx, "settled", nil, 200))

	_, err = ledger.Check(ctx, "inflight", "svc", "op", []byte(`2`))
	require.NoError(t, err)

	removed, err := ledger.Sweep(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The pending key still blocks duplicates.
	_, err = ledger.Check(ctx, "inflight", "svc", "op", []byte(`2`))
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint([]byte(`{"x":1}`))
	b := Fingerprint([]byte(`{"x":1}`))
	c := Fingerprint([]byte(`{"x":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
