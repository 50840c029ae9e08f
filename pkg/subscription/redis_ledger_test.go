package subscription_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

func newRedisLedger(t *testing.T, opts ...subscription.RedisLedgerOption) (*subscription.RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return subscription.NewRedisLedger(client, opts...), mr
}

func TestRedisLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger, mr := newRedisLedger(t)

	fresh, err := ledger.Reserve(ctx, "evt_1", testNow)
	require.NoError(t, err)
	assert.True(t, fresh)

	key := subscription.DefaultRedisKeyPrefix + "evt_1"
	assert.True(t, mr.Exists(key))
	assert.Zero(t, mr.TTL(key), "reservations must not expire")

	fresh, err = ledger.Reserve(ctx, "evt_1", testNow)
	require.NoError(t, err)
	assert.False(t, fresh)

	seen, err := ledger.Contains(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, ledger.Release(ctx, "evt_1"))
	seen, err = ledger.Contains(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisLedger_KeyPrefix(t *testing.T) {
	t.Parallel()

	ledger, mr := newRedisLedger(t, subscription.WithKeyPrefix("tenant:a:"))

	_, err := ledger.Reserve(context.Background(), "evt_1", testNow)
	require.NoError(t, err)
	assert.True(t, mr.Exists("tenant:a:evt_1"))
	assert.False(t, mr.Exists(subscription.DefaultRedisKeyPrefix+"evt_1"))
}

func TestRedisLedger_Unavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger, mr := newRedisLedger(t)
	mr.SetError("ERR server unavailable")

	_, err := ledger.Reserve(ctx, "evt_1", testNow)
	assert.ErrorIs(t, err, subscription.ErrLedgerUnavailable)
	_, err = ledger.Contains(ctx, "evt_1")
	assert.ErrorIs(t, err, subscription.ErrLedgerUnavailable)
	assert.ErrorIs(t, ledger.Release(ctx, "evt_1"), subscription.ErrLedgerUnavailable)
	assert.True(t, subscription.IsRetryable(err))
}

func TestRedisLedger_WithEngine(t *testing.T) {
	t.Parallel()

	ledger, _ := newRedisLedger(t)
	engine := newTestEngine(t, subscription.NewMemoryStore(),
		subscription.WithLedger(ledger),
		subscription.WithReservationMode(subscription.ReservationReserveFirst),
	)
	payload := stripeCheckout(t, "evt_1", at(0), testAccount, "pro")

	out, err := ingest(t, engine, payload)
	require.NoError(t, err)
	assert.Equal(t, subscription.ResultApplied, out.Result)

	out, err = ingest(t, engine, payload)
	require.NoError(t, err)
	assert.Equal(t, subscription.ResultDuplicate, out.Result)
}
