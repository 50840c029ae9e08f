package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces processed event keys.
const DefaultRedisKeyPrefix = "billingsync:event:"

// RedisLedger records processed events as Redis keys set with SETNX.
// Keys never expire: providers may redeliver an event days later.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithKeyPrefix overrides DefaultRedisKeyPrefix.
func WithKeyPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// NewRedisLedger creates a ledger on client. Panics if client is nil.
func NewRedisLedger(client redis.UniversalClient, opts ...RedisLedgerOption) *RedisLedger {
	if client == nil {
		panic("subscription: nil redis client")
	}
	l := &RedisLedger{client: client, prefix: DefaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLedger) Reserve(ctx context.Context, eventID string, appliedAt time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(eventID), appliedAt.UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return false, errors.Join(ErrLedgerUnavailable, err)
	}
	return ok, nil
}

func (l *RedisLedger) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, errors.Join(ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, l.key(eventID)).Err(); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) key(eventID string) string {
	return l.prefix + eventID
}
