// Package redis connects to the Redis server that backs the idempotency
// ledger and exposes a readiness check for it.
//
//	var cfg redis.Config
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	ledger := subscription.NewRedisLedger(client, subscription.WithKeyPrefix(cfg.KeyPrefix))
//	checks = append(checks, redis.Healthcheck(client))
//
// Configuration is read from REDIS_* environment variables, see Config.
package redis
