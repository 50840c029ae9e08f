// Package pg bootstraps the PostgreSQL backing of the subscription store.
//
// Connect opens a pgx/v5 pool with retries, OpenDB exposes the same pool
// through database/sql for subscription.PostgresStore, and Migrate applies the
// embedded goose migrations before the service accepts notifications.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//	store := subscription.NewPostgresStore(pg.OpenDB(pool))
//
// Error helpers such as IsDuplicateKeyError and IsSerializationError classify
// *pgconn.PgError values.
package pg
