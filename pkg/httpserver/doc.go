// Package httpserver runs the notification endpoint with graceful shutdown.
//
// Server binds the listener, serves until the context is cancelled or the
// process receives SIGINT or SIGTERM, and then gives in-flight requests the
// shutdown timeout to finish. A notification acknowledged before shutdown has
// always been committed; one cut off is redelivered by the provider.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// LivenessHandler and ReadinessHandler serve /healthz and /readyz. Readiness
// runs named checks such as pg.Healthcheck and redis.Healthcheck.
package httpserver
