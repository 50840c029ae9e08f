// Package requestid attaches a correlation ID to every HTTP request.
//
// The middleware reuses a well-formed X-Request-ID sent by the caller, which
// lets a load balancer or a replay tool correlate its own logs with ours, and
// generates a UUIDv7 otherwise. The ID is echoed in the response and stored in
// the request context, where LoggerExtractor picks it up for structured logs:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
package requestid
