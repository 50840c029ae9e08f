// Package logger builds the service's *slog.Logger.
//
// New takes functional options: WithEnvironment picks the preset (text and
// debug in development, JSON and info elsewhere) and Config lets LOG_LEVEL and
// LOG_FORMAT override it. ContextExtractor callbacks copy request-scoped values
// such as the event ID being ingested or the request ID into every record
// logged with that context:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "billingsync"),
//		logger.WithContextExtractors(subscription.EventIDLogExtractor),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "event applied",
//		logger.AccountID(rec.AccountID),
//		logger.Outcome(out.Result),
//	)
//
// The attribute helpers keep key names consistent across packages. Error,
// Errors, EventID, Reason and RequestID return an empty Attr for empty input,
// which slog drops, so callers need no nil checks.
package logger
