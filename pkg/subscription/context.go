package subscription

import (
	"context"
	"log/slog"
)

type eventIDCtxKey struct{}

// SetEventIDToContext stores the provider event ID being processed.
func SetEventIDToContext(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDCtxKey{}, eventID)
}

// GetEventIDFromContext returns the provider event ID being processed, if any.
func GetEventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDCtxKey{}).(string)
	return id, ok && id != ""
}

// EventIDLogExtractor adds the event ID to every log record written with the context.
// It matches logger.ContextExtractor.
func EventIDLogExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := GetEventIDFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("event_id", id), true
}
