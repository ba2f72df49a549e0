package http

import (
	"context"
	"log/slog"

	"github.com/example/intercity-bus/internal/logging"
)

type contextKey string

const (
	companyIDContextKey contextKey = "company_id"
	pathIDContextKey    contextKey = "path_id"
	stopIDContextKey    contextKey = "stop_id"
	pathDateContextKey  contextKey = "path_date"
)

// ContextWithCompanyID injects the carrier identifier resolved from the
// request headers.
func ContextWithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDContextKey, companyID)
}

// CompanyIDFromContext extracts the carrier identifier from the context.
func CompanyIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(companyIDContextKey).(string)
	return id, ok
}

// ContextWithPathID injects the resource identifier resolved from the request
// path.
func ContextWithPathID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pathIDContextKey, id)
}

// PathIDFromContext extracts a resource identifier previously associated with
// the context.
func PathIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pathIDContextKey).(string)
	return id, ok
}

// ContextWithStopID injects the stop identifier resolved from a nested
// request path.
func ContextWithStopID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stopIDContextKey, id)
}

// StopIDFromContext extracts a stop identifier previously associated with the
// context.
func StopIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(stopIDContextKey).(string)
	return id, ok
}

// ContextWithPathDate injects a date segment resolved from a nested request
// path, still in its wire form.
func ContextWithPathDate(ctx context.Context, date string) context.Context {
	return context.WithValue(ctx, pathDateContextKey, date)
}

// PathDateFromContext extracts a date segment previously associated with the
// context.
func PathDateFromContext(ctx context.Context) (string, bool) {
	date, ok := ctx.Value(pathDateContextKey).(string)
	return date, ok
}

// ContextWithLogger attaches a request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request-scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
