// Package errutil logs failures that reach a request or startup boundary.
package errutil

import (
	"context"
	"log/slog"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
)

// operationKey is the oops context key services use to name the failing call.
const operationKey = "operation"

// LogError logs err at error level. The chi request id, when present on ctx,
// is attached so the line joins the access log. For oops errors the code and
// the operation are promoted to top-level attributes, the remaining context
// is grouped under "context", and the stacktrace is added when debug logging
// is enabled.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	attrs := []slog.Attr{slog.String("error", err.Error())}
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, slog.Any("code", code))
		}
		var rest []any
		for k, v := range oopsErr.Context() {
			if k == operationKey {
				attrs = append(attrs, slog.Any(operationKey, v))
				continue
			}
			rest = append(rest, slog.Any(k, v))
		}
		if len(rest) > 0 {
			attrs = append(attrs, slog.Group("context", rest...))
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			attrs = append(attrs, slog.String("stacktrace", oopsErr.Stacktrace()))
		}
	}

	logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}
