package include

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var (
	slogCtxKey = ctxKey{}
)

// discard is used whenever the context carries no logger, so callers that
// don't care about logs pay nothing for them.
var discard = slog.New(slog.DiscardHandler)

func logger(ctx context.Context) *slog.Logger {
	val := ctx.Value(slogCtxKey)
	if val == nil {
		return discard
	}
	logger, ok := val.(*slog.Logger)
	if !ok || logger == nil {
		return discard
	}
	return logger
}

// LoggingContext returns a copy of ctx that carries logger. Includer and
// Handler log through it.
func LoggingContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, slogCtxKey, logger)
}
