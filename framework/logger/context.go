package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext кладет логгер в context
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достает логгер из context.
// Если логгера нет, возвращается глобальный zap.L().
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.L()
}
