// Package appctx holds the context keys shared by config and utils.
package appctx

import "context"

type ContextKey string

func (c ContextKey) String() string { return "appctx." + string(c) }

const (
	ContextKeyCorrelationId     = ContextKey("CorrelationId")
	ContextKeyRunId             = ContextKey("RunId")
	ContextKeyPropertyId        = ContextKey("PropertyId")
	ContextKeyEntityKind        = ContextKey("EntityKind")
	ContextKeySkipPropertyScope = ContextKey("SkipPropertyScope")
)

// Get returns the value stored under key when it has type T.
func Get[T any](ctx context.Context, key ContextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
