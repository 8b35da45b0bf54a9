package utils

import (
	"context"

	"github.com/mmdatafocus/hotel_migration/appctx"
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.Get[string](ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

func GetRunIdFromContext(ctx context.Context) (int, bool) {
	return appctx.Get[int](ctx, appctx.ContextKeyRunId)
}

func SetRunIdInContext(ctx context.Context, runId int) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyRunId, runId)
}

func SetPropertyIdInContext(ctx context.Context, propertyId int) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyPropertyId, propertyId)
}

func GetEntityKindFromContext(ctx context.Context) (string, bool) {
	return appctx.Get[string](ctx, appctx.ContextKeyEntityKind)
}

func SetEntityKindInContext(ctx context.Context, kind string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyEntityKind, kind)
}

// WithoutPropertyScope marks ctx so the property scope plugin leaves queries untouched.
func WithoutPropertyScope(ctx context.Context) context.Context {
	return appctx.Set(ctx, appctx.ContextKeySkipPropertyScope, true)
}
