// Package context 在请求 context 上携带存储聚合与关联 ID，并据此派生带追踪字段的 logger.
package context

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/storyvault/pkg/internal/storage"
	nlog "github.com/yeisme/storyvault/pkg/log"
)

type key int

const (
	storageKey key = iota
	correlationKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// WithStorage 注入存储聚合.
func WithStorage(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, storageKey, mgr)
}

// Storage 未注入时返回 nil，*storage.Manager 的访问器对 nil 安全.
func Storage(ctx context.Context) *storage.Manager {
	mgr, _ := value[*storage.Manager](ctx, storageKey)
	return mgr
}

// WithCorrelationID id 为空时生成新的 UUID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}

	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID 不存在时返回空串.
func CorrelationID(ctx context.Context) string {
	id, _ := value[string](ctx, correlationKey)
	return id
}

// Logger 返回组件 logger，附带当前 span 与关联 ID.
func Logger(ctx context.Context, component string) zerolog.Logger {
	zc := nlog.Component(component).With()

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		zc = zc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	if id := CorrelationID(ctx); id != "" {
		zc = zc.Str("correlation_id", id)
	}

	return zc.Logger()
}
