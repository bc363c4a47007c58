package clog

import (
	"context"
	"maps"
	"sync"
)

// Attribute keys shared by the request middlewares and the assignment
// service, so the text handler can print them as columns.
const (
	AssignmentIDKey   = "assignment_id"
	ServiceOrderIDKey = "service_order_id"
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// requestAttributes collects attributes over the lifetime of one request.
// Every record logged with the request context carries them.
type requestAttributes struct {
	mu    sync.Mutex
	attrs map[string]any
}

type requestAttributesKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestAttributesKey{}, &requestAttributes{attrs: map[string]any{}})
}

func fromContext(ctx context.Context) *requestAttributes {
	ra, _ := ctx.Value(requestAttributesKey{}).(*requestAttributes)
	return ra
}

// AddAttribute is a no-op on a context not prepared by ContextWithSlog.
func AddAttribute(ctx context.Context, key string, value any) {
	AddAttributes(ctx, map[string]any{key: value})
}

// AddAttributes merges nested maps key by key instead of replacing them.
func AddAttributes(ctx context.Context, attributes map[string]any) {
	ra := fromContext(ctx)
	if ra == nil {
		return
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	mergeMaps(ra.attrs, attributes)
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		vMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			mergeMaps(dstMap, vMap)
			continue
		}
		dst[k] = maps.Clone(vMap)
	}
}

func AddAssignment(ctx context.Context, assignmentID string) {
	AddAttribute(ctx, AssignmentIDKey, assignmentID)
}

func AddServiceOrder(ctx context.Context, serviceOrderID string) {
	AddAttribute(ctx, ServiceOrderIDKey, serviceOrderID)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

// GetAttributes returns a shallow copy of the attributes collected so far.
func GetAttributes(ctx context.Context) map[string]any {
	ra := fromContext(ctx)
	if ra == nil {
		return nil
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	return maps.Clone(ra.attrs)
}
