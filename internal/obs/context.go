package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestInfo collects attributes that inner handlers resolve (the matched route, the cart
// session) so the outer logging and metrics middleware can report them after the response.
type RequestInfo struct {
	mu      sync.Mutex
	route   string
	session string
}

type requestInfoKey struct{}

// SetRoute records the matched route pattern.
func (i *RequestInfo) SetRoute(route string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.route = route
	i.mu.Unlock()
}

// Route returns the recorded route pattern.
func (i *RequestInfo) Route() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.route
}

// Session returns the cart session resolved for the request, if any.
func (i *RequestInfo) Session() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session
}

// WithRequestInfo attaches a RequestInfo to ctx, reusing one already present.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if ctx == nil {
		ctx = context.Background()
	}
	if info := RequestInfoFrom(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// RequestInfoFrom returns the request's RequestInfo or nil.
func RequestInfoFrom(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// AnnotateSession records the cart session on the request info and the active span.
func AnnotateSession(ctx context.Context, sessionID string) {
	if info := RequestInfoFrom(ctx); info != nil {
		info.mu.Lock()
		info.session = sessionID
		info.mu.Unlock()
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("cart.session_id", sessionID))
}
