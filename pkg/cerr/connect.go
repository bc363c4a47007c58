package cerr

import (
	"context"

	"connectrpc.com/connect"
)

// connectErrorInterceptor turns handler errors into connect errors on the
// server side. Client calls pass through untouched.
type connectErrorInterceptor struct{}

func NewConnectErrorInterceptor() connect.Interceptor {
	return connectErrorInterceptor{}
}

func (connectErrorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		resp, err := next(ctx, req)
		return resp, ExtractConnectError(ctx, err)
	}
}

func (connectErrorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (connectErrorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return ExtractConnectError(ctx, next(ctx, conn))
	}
}
