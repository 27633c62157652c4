package grpcx

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
)

// RequestIDMetadataKey carries the request id in gRPC metadata. It is the
// lowercase form of httpx.RequestIDHeader, so ids set by the HTTP edge and
// by gRPC callers land under the same context key and log attribute.
var RequestIDMetadataKey = strings.ToLower(httpx.RequestIDHeader)

func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" || len(id) > 128 {
		return ctx
	}
	return httpx.ContextWithRequestID(ctx, id)
}

func NewRequestID() string {
	return uuid.NewString()
}
