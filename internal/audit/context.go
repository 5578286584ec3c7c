package audit

import "context"

type requestMetaKey struct{}

// RequestMeta carries the transport-level fields recorded alongside an entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// ContextWithRequestMeta attaches client metadata for later audit writes.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	if meta == (RequestMeta{}) {
		return ctx
	}
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns previously attached client metadata.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}
