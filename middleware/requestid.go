package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/blnkoff/sensei"
	"github.com/google/uuid"
)

// DefaultRequestIDHeader is the header set by RequestID when none is given.
const DefaultRequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID returns a context carrying id. RequestID sends it instead of
// generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// RequestID stamps every call with a request id header, taken from the
// context or generated as a random UUID. Calls that already carry the
// header are left alone.
func RequestID(header string) sensei.Interceptor {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return func(ctx context.Context, call *sensei.Call, next sensei.Invoker) (*sensei.Response, error) {
		if hasHeader(call.Options.Headers, header) {
			return next(ctx, call)
		}
		id, ok := RequestIDFromContext(ctx)
		if !ok {
			id = uuid.NewString()
		}
		headers := call.Options.Headers.Clone()
		if headers == nil {
			headers = make(http.Header)
		}
		headers.Set(header, id)
		call.Options.Headers = headers
		return next(WithRequestID(ctx, id), call)
	}
}

// hasHeader matches names case-insensitively: endpoint header converters
// may produce keys that are not in canonical form.
func hasHeader(h http.Header, name string) bool {
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 && vs[0] != "" {
			return true
		}
	}
	return false
}
