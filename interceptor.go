package sensei

import (
	"context"
)

// Call describes one outgoing request as seen by interceptors.
type Call struct {
	Method  string // HTTP method
	Path    string // endpoint path template, e.g. "/items/{id}"
	Flavor  Flavor
	Options RequestOptions
}

// Invoker sends a call. It is passed to [Interceptor] functions to invoke the
// next interceptor or the transport.
type Invoker func(ctx context.Context, call *Call) (*Response, error)

// Interceptor is a hook that wraps the transport call of a Requester. It runs
// after the rate-limit slot has been taken.
//
//	func timing(ctx context.Context, call *sensei.Call, next sensei.Invoker) (*sensei.Response, error) {
//	    start := time.Now()
//	    resp, err := next(ctx, call)
//	    log.Printf("%s %s took %v", call.Method, call.Path, time.Since(start))
//	    return resp, err
//	}
//
// Interceptors can:
//   - Inspect/modify call.Options before calling next
//   - Inspect the response after calling next
//   - Short-circuit by returning an error without calling next
//   - Add values to context using context.WithValue
type Interceptor func(ctx context.Context, call *Call, next Invoker) (*Response, error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []Interceptor) Interceptor {
	if len(interceptors) == 0 {
		return nil
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx context.Context, call *Call, invoker Invoker) (*Response, error) {
		// Chain: i[0] -> i[1] -> ... -> invoker
		chain := invoker
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chain
			chain = func(ctx context.Context, call *Call) (*Response, error) {
				return current(ctx, call, next)
			}
		}
		return chain(ctx, call)
	}
}
