package sensei

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// PreFunc turns call-time parameters into transport options.
type PreFunc[P any] func(ctx context.Context, p P) (RequestOptions, error)

// PostFunc turns a response into the call result.
type PostFunc[R any] func(resp *Response) (R, error)

// RequesterOption configures a Requester.
type RequesterOption[P, R any] func(*Requester[P, R])

// WithPre replaces the default pre-processing step, which assembles the
// endpoint's Args.
func WithPre[P, R any](fn PreFunc[P]) RequesterOption[P, R] {
	return func(r *Requester[P, R]) { r.pre = fn }
}

// WithPost replaces the default post-processing step.
func WithPost[P, R any](fn PostFunc[R]) RequesterOption[P, R] {
	return func(r *Requester[P, R]) { r.post = fn }
}

// WithInterceptors adds interceptors that run inside the client's own.
func WithInterceptors[P, R any](interceptors ...Interceptor) RequesterOption[P, R] {
	return func(r *Requester[P, R]) { r.interceptors = append(r.interceptors, interceptors...) }
}

// WithRaiseForStatus makes 4xx and 5xx responses fail with a *StatusError
// carrying the endpoint's error message, before post-processing runs.
func WithRaiseForStatus[P, R any]() RequesterOption[P, R] {
	return func(r *Requester[P, R]) { r.raise = true }
}

// executor runs the calls of a Requester in the client's flavor.
type executor interface {
	// spawn runs task; the blocking executor runs it before returning.
	spawn(task func())
	// each runs fn for every index and returns the first error.
	each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

type blockingExecutor struct{}

func (blockingExecutor) spawn(task func()) { task() }

func (blockingExecutor) each(ctx context.Context, n int, fn func(context.Context, int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

type cooperativeExecutor struct{}

func (cooperativeExecutor) spawn(task func()) { go task() }

func (cooperativeExecutor) each(ctx context.Context, n int, fn func(context.Context, int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}

func newExecutor(f Flavor) (executor, error) {
	switch f {
	case Blocking:
		return blockingExecutor{}, nil
	case Cooperative:
		return cooperativeExecutor{}, nil
	}
	return nil, &ConfigurationError{Field: "client flavor", Value: f, Reason: "unsupported"}
}

// Requester binds an Endpoint to a Client. Every call takes one rate-limit
// slot from the client before it is sent.
type Requester[P, R any] struct {
	client       Client
	endpoint     *Endpoint[P, R]
	exec         executor
	pre          PreFunc[P]
	post         PostFunc[R]
	interceptors []Interceptor
	raise        bool
}

// NewRequester returns a Requester running in the flavor of client.
func NewRequester[P, R any](client Client, endpoint *Endpoint[P, R], opts ...RequesterOption[P, R]) (*Requester[P, R], error) {
	exec, err := newExecutor(client.Flavor())
	if err != nil {
		return nil, err
	}
	r := &Requester[P, R]{
		client:   client,
		endpoint: endpoint,
		exec:     exec,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pre == nil {
		r.pre = r.defaultPre
	}
	if r.post == nil {
		r.post = r.defaultPost
	}
	return r, nil
}

// Endpoint returns the bound endpoint.
func (r *Requester[P, R]) Endpoint() *Endpoint[P, R] { return r.endpoint }

// Client returns the bound client.
func (r *Requester[P, R]) Client() Client { return r.client }

// Request performs one call. Pre-processing failures return before a
// rate-limit slot is taken.
func (r *Requester[P, R]) Request(ctx context.Context, p P) (R, error) {
	var zero R
	opts, err := r.pre(ctx, p)
	if err != nil {
		return zero, err
	}
	if err := r.client.WaitForSlot(ctx); err != nil {
		return zero, err
	}

	call := &Call{
		Method:  r.endpoint.method,
		Path:    r.endpoint.path,
		Flavor:  r.client.Flavor(),
		Options: opts,
	}
	resp, err := invoke(ctx, r.client, call, r.interceptors)
	if err != nil {
		return zero, err
	}
	if r.raise {
		if err := resp.RaiseForStatus(); err != nil {
			return zero, withErrorMessage(err, r.endpoint.errorMessage)
		}
	}
	return r.post(resp)
}

// withErrorMessage stamps msg on the status error inside err.
func withErrorMessage(err error, msg string) error {
	var se *StatusError
	if errors.As(err, &se) {
		se.Message = msg
	}
	return err
}

// Go starts a call and returns its future. Cooperative requesters run the
// call on a new goroutine; blocking requesters complete it first and return
// a resolved future.
func (r *Requester[P, R]) Go(ctx context.Context, p P) *Future[R] {
	f := newFuture[R]()
	r.exec.spawn(func() { f.resolve(r.Request(ctx, p)) })
	return f
}

// RequestMany performs one call per element of ps and returns the results in
// input order. Blocking requesters call sequentially; cooperative ones call
// concurrently, cancelling the rest on the first error.
func (r *Requester[P, R]) RequestMany(ctx context.Context, ps []P) ([]R, error) {
	results := make([]R, len(ps))
	err := r.exec.each(ctx, len(ps), func(ctx context.Context, i int) error {
		res, err := r.Request(ctx, ps[i])
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Requester[P, R]) defaultPre(_ context.Context, p P) (RequestOptions, error) {
	args, err := r.endpoint.Args(p)
	if err != nil {
		return RequestOptions{}, err
	}
	return args.Options(), nil
}

// defaultPost returns the raw response when R is *Response and otherwise
// decodes and validates the body.
func (r *Requester[P, R]) defaultPost(resp *Response) (R, error) {
	if raw, ok := any(resp).(R); ok {
		return raw, nil
	}

	var out R
	if err := resp.Decode(decodeTarget(&out)); err != nil {
		return out, err
	}
	if err := validateResult(out); err != nil {
		return out, newValidationError(TargetResponse, err)
	}
	return out, nil
}

// validateResult validates structs, pointers to structs and slices of them.
func validateResult(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return validate.Struct(rv.Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := validateResult(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}
