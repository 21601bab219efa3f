package sensei

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/blnkoff/sensei/ratelimit"
)

// Flavor is the execution mode of a client.
type Flavor int

const (
	// Blocking clients wait for rate-limit slots on the calling goroutine
	// and cannot be interrupted while waiting.
	Blocking Flavor = iota
	// Cooperative clients honour context cancellation while waiting and run
	// futures on their own goroutines.
	Cooperative
)

func (f Flavor) String() string {
	switch f {
	case Blocking:
		return "blocking"
	case Cooperative:
		return "cooperative"
	}
	return fmt.Sprintf("Flavor(%d)", int(f))
}

// Client is the transport used by a Requester.
type Client interface {
	// Flavor selects the Requester's executor.
	Flavor() Flavor
	Config() ClientConfig
	// Interceptors returns the client-wide interceptors, outer-most first.
	Interceptors() []Interceptor
	// WaitForSlot takes one token from the client's limiter, if any.
	WaitForSlot(ctx context.Context) error
	// Send performs one HTTP call without consulting the limiter.
	Send(ctx context.Context, method string, opts RequestOptions) (*Response, error)
}

// BaseClient holds the state shared by the blocking and cooperative clients
// of one configuration, the limiter included.
type BaseClient struct {
	config       ClientConfig
	http         *http.Client
	logger       *slog.Logger
	interceptors []Interceptor
}

func newBaseClient(ct *ClientType, opts ClientOptions) (*BaseClient, error) {
	cfg, err := ct.Config(opts)
	if err != nil {
		return nil, err
	}
	b := &BaseClient{
		config:       cfg,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
		interceptors: slices.Clone(opts.Interceptors),
	}
	if b.http == nil {
		b.http = http.DefaultClient
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slog.String("client", ct.name))
	return b, nil
}

// Config returns a copy of the client configuration.
func (b *BaseClient) Config() ClientConfig {
	cfg := b.config
	cfg.Headers = b.config.Headers.Clone()
	return cfg
}

// Interceptors returns the interceptors set in ClientOptions.
func (b *BaseClient) Interceptors() []Interceptor { return b.interceptors }

// Logger returns the client logger.
func (b *BaseClient) Logger() *slog.Logger { return b.logger }

// Send builds the request from opts and performs it. Client headers are sent
// unless opts overrides them. Transport errors are returned as is.
func (b *BaseClient) Send(ctx context.Context, method string, opts RequestOptions) (*Response, error) {
	req, err := b.newRequest(ctx, method, opts)
	if err != nil {
		return nil, err
	}
	b.logger.DebugContext(ctx, "sending request",
		slog.String("method", method),
		slog.String("url", req.URL.Redacted()))

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

func (b *BaseClient) newRequest(ctx context.Context, method string, opts RequestOptions) (*http.Request, error) {
	u, err := url.Parse(b.resolveURL(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if len(opts.Query) > 0 {
		q := u.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	header := b.config.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for k, vs := range opts.Headers {
		setHeader(header, k, slices.Clone(vs))
	}

	var body io.Reader
	if opts.JSON != nil {
		contentType := lookupHeader(header, "Content-Type")
		c := codecFor(contentType)
		data, err := c.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		if contentType == "" {
			header.Set("Content-Type", c.ContentType())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = header
	for _, c := range opts.Cookies {
		req.AddCookie(c)
	}
	return req, nil
}

func (b *BaseClient) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return b.config.BaseURL
	}
	return b.config.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// waitBlocking never fails; ctx only scopes the log records.
func (b *BaseClient) waitBlocking(ctx context.Context) {
	if b.config.Limiter == nil {
		return
	}
	lim := ratelimit.NewRateLimiter(b.config.Limiter)
	if lim.Acquire() {
		return
	}
	start := time.Now()
	b.logger.DebugContext(ctx, "rate limit reached, waiting for slot")
	lim.WaitForSlot()
	b.logger.DebugContext(ctx, "rate limit slot acquired", slog.Duration("waited", time.Since(start)))
}

func (b *BaseClient) waitCooperative(ctx context.Context) error {
	if b.config.Limiter == nil {
		return nil
	}
	lim := ratelimit.NewAsyncRateLimiter(b.config.Limiter)
	ok, err := lim.Acquire(ctx)
	if err != nil || ok {
		return err
	}
	start := time.Now()
	b.logger.DebugContext(ctx, "rate limit reached, waiting for slot")
	if err := lim.WaitForSlot(ctx); err != nil {
		return err
	}
	b.logger.DebugContext(ctx, "rate limit slot acquired", slog.Duration("waited", time.Since(start)))
	return nil
}

// HTTPClient is the blocking client.
type HTTPClient struct {
	*BaseClient
}

// NewClient returns a blocking client without type-level defaults.
func NewClient(opts ClientOptions) (*HTTPClient, error) {
	return untyped.NewClient(opts)
}

// NewClient returns a blocking client of type ct.
func (ct *ClientType) NewClient(opts ClientOptions) (*HTTPClient, error) {
	base, err := newBaseClient(ct, opts)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{BaseClient: base}, nil
}

func (c *HTTPClient) Flavor() Flavor { return Blocking }

// WaitForSlot blocks until the limiter grants a token. It always returns nil.
func (c *HTTPClient) WaitForSlot(ctx context.Context) error {
	c.waitBlocking(ctx)
	return nil
}

// Do waits for a slot and sends the request through the client interceptors.
func (c *HTTPClient) Do(ctx context.Context, method string, opts RequestOptions) (*Response, error) {
	return do(ctx, c, method, opts)
}

// Async returns the cooperative twin of c. Both share the configuration and
// the limiter.
func (c *HTTPClient) Async() *AsyncHTTPClient {
	return &AsyncHTTPClient{BaseClient: c.BaseClient}
}

// AsyncHTTPClient is the cooperative client.
type AsyncHTTPClient struct {
	*BaseClient
}

// NewAsyncClient returns a cooperative client without type-level defaults.
func NewAsyncClient(opts ClientOptions) (*AsyncHTTPClient, error) {
	return untyped.NewAsyncClient(opts)
}

// NewAsyncClient returns a cooperative client of type ct.
func (ct *ClientType) NewAsyncClient(opts ClientOptions) (*AsyncHTTPClient, error) {
	base, err := newBaseClient(ct, opts)
	if err != nil {
		return nil, err
	}
	return &AsyncHTTPClient{BaseClient: base}, nil
}

func (c *AsyncHTTPClient) Flavor() Flavor { return Cooperative }

// WaitForSlot waits for a token until ctx is done.
func (c *AsyncHTTPClient) WaitForSlot(ctx context.Context) error {
	return c.waitCooperative(ctx)
}

// Do waits for a slot and sends the request through the client interceptors.
func (c *AsyncHTTPClient) Do(ctx context.Context, method string, opts RequestOptions) (*Response, error) {
	return do(ctx, c, method, opts)
}

// Go runs Do on a new goroutine.
func (c *AsyncHTTPClient) Go(ctx context.Context, method string, opts RequestOptions) *Future[*Response] {
	f := newFuture[*Response]()
	go func() { f.resolve(c.Do(ctx, method, opts)) }()
	return f
}

// Blocking returns the blocking twin of c.
func (c *AsyncHTTPClient) Blocking() *HTTPClient {
	return &HTTPClient{BaseClient: c.BaseClient}
}

func do(ctx context.Context, c Client, method string, opts RequestOptions) (*Response, error) {
	if err := c.WaitForSlot(ctx); err != nil {
		return nil, err
	}
	call := &Call{Method: method, Path: opts.URL, Flavor: c.Flavor(), Options: opts}
	return invoke(ctx, c, call, nil)
}

// invoke sends call through the client interceptors followed by extra.
func invoke(ctx context.Context, c Client, call *Call, extra []Interceptor) (*Response, error) {
	send := func(ctx context.Context, call *Call) (*Response, error) {
		return c.Send(ctx, call.Method, call.Options)
	}
	all := append(slices.Clone(c.Interceptors()), extra...)
	if chain := chainInterceptors(all); chain != nil {
		return chain(ctx, call, send)
	}
	return send(ctx, call)
}

// setHeader replaces any value of k, matched case-insensitively.
func setHeader(h http.Header, k string, vs []string) {
	for existing := range h {
		if strings.EqualFold(existing, k) {
			delete(h, existing)
		}
	}
	h[k] = vs
}

func lookupHeader(h http.Header, k string) string {
	for existing, vs := range h {
		if strings.EqualFold(existing, k) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*AsyncHTTPClient)(nil)
)
