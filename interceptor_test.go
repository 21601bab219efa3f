package sensei

import (
	"context"
	"errors"
	"testing"
)

func okInvoker(ctx context.Context, call *Call) (*Response, error) {
	return &Response{statusCode: 200}, nil
}

func TestChainInterceptors_Empty(t *testing.T) {
	chain := chainInterceptors([]Interceptor{})
	if chain != nil {
		t.Error("expected nil chain for empty interceptors")
	}
}

func TestChainInterceptors_Single(t *testing.T) {
	called := false
	interceptor := func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
		called = true
		return next(ctx, call)
	}

	chain := chainInterceptors([]Interceptor{interceptor})
	if chain == nil {
		t.Fatal("expected non-nil chain")
	}

	resp, err := chain(context.Background(), &Call{Method: "GET"}, okInvoker)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.StatusCode() != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode())
	}
	if !called {
		t.Error("expected interceptor to be called")
	}
}

func TestChainInterceptors_Multiple(t *testing.T) {
	var order []string

	interceptor1 := func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
		order = append(order, "before-1")
		resp, err := next(ctx, call)
		order = append(order, "after-1")
		return resp, err
	}

	interceptor2 := func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
		order = append(order, "before-2")
		resp, err := next(ctx, call)
		order = append(order, "after-2")
		return resp, err
	}

	invoker := func(ctx context.Context, call *Call) (*Response, error) {
		order = append(order, "invoker")
		return okInvoker(ctx, call)
	}

	chain := chainInterceptors([]Interceptor{interceptor1, interceptor2})
	if _, err := chain(context.Background(), &Call{}, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"before-1", "before-2", "invoker", "after-2", "after-1"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("at position %d: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestChainInterceptors_ShortCircuit(t *testing.T) {
	denied := errors.New("denied")
	interceptor := func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
		return nil, denied
	}
	invoked := false
	invoker := func(ctx context.Context, call *Call) (*Response, error) {
		invoked = true
		return okInvoker(ctx, call)
	}

	chain := chainInterceptors([]Interceptor{interceptor, interceptor})
	_, err := chain(context.Background(), &Call{}, invoker)
	if !errors.Is(err, denied) {
		t.Errorf("expected denied, got %v", err)
	}
	if invoked {
		t.Error("expected invoker not to be called")
	}
}

func TestChainInterceptors_ModifiesCall(t *testing.T) {
	addHeader := func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
		if call.Options.Headers == nil {
			call.Options.Headers = make(map[string][]string)
		}
		call.Options.Headers.Set("X-Trace", "abc")
		return next(ctx, call)
	}
	var seen string
	invoker := func(ctx context.Context, call *Call) (*Response, error) {
		seen = call.Options.Headers.Get("X-Trace")
		return okInvoker(ctx, call)
	}

	chain := chainInterceptors([]Interceptor{addHeader})
	if _, err := chain(context.Background(), &Call{}, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "abc" {
		t.Errorf("expected X-Trace=abc, got %q", seen)
	}
}
