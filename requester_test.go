package sensei

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blnkoff/sensei/ratelimit"
	"github.com/blnkoff/sensei/testutil"
	"github.com/vmihailenco/msgpack/v5"
)

func newItemServer(t *testing.T) *testutil.Server {
	t.Helper()
	srv := testutil.NewServer(t)
	srv.Handle(http.MethodGet, "/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(testutil.URLParam(r, "id"))
		if id == 0 {
			testutil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no such item"})
			return
		}
		testutil.WriteJSON(w, http.StatusOK, item{ID: id, Name: "item " + strconv.Itoa(id)})
	})
	return srv
}

func TestRequester_TypedResult(t *testing.T) {
	srv := newItemServer(t)
	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Request(context.Background(), getItemParams{ID: 5, Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 5 || got.Name != "item 5" {
		t.Errorf("unexpected item %+v", got)
	}
	testutil.AssertQuery(t, srv.Last(t), "q", "x")
}

func TestRequester_PointerResult(t *testing.T) {
	srv := newItemServer(t)
	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, *item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Request(context.Background(), getItemParams{ID: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != 2 {
		t.Errorf("unexpected item %+v", got)
	}
}

func TestRequester_RawResponse(t *testing.T) {
	srv := newItemServer(t)
	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, *Response]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := r.Request(context.Background(), getItemParams{ID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode())
	}
	var it item
	if err := resp.JSON(&it); err != nil || it.ID != 7 {
		t.Errorf("unexpected body %s (%v)", resp.Text(), err)
	}
	if resp.Request().URL.Path != "/items/7" {
		t.Errorf("unexpected request path %s", resp.Request().URL.Path)
	}
}

func TestRequester_ResponseValidation(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.JSON(http.MethodGet, "/items/{id}", http.StatusOK, map[string]any{"name": "no id"})

	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Request(context.Background(), getItemParams{ID: 1})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Target != TargetResponse || ve.Fields["id"] != "required" {
		t.Errorf("unexpected validation error %+v", ve)
	}
}

func TestRequester_Msgpack(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.Handle(http.MethodGet, "/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		data, err := msgpack.Marshal(map[string]any{"id": 3, "name": "packed"})
		if err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.Write(data)
	})

	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Request(context.Background(), getItemParams{ID: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 3 || got.Name != "packed" {
		t.Errorf("unexpected item %+v", got)
	}
}

func TestRequester_PreFailureConsumesNoToken(t *testing.T) {
	srv := newItemServer(t)
	rl := ratelimit.New(1, time.Hour)
	client, err := NewClient(ClientOptions{Host: srv.URL, Limiter: rl})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Request(context.Background(), getItemParams{}); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rl.Tokens() != 1 {
		t.Errorf("expected the token to be kept, got %d", rl.Tokens())
	}
	if srv.Count() != 0 {
		t.Errorf("expected no request to be sent, got %d", srv.Count())
	}

	if _, err := r.Request(context.Background(), getItemParams{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rl.Tokens() != 0 {
		t.Errorf("expected the token to be spent, got %d", rl.Tokens())
	}
}

func TestWithErrorMessage_Wrapped(t *testing.T) {
	se := &StatusError{Method: http.MethodGet, URL: "/items/0", StatusCode: http.StatusNotFound}
	err := withErrorMessage(fmt.Errorf("fetch: %w", se), "get item failed")

	var got *StatusError
	if !errors.As(err, &got) {
		t.Fatalf("expected the wrapped *StatusError to survive, got %v", err)
	}
	if got.Message != "get item failed" {
		t.Errorf("Message = %q, want %q", got.Message, "get item failed")
	}

	plain := errors.New("boom")
	if err := withErrorMessage(plain, "ignored"); err != plain {
		t.Errorf("expected other errors unchanged, got %v", err)
	}
}

func TestRequester_RaiseForStatus(t *testing.T) {
	srv := newItemServer(t)
	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	e := MustEndpoint[Values, *Response]("/items/{id}", http.MethodGet, WithErrorMessage("get item failed"))
	r, err := NewRequester(client, e, WithRaiseForStatus[Values, *Response]())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Request(context.Background(), Values{"id": 0})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Message != "get item failed" {
		t.Errorf("unexpected status error %+v", se)
	}

	plain, err := NewRequester(client, e)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := plain.Request(context.Background(), Values{"id": 0})
	if err != nil {
		t.Fatalf("expected the raw 404 without WithRaiseForStatus, got %v", err)
	}
	if resp.StatusCode() != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode())
	}
}

func TestRequester_PreAndPost(t *testing.T) {
	srv := newItemServer(t)
	client, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	e := MustEndpoint[getItemParams, string]("/items/{id}", http.MethodGet)

	pre := func(ctx context.Context, p getItemParams) (RequestOptions, error) {
		return RequestOptions{URL: "/items/" + strconv.Itoa(p.ID*10)}, nil
	}
	post := func(resp *Response) (string, error) {
		return resp.Header().Get("Content-Type"), nil
	}
	r, err := NewRequester(client, e,
		WithPre[getItemParams, string](pre),
		WithPost[getItemParams, string](post),
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Request(context.Background(), getItemParams{ID: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "application/json" {
		t.Errorf("expected content type from post, got %q", got)
	}
	if srv.Last(t).Path != "/items/40" {
		t.Errorf("expected pre to build the URL, got %s", srv.Last(t).Path)
	}
}

func TestRequester_Interceptors(t *testing.T) {
	srv := newItemServer(t)
	var order []string
	tag := func(name string) Interceptor {
		return func(ctx context.Context, call *Call, next Invoker) (*Response, error) {
			order = append(order, name+":"+call.Path)
			return next(ctx, call)
		}
	}

	client, err := NewClient(ClientOptions{Host: srv.URL, Interceptors: []Interceptor{tag("client")}})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet),
		WithInterceptors[getItemParams, item](tag("requester")))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Request(context.Background(), getItemParams{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"client:/items/{id}", "requester:/items/{id}"}
	if len(order) != 2 || order[0] != expected[0] || order[1] != expected[1] {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestRequester_Go(t *testing.T) {
	srv := newItemServer(t)
	blocking, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	e := MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet)

	tests := []struct {
		name   string
		client Client
	}{
		{"blocking", blocking},
		{"cooperative", blocking.Async()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRequester(tt.client, e)
			if err != nil {
				t.Fatal(err)
			}
			f := r.Go(context.Background(), getItemParams{ID: 8})
			if tt.client.Flavor() == Blocking && !f.Ready() {
				t.Error("expected a resolved future from the blocking flavor")
			}
			got, err := f.Wait(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != 8 {
				t.Errorf("unexpected item %+v", got)
			}
		})
	}
}

func TestRequester_RequestMany(t *testing.T) {
	srv := newItemServer(t)
	blocking, err := NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	e := MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet)

	for _, client := range []Client{blocking, blocking.Async()} {
		t.Run(client.Flavor().String(), func(t *testing.T) {
			r, err := NewRequester(client, e)
			if err != nil {
				t.Fatal(err)
			}
			ps := make([]getItemParams, 10)
			for i := range ps {
				ps[i] = getItemParams{ID: i + 1}
			}

			got, err := r.RequestMany(context.Background(), ps)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, it := range got {
				if it.ID != i+1 {
					t.Errorf("result %d: expected id %d, got %d", i, i+1, it.ID)
				}
			}

			_, err = r.RequestMany(context.Background(), []getItemParams{{ID: 1}, {}})
			if !IsValidationError(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRequester_CooperativeWaitCancelled(t *testing.T) {
	srv := newItemServer(t)
	rl := ratelimit.New(1, time.Hour)
	client, err := NewAsyncClient(ClientOptions{Host: srv.URL, Limiter: rl})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Request(context.Background(), getItemParams{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Request(ctx, getItemParams{ID: 2})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if srv.Count() != 1 {
		t.Errorf("expected only the first request to be sent, got %d", srv.Count())
	}
}

func TestRequester_SharedBudgetAcrossFlavors(t *testing.T) {
	srv := newItemServer(t)
	ct, err := DefineClient("items", ClientDefaults{RateLimit: &RateLimitPolicy{Calls: 3, Period: time.Hour}})
	if err != nil {
		t.Fatal(err)
	}
	blocking, err := ct.NewClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	async, err := ct.NewAsyncClient(ClientOptions{Host: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	e := MustEndpoint[getItemParams, item]("/items/{id}", http.MethodGet)
	rb, _ := NewRequester(blocking, e)
	ra, _ := NewRequester(async, e)

	ctx := context.Background()
	var sent atomic.Int32
	for i, r := range []*Requester[getItemParams, item]{rb, ra, rb} {
		if _, err := r.Request(ctx, getItemParams{ID: i + 1}); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		sent.Add(1)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := ra.Request(ctx, getItemParams{ID: 4}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the fourth call to wait, got %v", err)
	}
	if int(sent.Load()) != srv.Count() {
		t.Errorf("expected %d requests, got %d", sent.Load(), srv.Count())
	}
}

func TestRequester_TransportErrorUnchanged(t *testing.T) {
	srv := testutil.NewServer(t)
	host := srv.URL
	srv.Close()

	client, err := NewClient(ClientOptions{Host: host})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRequester(client, MustEndpoint[Empty, *Response]("/ping", http.MethodGet))
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Request(context.Background(), Empty{})
	var ue *url.Error
	if !errors.As(err, &ue) {
		t.Errorf("expected *url.Error from the transport, got %T: %v", err, err)
	}
}

type fakeClient struct {
	BaseClient
	flavor Flavor
}

func (c *fakeClient) Flavor() Flavor                    { return c.flavor }
func (c *fakeClient) WaitForSlot(context.Context) error { return nil }

func TestNewRequester_UnknownFlavor(t *testing.T) {
	_, err := NewRequester(&fakeClient{flavor: Flavor(7)}, MustEndpoint[Empty, *Response]("/", http.MethodGet))
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConfigurationError, got %v", err)
	}
}
