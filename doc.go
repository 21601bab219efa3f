// Package sensei builds HTTP requests from typed endpoint declarations and
// sends them through a rate-limited client.
//
// An [Endpoint] describes one operation: a path template, a method, a
// parameter type and a result type. Parameters are routed by their struct
// tags, falling back to the query string for safe methods and the JSON body
// otherwise:
//
//	type GetItem struct {
//	    ID      int    `param:"id" validate:"required"`
//	    Expand  string `param:"expand,omitempty"`
//	    TraceID string `param:"trace_id,header"`
//	}
//
//	var getItem = sensei.MustEndpoint[GetItem, Item]("/items/{id}", http.MethodGet)
//
// A [ClientType] carries the defaults and the rate limiter shared by every
// client built from it. Blocking and cooperative clients of one type draw
// from the same budget:
//
//	api, _ := sensei.DefineClient("items", sensei.ClientDefaults{
//	    RateLimit: &sensei.RateLimitPolicy{Calls: 10, Period: time.Second},
//	})
//	client, _ := api.NewClient(sensei.ClientOptions{Host: "https://api.example.com"})
//
//	items, _ := sensei.NewRequester(client, getItem)
//	item, err := items.Request(ctx, GetItem{ID: 5})
//
// A [Requester] bound to an [AsyncHTTPClient] honours context cancellation
// while waiting for a slot and runs [Requester.Go] on its own goroutine.
package sensei
