package sensei

import (
	"encoding"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"time"
)

// Args is the request assembled from an endpoint and call-time parameters.
// Buckets with no entries are nil.
type Args struct {
	URL     string
	Query   map[string]any
	Body    map[string]any
	Headers map[string]any
	Cookies map[string]any
}

func (a *Args) put(b Bucket, key string, v any) {
	var m *map[string]any
	switch b {
	case BucketQuery:
		m = &a.Query
	case BucketBody:
		m = &a.Body
	case BucketHeaders:
		m = &a.Headers
	case BucketCookies:
		m = &a.Cookies
	default:
		return
	}
	if *m == nil {
		*m = make(map[string]any)
	}
	(*m)[key] = v
}

// Options flattens a into transport options. Empty buckets produce nil
// fields so they are omitted from the request entirely.
func (a *Args) Options() RequestOptions {
	opts := RequestOptions{URL: a.URL}
	if len(a.Query) > 0 {
		opts.Query = make(url.Values, len(a.Query))
		for k, v := range a.Query {
			opts.Query[k] = formatMulti(v)
		}
	}
	if len(a.Body) > 0 {
		opts.JSON = a.Body
	}
	if len(a.Headers) > 0 {
		opts.Headers = make(http.Header, len(a.Headers))
		for k, v := range a.Headers {
			// assigned directly so the converter's casing reaches the wire
			opts.Headers[k] = formatMulti(v)
		}
	}
	if len(a.Cookies) > 0 {
		names := make([]string, 0, len(a.Cookies))
		for k := range a.Cookies {
			names = append(names, k)
		}
		sort.Strings(names)
		opts.Cookies = make([]*http.Cookie, len(names))
		for i, name := range names {
			opts.Cookies[i] = &http.Cookie{Name: name, Value: formatValue(a.Cookies[name])}
		}
	}
	return opts
}

// RequestOptions are the transport-level pieces of one HTTP call. URL is
// relative to the client's base URL unless it is absolute.
type RequestOptions struct {
	URL     string
	Query   url.Values
	JSON    any
	Headers http.Header
	Cookies []*http.Cookie
}

// formatValue renders a parameter value for the path, and for single query,
// header and cookie values.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case encoding.TextMarshaler:
		if b, err := x.MarshalText(); err == nil {
			return string(b)
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return formatValue(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// formatMulti expands slices into repeated query values.
func formatMulti(v any) []string {
	if _, ok := v.([]byte); ok {
		return []string{formatValue(v)}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{formatValue(v)}
	}
	out := make([]string, rv.Len())
	for i := range out {
		out[i] = formatValue(rv.Index(i).Interface())
	}
	return out
}
