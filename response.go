package sensei

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Empty is the parameter or result type of operations that take or return
// nothing meaningful.
//
// Example:
//
//	var ping = sensei.MustEndpoint[sensei.Empty, *sensei.Response]("/ping", http.MethodGet)
type Empty struct{}

// Response is a fully read HTTP response.
type Response struct {
	statusCode int
	header     http.Header
	body       []byte
	request    *http.Request
}

// readResponse drains and closes resp.Body.
func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       body,
		request:    resp.Request,
	}, nil
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Header returns the response headers.
func (r *Response) Header() http.Header { return r.header }

// Bytes returns the response body.
func (r *Response) Bytes() []byte { return r.body }

// Text returns the response body as a string.
func (r *Response) Text() string { return string(r.body) }

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// Decode unmarshals the body into v with the codec matching the
// Content-Type header. JSON is assumed when the header is missing.
func (r *Response) Decode(v any) error {
	return codecFor(r.header.Get("Content-Type")).Unmarshal(r.body, v)
}

// Request returns the request that produced this response. Its method,
// headers and URL are as sent.
func (r *Response) Request() *http.Request { return r.request }

// RaiseForStatus returns a *StatusError for 4xx and 5xx responses.
func (r *Response) RaiseForStatus() error {
	if r.statusCode < 400 {
		return nil
	}
	se := &StatusError{
		StatusCode: r.statusCode,
		Body:       string(r.body),
	}
	if r.request != nil {
		se.Method = r.request.Method
		if r.request.URL != nil {
			se.URL = r.request.URL.String()
		}
	}
	return se
}
