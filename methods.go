package sensei

import (
	"net/http"
	"slices"
)

// standardMethods is the closed set of HTTP methods an Endpoint may declare.
var standardMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodConnect,
	http.MethodOptions,
	http.MethodTrace,
	http.MethodPatch,
}

// StandardMethods returns the methods accepted by ValidateMethod.
func StandardMethods() []string {
	return slices.Clone(standardMethods)
}

// ValidateMethod returns an *InvalidMethodError unless method is one of the
// standard HTTP methods. The comparison is case-sensitive.
func ValidateMethod(method string) error {
	if slices.Contains(standardMethods, method) {
		return nil
	}
	return &InvalidMethodError{Method: method, Allowed: StandardMethods()}
}

// IsSafeMethod reports whether method carries its parameters in the query
// string by default. Safe methods have no request body.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
