package sensei

import (
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/blnkoff/sensei/cases"
	"github.com/blnkoff/sensei/internal/pathtmpl"
	"github.com/blnkoff/sensei/internal/resolve"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorilla/schema"
)

var (
	validate    = newValidator()
	formDecoder = newFormDecoder()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return v
}

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("param")
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Time{}, func(s string) reflect.Value {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(t)
	})
	return d
}

// fieldName reports validation errors under the wire-facing field name.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"param", "json", "msgpack", "mapstructure"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// Bucket is a destination of an assembled request.
type Bucket int

const (
	BucketQuery Bucket = iota
	BucketBody
	BucketHeaders
	BucketCookies
)

func (b Bucket) String() string {
	switch b {
	case BucketQuery:
		return "query"
	case BucketBody:
		return "body"
	case BucketHeaders:
		return "headers"
	case BucketCookies:
		return "cookies"
	}
	return "unknown"
}

var kindResolver = resolve.New(
	map[ParamKind]Bucket{
		KindQuery:  BucketQuery,
		KindBody:   BucketBody,
		KindHeader: BucketHeaders,
		KindCookie: BucketCookies,
	},
	defaultConverters(),
)

func defaultConverters() map[Bucket]cases.Converter {
	return map[Bucket]cases.Converter{
		BucketQuery:   cases.Identity,
		BucketBody:    cases.Identity,
		BucketHeaders: cases.Header,
		BucketCookies: cases.Identity,
	}
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*endpointConfig)

type endpointConfig struct {
	errorMessage string
	converters   map[Bucket]cases.Converter
	params       []ParamDescriptor
}

// WithErrorMessage sets the message prefixed to status errors raised for
// this endpoint.
func WithErrorMessage(msg string) EndpointOption {
	return func(c *endpointConfig) { c.errorMessage = msg }
}

// WithQueryCase sets the converter applied to query keys. Nil means identity.
func WithQueryCase(conv cases.Converter) EndpointOption {
	return withCase(BucketQuery, conv)
}

// WithBodyCase sets the converter applied to body keys. Nil means identity.
func WithBodyCase(conv cases.Converter) EndpointOption {
	return withCase(BucketBody, conv)
}

// WithHeaderCase sets the converter applied to header names. The default is
// cases.Header; nil means identity.
func WithHeaderCase(conv cases.Converter) EndpointOption {
	return withCase(BucketHeaders, conv)
}

// WithCookieCase sets the converter applied to cookie names. Nil means identity.
func WithCookieCase(conv cases.Converter) EndpointOption {
	return withCase(BucketCookies, conv)
}

func withCase(b Bucket, conv cases.Converter) EndpointOption {
	return func(c *endpointConfig) {
		if conv == nil {
			conv = cases.Identity
		}
		c.converters[b] = conv
	}
}

// WithParams declares the known parameters of an endpoint whose parameter
// type is Values.
func WithParams(params ...ParamDescriptor) EndpointOption {
	return func(c *endpointConfig) { c.params = append(c.params, params...) }
}

// Endpoint is the immutable description of one API operation: P is the
// parameter type and R the result type. Use *Response as R to receive the
// raw response.
type Endpoint[P, R any] struct {
	path         string
	method       string
	errorMessage string
	placeholders map[string]struct{}
	defaultKind  ParamKind
	params       *paramSchema
	resolver     *resolve.Resolver[ParamKind, Bucket, cases.Converter]
}

// NewEndpoint validates method and compiles the parameter layout of P.
func NewEndpoint[P, R any](path, method string, opts ...EndpointOption) (*Endpoint[P, R], error) {
	if err := ValidateMethod(method); err != nil {
		return nil, err
	}

	cfg := &endpointConfig{converters: defaultConverters()}
	for _, opt := range opts {
		opt(cfg)
	}

	params, err := compileSchema(reflect.TypeFor[P](), cfg.params)
	if err != nil {
		return nil, err
	}

	e := &Endpoint[P, R]{
		path:         path,
		method:       method,
		errorMessage: cfg.errorMessage,
		placeholders: make(map[string]struct{}),
		defaultKind:  KindBody,
		params:       params,
		resolver:     kindResolver.WithSecond(cfg.converters),
	}
	if IsSafeMethod(method) {
		e.defaultKind = KindQuery
	}
	for _, name := range pathtmpl.Names(path) {
		e.placeholders[name] = struct{}{}
	}
	return e, nil
}

// MustEndpoint is like NewEndpoint but panics on error. It simplifies
// package-level endpoint declarations.
func MustEndpoint[P, R any](path, method string, opts ...EndpointOption) *Endpoint[P, R] {
	e, err := NewEndpoint[P, R](path, method, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Path returns the path template.
func (e *Endpoint[P, R]) Path() string { return e.path }

// Method returns the HTTP method.
func (e *Endpoint[P, R]) Method() string { return e.method }

// ErrorMessage returns the message set with WithErrorMessage.
func (e *Endpoint[P, R]) ErrorMessage() string { return e.errorMessage }

// Params returns the declared parameters.
func (e *Endpoint[P, R]) Params() []ParamDescriptor { return e.params.descriptors() }

// RawResponse reports whether R is *Response, in which case no decoding or
// validation is applied to results.
func (e *Endpoint[P, R]) RawResponse() bool {
	return reflect.TypeFor[R]() == reflect.TypeFor[*Response]()
}

// Args validates p and assembles it into a request.
//
// Parameters whose name matches a path placeholder fill it and go nowhere
// else. The remaining parameters go to their declared destination, or to
// the query string for safe methods and the body otherwise, under their
// alias or the destination's converted name.
func (e *Endpoint[P, R]) Args(p P) (*Args, error) {
	if sv, ok := e.params.structValue(p); ok {
		if err := validate.Struct(sv); err != nil {
			return nil, newValidationError(TargetParams, err)
		}
	}

	values, err := e.params.collect(p)
	if err != nil {
		return nil, err
	}

	args := &Args{}
	var pathValues map[string]any
	for _, pv := range values {
		d := pv.desc
		if _, ok := e.placeholders[d.Name]; ok {
			if pathValues == nil {
				pathValues = make(map[string]any, len(e.placeholders))
			}
			pathValues[d.Name] = formatValue(pv.value)
			continue
		}
		kind := d.Kind
		switch kind {
		case KindPath:
			continue
		case KindAuto:
			kind = e.defaultKind
		}
		bucket, _ := e.resolver.Bucket(kind)
		key := d.Alias
		if key == "" {
			conv, _ := e.resolver.Resolve(kind)
			key = conv(d.Name)
		}
		args.put(bucket, key, pv.value)
	}
	args.URL = pathtmpl.Fill(e.path, pathValues)
	return args, nil
}

// ArgsFromMap coerces kwargs into P and assembles the request. Values are
// weakly typed: "5" fills an int field, "1s" a time.Duration.
func (e *Endpoint[P, R]) ArgsFromMap(kwargs map[string]any) (*Args, error) {
	p, err := e.decodeMap(kwargs)
	if err != nil {
		return nil, err
	}
	return e.Args(p)
}

// ArgsFromValues coerces form values, such as a parsed query string, into
// P and assembles the request.
func (e *Endpoint[P, R]) ArgsFromValues(values url.Values) (*Args, error) {
	p, err := e.decodeValues(values)
	if err != nil {
		return nil, err
	}
	return e.Args(p)
}

func (e *Endpoint[P, R]) decodeMap(kwargs map[string]any) (P, error) {
	var p P
	if e.params.dynamic {
		vals := make(Values, len(kwargs))
		for k, v := range kwargs {
			vals[k] = v
		}
		return any(vals).(P), nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		WeaklyTypedInput: true,
		Result:           decodeTarget(&p),
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(kwargs); err != nil {
		return p, newValidationError(TargetParams, err)
	}
	return p, nil
}

func (e *Endpoint[P, R]) decodeValues(values url.Values) (P, error) {
	var p P
	if e.params.dynamic {
		vals := make(Values, len(values))
		for k, vs := range values {
			switch len(vs) {
			case 0:
			case 1:
				vals[k] = vs[0]
			default:
				vals[k] = append([]string(nil), vs...)
			}
		}
		return any(vals).(P), nil
	}

	if err := formDecoder.Decode(decodeTarget(&p), values); err != nil {
		return p, newValidationError(TargetParams, err)
	}
	return p, nil
}

// decodeTarget returns a pointer to the struct behind p, allocating it when
// P is itself a pointer type.
func decodeTarget[P any](p *P) any {
	rv := reflect.ValueOf(p).Elem()
	if rv.Kind() == reflect.Pointer {
		rv.Set(reflect.New(rv.Type().Elem()))
		return rv.Interface()
	}
	return p
}
