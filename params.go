package sensei

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// ParamKind is the declared destination of a parameter.
type ParamKind int

const (
	// KindAuto sends the parameter to the query string for safe methods and
	// to the JSON body otherwise.
	KindAuto ParamKind = iota
	// KindPath marks a parameter that only fills a path placeholder. It is
	// never sent anywhere else.
	KindPath
	KindQuery
	KindBody
	KindHeader
	KindCookie
)

var kindNames = [...]string{
	KindAuto:   "auto",
	KindPath:   "path",
	KindQuery:  "query",
	KindBody:   "body",
	KindHeader: "header",
	KindCookie: "cookie",
}

func (k ParamKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
	return kindNames[k]
}

func parseKind(s string) (ParamKind, bool) {
	for k, name := range kindNames {
		if name == s && ParamKind(k) != KindAuto {
			return ParamKind(k), true
		}
	}
	return KindAuto, false
}

// ParamDescriptor describes one parameter of an endpoint.
//
// Struct parameter types declare descriptors through field tags:
//
//	type GetItemParams struct {
//	    ID      int    `param:"id" validate:"required"`
//	    Verbose bool   `param:"verbose,query,omitempty"`
//	    Token   string `param:"api_token,header" alias:"Authorization"`
//	}
//
// An exported field without a param tag takes its Go name. `param:"-"`
// excludes a field.
type ParamDescriptor struct {
	Name      string
	Kind      ParamKind
	Alias     string // wire key, bypasses the case converter
	Required  bool
	OmitEmpty bool
	Type      reflect.Type // nil for dynamic parameters

	index []int
}

// Values is a dynamically described parameter set. Use it as the parameter
// type of an endpoint whose parameters are only known at runtime, and
// declare known parameters with WithParams.
type Values map[string]any

var valuesType = reflect.TypeFor[Values]()

// paramSchema is the compiled parameter layout of an endpoint's P type.
type paramSchema struct {
	typ     reflect.Type
	dynamic bool
	params  []ParamDescriptor
	byName  map[string]int
}

type paramValue struct {
	desc  *ParamDescriptor
	value any
}

func compileSchema(t reflect.Type, declared []ParamDescriptor) (*paramSchema, error) {
	s := &paramSchema{typ: t, byName: make(map[string]int)}

	if t == valuesType {
		s.dynamic = true
		for _, d := range declared {
			if err := s.add(d); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	if len(declared) > 0 {
		return nil, &ConfigurationError{Field: "params", Reason: "WithParams requires the sensei.Values parameter type"}
	}

	st := t
	if st != nil && st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st == nil || st.Kind() != reflect.Struct {
		return nil, &ConfigurationError{Field: "params", Value: t, Reason: "parameter type must be a struct, a pointer to a struct, or sensei.Values"}
	}

	for _, f := range reflect.VisibleFields(st) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		d, ok, err := fieldDescriptor(f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := s.add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *paramSchema) add(d ParamDescriptor) error {
	if d.Name == "" {
		return &ConfigurationError{Field: "params", Reason: "parameter name must not be empty"}
	}
	if _, dup := s.byName[d.Name]; dup {
		return &ConfigurationError{Field: "params", Value: d.Name, Reason: "duplicate parameter name"}
	}
	s.byName[d.Name] = len(s.params)
	s.params = append(s.params, d)
	return nil
}

// fieldDescriptor parses the param tag of f. ok is false for excluded fields.
func fieldDescriptor(f reflect.StructField) (d ParamDescriptor, ok bool, err error) {
	tag := f.Tag.Get("param")
	if tag == "-" {
		return d, false, nil
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	d = ParamDescriptor{
		Name:  name,
		Alias: f.Tag.Get("alias"),
		Type:  f.Type,
		index: f.Index,
	}

	if opts != "" {
		for _, opt := range strings.Split(opts, ",") {
			switch opt {
			case "":
			case "omitempty":
				d.OmitEmpty = true
			case "required":
				d.Required = true
			default:
				kind, known := parseKind(opt)
				if !known {
					return d, false, &ConfigurationError{Field: "params", Value: f.Name, Reason: fmt.Sprintf("unknown param option %q", opt)}
				}
				if d.Kind != KindAuto {
					return d, false, &ConfigurationError{Field: "params", Value: f.Name, Reason: "more than one destination declared"}
				}
				d.Kind = kind
			}
		}
	}
	if d.Kind == KindCookie && isMultiValued(f.Type) {
		return d, false, &ConfigurationError{Field: "params", Value: f.Name, Reason: "a cookie parameter cannot hold a slice"}
	}
	if slices.Contains(strings.Split(f.Tag.Get("validate"), ","), "required") {
		d.Required = true
	}
	return d, true, nil
}

// descriptors returns a copy of the declared parameters.
func (s *paramSchema) descriptors() []ParamDescriptor {
	return slices.Clone(s.params)
}

// collect returns the present parameter values of p in declaration order.
// Nil values and zero values of omitempty parameters are left out. Extra
// keys of a Values set follow the declared ones in key order.
func (s *paramSchema) collect(p any) ([]paramValue, error) {
	if s.dynamic {
		return s.collectValues(p.(Values))
	}

	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	out := make([]paramValue, 0, len(s.params))
	for i := range s.params {
		d := &s.params[i]
		fv, err := rv.FieldByIndexErr(d.index)
		if err != nil {
			// nil embedded pointer on the path to the field
			continue
		}
		if isNilValue(fv) || (d.OmitEmpty && fv.IsZero()) {
			continue
		}
		out = append(out, paramValue{desc: d, value: fv.Interface()})
	}
	return out, nil
}

func (s *paramSchema) collectValues(vals Values) ([]paramValue, error) {
	out := make([]paramValue, 0, len(vals))
	var missing map[string]string
	for i := range s.params {
		d := &s.params[i]
		v, ok := vals[d.Name]
		if !ok || v == nil {
			if d.Required {
				if missing == nil {
					missing = make(map[string]string)
				}
				missing[d.Name] = "required"
			}
			continue
		}
		if d.OmitEmpty && reflect.ValueOf(v).IsZero() {
			continue
		}
		out = append(out, paramValue{desc: d, value: v})
	}
	if missing != nil {
		return nil, &ValidationError{Target: TargetParams, Fields: missing}
	}

	extra := make([]string, 0, len(vals))
	for name, v := range vals {
		if _, declared := s.byName[name]; declared || v == nil {
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, paramValue{desc: &ParamDescriptor{Name: name}, value: vals[name]})
	}
	return out, nil
}

// structValue returns the struct to validate for p, or false for dynamic sets.
func (s *paramSchema) structValue(p any) (any, bool) {
	if s.dynamic {
		return nil, false
	}
	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface(), true
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

// isMultiValued reports slice and array types other than []byte, which
// formatMulti expands into repeated values.
func isMultiValued(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
