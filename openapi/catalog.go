// Package openapi builds sensei endpoints from an OpenAPI 3 document.
//
// Every operation becomes an Endpoint over sensei.Values whose declared
// parameters mirror the operation's path, query, header and cookie
// parameters and the top-level properties of its JSON request body:
//
//	cat, err := openapi.Load(ctx, specBytes)
//	getPet, ok := cat.Endpoint("getPet")
//	args, err := getPet.Args(sensei.Values{"petId": 7})
package openapi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/blnkoff/sensei"
	"github.com/getkin/kin-openapi/openapi3"
)

// Endpoint is the endpoint type produced for every operation.
type Endpoint = sensei.Endpoint[sensei.Values, *sensei.Response]

// Catalog is an immutable set of endpoints keyed by operation id. Operations
// without an id are keyed "METHOD /path".
type Catalog struct {
	endpoints map[string]*Endpoint
	ids       []string
}

// Load parses and validates a JSON or YAML document.
func Load(ctx context.Context, data []byte, opts ...sensei.EndpointOption) (*Catalog, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return FromDocument(doc, opts...)
}

// LoadURI fetches the document at uri, resolving external references.
func LoadURI(ctx context.Context, uri string, opts ...sensei.EndpointOption) (*Catalog, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse openapi location: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromURI(u)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return FromDocument(doc, opts...)
}

// FromDocument builds a catalog from an already loaded document. opts are
// applied to every endpoint.
func FromDocument(doc *openapi3.T, opts ...sensei.EndpointOption) (*Catalog, error) {
	c := &Catalog{endpoints: make(map[string]*Endpoint)}
	if doc.Paths == nil {
		return c, nil
	}

	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			id := op.OperationID
			if id == "" {
				id = method + " " + path
			}
			if _, dup := c.endpoints[id]; dup {
				return nil, fmt.Errorf("duplicate operation id %q", id)
			}

			params := operationParams(item.Parameters, op)
			epOpts := []sensei.EndpointOption{sensei.WithParams(params...)}
			if op.Summary != "" {
				epOpts = append(epOpts, sensei.WithErrorMessage(op.Summary+" failed"))
			}
			epOpts = append(epOpts, opts...)
			e, err := sensei.NewEndpoint[sensei.Values, *sensei.Response](path, method, epOpts...)
			if err != nil {
				return nil, fmt.Errorf("operation %q: %w", id, err)
			}
			c.endpoints[id] = e
			c.ids = append(c.ids, id)
		}
	}
	sort.Strings(c.ids)
	return c, nil
}

// Endpoint returns the endpoint of an operation.
func (c *Catalog) Endpoint(operationID string) (*Endpoint, bool) {
	e, ok := c.endpoints[operationID]
	return e, ok
}

// OperationIDs returns the catalogued operation ids in sorted order.
func (c *Catalog) OperationIDs() []string {
	return append([]string(nil), c.ids...)
}

// Len returns the number of operations.
func (c *Catalog) Len() int { return len(c.ids) }

var locationKinds = map[string]sensei.ParamKind{
	openapi3.ParameterInPath:   sensei.KindPath,
	openapi3.ParameterInQuery:  sensei.KindQuery,
	openapi3.ParameterInHeader: sensei.KindHeader,
	openapi3.ParameterInCookie: sensei.KindCookie,
}

// operationParams merges path-item and operation parameters, the latter
// winning on the same name and location, and appends body properties.
// Document names are wire names, so every descriptor carries its name as
// alias.
func operationParams(shared openapi3.Parameters, op *openapi3.Operation) []sensei.ParamDescriptor {
	type key struct{ in, name string }
	merged := make(map[key]*openapi3.Parameter)
	var order []key
	for _, list := range []openapi3.Parameters{shared, op.Parameters} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			k := key{ref.Value.In, ref.Value.Name}
			if _, seen := merged[k]; !seen {
				order = append(order, k)
			}
			merged[k] = ref.Value
		}
	}

	var out []sensei.ParamDescriptor
	seen := make(map[string]bool)
	for _, k := range order {
		p := merged[k]
		kind, ok := locationKinds[p.In]
		if !ok || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, sensei.ParamDescriptor{
			Name:     p.Name,
			Kind:     kind,
			Alias:    p.Name,
			Required: p.Required,
		})
	}

	for _, prop := range bodyProperties(op) {
		if seen[prop.name] {
			continue
		}
		seen[prop.name] = true
		out = append(out, sensei.ParamDescriptor{
			Name:     prop.name,
			Kind:     sensei.KindBody,
			Alias:    prop.name,
			Required: prop.required,
		})
	}
	return out
}

type property struct {
	name     string
	required bool
}

func bodyProperties(op *openapi3.Operation) []property {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	var media *openapi3.MediaType
	for ct, m := range op.RequestBody.Value.Content {
		if strings.HasPrefix(ct, "application/json") {
			media = m
			break
		}
	}
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil
	}

	props := make(map[string]bool)
	collectProperties(media.Schema.Value, props)
	out := make([]property, 0, len(props))
	for name, required := range props {
		out = append(out, property{name: name, required: required})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// collectProperties flattens allOf compositions into one property set.
func collectProperties(s *openapi3.Schema, props map[string]bool) {
	for _, sub := range s.AllOf {
		if sub != nil && sub.Value != nil {
			collectProperties(sub.Value, props)
		}
	}
	for name := range s.Properties {
		if _, ok := props[name]; !ok {
			props[name] = false
		}
	}
	for _, name := range s.Required {
		if _, ok := props[name]; ok {
			props[name] = true
		}
	}
}
