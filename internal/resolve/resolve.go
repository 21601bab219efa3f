// Package resolve composes two lookup tables into a single lookup.
package resolve

// Resolver maps a key to an intermediate bucket and the bucket to a value.
// Both tables are owned by the resolver after construction and never mutated.
type Resolver[K, B comparable, V any] struct {
	first  map[K]B
	second map[B]V
}

// New returns a Resolver over the two tables. The maps are copied.
func New[K, B comparable, V any](first map[K]B, second map[B]V) *Resolver[K, B, V] {
	r := &Resolver[K, B, V]{
		first:  make(map[K]B, len(first)),
		second: make(map[B]V, len(second)),
	}
	for k, b := range first {
		r.first[k] = b
	}
	for b, v := range second {
		r.second[b] = v
	}
	return r
}

// Bucket returns the intermediate bucket for k.
func (r *Resolver[K, B, V]) Bucket(k K) (B, bool) {
	b, ok := r.first[k]
	return b, ok
}

// Resolve follows k through both tables.
func (r *Resolver[K, B, V]) Resolve(k K) (V, bool) {
	var zero V
	b, ok := r.first[k]
	if !ok {
		return zero, false
	}
	v, ok := r.second[b]
	if !ok {
		return zero, false
	}
	return v, true
}

// WithSecond returns a copy of r whose second table is replaced. Endpoints use
// it to share one kind-to-bucket table while carrying their own converters.
func (r *Resolver[K, B, V]) WithSecond(second map[B]V) *Resolver[K, B, V] {
	return New(r.first, second)
}
