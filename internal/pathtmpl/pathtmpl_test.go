package pathtmpl

import (
	"reflect"
	"testing"
)

func TestNames(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/items", nil},
		{"/items/{id}", []string{"id"}},
		{"/teams/{team_id}/users/{user_id}", []string{"team_id", "user_id"}},
		{"/a/{x}/b/{x}", []string{"x"}},
		{"/bad/{not-a-name}", nil},
	}
	for _, tt := range tests {
		got := Names(tt.path)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Names(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFill(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		values map[string]any
		want   string
	}{
		{"int value", "/items/{id}", map[string]any{"id": 5}, "/items/5"},
		{"string value", "/users/{name}/posts", map[string]any{"name": "bob"}, "/users/bob/posts"},
		{"missing stays literal", "/items/{missing}", map[string]any{}, "/items/{missing}"},
		{"nil map", "/items/{id}", nil, "/items/{id}"},
		{"repeated", "/{a}/{a}", map[string]any{"a": "x"}, "/x/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fill(tt.path, tt.values); got != tt.want {
				t.Errorf("Fill(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
