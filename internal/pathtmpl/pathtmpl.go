// Package pathtmpl handles {name} placeholders in URL path templates.
package pathtmpl

import (
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Names returns the placeholder names of path in order of first appearance.
func Names(path string) []string {
	matches := placeholder.FindAllStringSubmatch(path, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Fill substitutes every placeholder that has a value in values with the value
// formatted by fmt.Sprint. Placeholders without a value are left as written.
func Fill(path string, values map[string]any) string {
	return placeholder.ReplaceAllStringFunc(path, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := values[name]
		if !ok {
			return token
		}
		return fmt.Sprint(v)
	})
}
