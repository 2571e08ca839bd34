// Package schema turns the backend's tree-shaped index mappings into the
// flat field/type/analyzer tables the policy layer validates against.
package schema

import (
	"github.com/caldera-sec/logsift/internal/domain"
)

// Flatten collapses a nested properties tree into dotted field paths. A node
// holding a "properties" map is a branch; anything else is a leaf whose type
// defaults to keyword when unspecified. Flatten is pure: same input, same
// output, no I/O. A nil or empty tree yields empty tables, never an error.
func Flatten(properties map[string]any) (map[string]domain.FieldType, map[string]string) {
	types := make(map[string]domain.FieldType)
	analyzers := make(map[string]string)
	flattenInto(properties, "", types, analyzers)
	return types, analyzers
}

func flattenInto(properties map[string]any, prefix string, types map[string]domain.FieldType, analyzers map[string]string) {
	for name, raw := range properties {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if children, ok := node["properties"].(map[string]any); ok {
			// A node can declare both a type and children ("nested" objects);
			// record the declared type and keep walking.
			if t, ok := node["type"].(string); ok {
				types[path] = domain.FieldType(t)
			}
			flattenInto(children, path, types, analyzers)
			continue
		}

		t := domain.TypeKeyword
		if declared, ok := node["type"].(string); ok {
			t = domain.FieldType(declared)
		}
		types[path] = t

		if a, ok := node["analyzer"].(string); ok {
			analyzers[path] = a
		}
	}
}

// FromMapping builds a Schema from a raw _mapping response body for one
// index: {index: {"mappings": {"properties": {...}}}}. Unknown shapes
// produce an empty schema rather than an error.
func FromMapping(index string, mapping map[string]any) domain.Schema {
	s := domain.Schema{
		Index:     index,
		Types:     map[string]domain.FieldType{},
		Analyzers: map[string]string{},
	}
	for _, raw := range mapping {
		body, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		mappings, ok := body["mappings"].(map[string]any)
		if !ok {
			continue
		}
		properties, ok := mappings["properties"].(map[string]any)
		if !ok {
			continue
		}
		types, analyzers := Flatten(properties)
		for f, t := range types {
			s.Types[f] = t
		}
		for f, a := range analyzers {
			s.Analyzers[f] = a
		}
	}
	return s
}
