package schema

import "context"

// StaticFetcher serves a fixed properties tree without a live backend. Used
// in demo mode, where the gateway synthesizes results for the same fields.
type StaticFetcher struct {
	Properties map[string]any
}

// GetMapping wraps the fixed properties in the backend's mapping envelope
// for whatever index is asked for.
func (f StaticFetcher) GetMapping(_ context.Context, index string) (map[string]any, error) {
	return map[string]any{
		index: map[string]any{
			"mappings": map[string]any{"properties": f.Properties},
		},
	}, nil
}

// DemoProperties is the field set the demo-mode synthetic results draw from.
func DemoProperties() map[string]any {
	return map[string]any{
		"@timestamp":  map[string]any{"type": "date"},
		"event":       map[string]any{"properties": map[string]any{"action": map[string]any{"type": "keyword"}}},
		"user":        map[string]any{"properties": map[string]any{"name": map[string]any{"type": "keyword"}}},
		"source":      map[string]any{"properties": map[string]any{"ip": map[string]any{"type": "ip"}}},
		"destination": map[string]any{"properties": map[string]any{"port": map[string]any{"type": "integer"}}},
		"file":        map[string]any{"properties": map[string]any{"path": map[string]any{"type": "keyword"}}},
		"agent":       map[string]any{"properties": map[string]any{"name": map[string]any{"type": "keyword"}}},
		"rule": map[string]any{"properties": map[string]any{
			"level":       map[string]any{"type": "integer"},
			"description": map[string]any{"type": "text"},
		}},
		"message": map[string]any{"type": "text", "analyzer": "standard"},
	}
}
