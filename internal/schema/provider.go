package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caldera-sec/logsift/internal/domain"
)

// MappingFetcher retrieves the raw mapping document for an index pattern.
type MappingFetcher interface {
	GetMapping(ctx context.Context, index string) (map[string]any, error)
}

// Provider fetches and flattens index schemas, holding each flattened schema
// for a short TTL so repeated validations within a request burst do not hit
// the backend again. Entries are revalidated lazily on read.
type Provider struct {
	fetcher MappingFetcher
	ttl     time.Duration

	mu      sync.RWMutex
	schemas map[string]cachedSchema
	now     func() time.Time
}

type cachedSchema struct {
	schema  domain.Schema
	fetched time.Time
}

// NewProvider creates a schema provider. ttl bounds how stale a flattened
// schema may be before the next read refetches it.
func NewProvider(fetcher MappingFetcher, ttl time.Duration) *Provider {
	return &Provider{
		fetcher: fetcher,
		ttl:     ttl,
		schemas: make(map[string]cachedSchema),
		now:     time.Now,
	}
}

// Get returns the flattened schema for an index pattern, fetching the
// mapping from the backend when no fresh copy is held.
func (p *Provider) Get(ctx context.Context, index string) (domain.Schema, error) {
	p.mu.RLock()
	cached, ok := p.schemas[index]
	p.mu.RUnlock()
	if ok && p.now().Sub(cached.fetched) < p.ttl {
		return cached.schema, nil
	}

	mapping, err := p.fetcher.GetMapping(ctx, index)
	if err != nil {
		// Serve a stale schema over failing the caller when one exists.
		if ok {
			return cached.schema, nil
		}
		return domain.Schema{}, fmt.Errorf("fetch mapping %s: %w", index, err)
	}

	s := FromMapping(index, mapping)
	p.mu.Lock()
	p.schemas[index] = cachedSchema{schema: s, fetched: p.now()}
	p.mu.Unlock()
	return s, nil
}

// Invalidate drops any held schema for the index.
func (p *Provider) Invalidate(index string) {
	p.mu.Lock()
	delete(p.schemas, index)
	p.mu.Unlock()
}
