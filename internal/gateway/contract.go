package gateway

import (
	"context"

	"github.com/caldera-sec/logsift/internal/elastic"
)

// Backend is the consumer interface for search dispatch (ISP).
type Backend interface {
	Search(ctx context.Context, index string, body []byte) (*elastic.SearchResponse, error)
	MultiSearch(ctx context.Context, index string, bodies [][]byte) ([]elastic.SearchResponse, error)
}
