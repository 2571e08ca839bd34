// Package elastic is the search-backend egress: plain HTTP against an
// Elasticsearch/OpenSearch-compatible API, scoped to search, multi-search,
// and mapping calls. Every call carries an explicit timeout.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Config holds backend connection settings.
type Config struct {
	URL                string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *zap.Logger
}

// Client issues search calls against one backend cluster.
type Client struct {
	base     string
	username string
	password string
	timeout  time.Duration
	hc       *http.Client
	logger   *zap.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		// Self-signed certs are the norm on appliance deployments.
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		transport = t
	}

	return &Client{
		base:     cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		hc:       &http.Client{Transport: transport},
		logger:   logger,
	}
}

// Hit is one backend hit with its source document.
type Hit struct {
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

// SearchResponse is the subset of the backend search response the gateway
// normalizes from.
type SearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Error        json.RawMessage            `json:"error"`
	Status       int                        `json:"status"`
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend ping returned status %d", resp.StatusCode)
	}
	return nil
}

// Search runs one _search call against an index pattern.
func (c *Client) Search(ctx context.Context, index string, body []byte) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/_search", c.base, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if resp.StatusCode >= 400 || len(sr.Error) > 0 {
		return nil, fmt.Errorf("search failed (%d): %s", resp.StatusCode, truncate(sr.Error, 200))
	}
	return &sr, nil
}

// MultiSearch dispatches an ordered batch as one _msearch call. Results come
// back in request order; a failure of any entry fails the whole batch.
func (c *Client) MultiSearch(ctx context.Context, index string, bodies [][]byte) ([]SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	header, _ := json.Marshal(map[string]string{"index": index})
	for _, body := range bodies {
		buf.Write(header)
		buf.WriteByte('\n')
		buf.Write(bytes.TrimRight(body, "\n"))
		buf.WriteByte('\n')
	}

	url := c.base + "/_msearch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build msearch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	var mr struct {
		Responses []SearchResponse `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode msearch response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("msearch failed (%d)", resp.StatusCode)
	}
	if len(mr.Responses) != len(bodies) {
		return nil, fmt.Errorf("msearch returned %d responses for %d queries", len(mr.Responses), len(bodies))
	}
	for i, r := range mr.Responses {
		if len(r.Error) > 0 {
			return nil, fmt.Errorf("msearch entry %d failed: %s", i, truncate(r.Error, 200))
		}
	}
	return mr.Responses, nil
}

// GetMapping fetches the raw mapping document for an index pattern.
func (c *Client) GetMapping(ctx context.Context, index string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/_mapping", c.base, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build mapping request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mapping fetch failed (%d)", resp.StatusCode)
	}
	var mapping map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return mapping, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.hc.Do(req)
}

func truncate(raw json.RawMessage, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
