// Package ogd fetches paginated records from the Open Government Data
// platform's resource API (api.data.gov.in).
package ogd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ogdsync/internal/company"
	"ogdsync/internal/config"
	"ogdsync/internal/metrics"
)

// maxErrorBody bounds how much of an error response we read back for the
// error message.
const maxErrorBody = 2048

// Client reads pages of records from one OGD resource.
type Client struct {
	baseURL  string
	apiKey   string
	resource string
	httpc    *http.Client
}

// NewClient builds a Client for the resource named in cfg. If httpc is nil a
// client with the configured timeout is used.
func NewClient(cfg config.OGD, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		resource: cfg.ResourceID,
		httpc:    httpc,
	}
}

// page is the subset of the OGD response envelope we consume. The envelope
// carries more (title, field descriptors, counts) but only the records matter
// for sync.
type page struct {
	Records []company.Record `json:"records"`
}

// FetchPage returns one page of records starting at offset. An empty slice
// with a nil error means the resource has no records at that offset; the
// caller decides whether that is exhaustion or a problem.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) ([]company.Record, error) {
	u := c.pageURL(offset, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start))
		return nil, fmt.Errorf("fetch offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("fetch offset %d: status %d: %s", offset, resp.StatusCode, strings.TrimSpace(string(body)))
		metrics.RecordHTTP(resp.StatusCode, err, time.Since(start))
		return nil, err
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		metrics.RecordHTTP(resp.StatusCode, err, time.Since(start))
		return nil, fmt.Errorf("decode offset %d: %w", offset, err)
	}
	metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start))

	return p.Records, nil
}

func (c *Client) pageURL(offset, limit int) string {
	q := url.Values{}
	q.Set("api-key", c.apiKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return c.baseURL + "/" + c.resource + "?" + q.Encode()
}
