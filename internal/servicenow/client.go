package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FetchStats accumulates request metrics for one logical run. It is
// owned by the orchestrating caller and handed to the client at
// construction, so metrics never live on implicit global state.
type FetchStats struct {
	Requests int
	Failed   int
	APITime  time.Duration
}

// SuccessRate returns the percentage of requests that succeeded.
func (s *FetchStats) SuccessRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Requests-s.Failed) / float64(s.Requests) * 100
}

// Client talks to the ServiceNow table REST API with basic auth.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	PageLimit  int
	HttpClient *http.Client

	limiter *rate.Limiter
	stats   *FetchStats
}

// NewClient creates a table-API client. pageDelay is the minimum spacing
// between page requests (the remote instance rate-limits aggressive
// pagination); stats may be nil when the caller does not track metrics.
func NewClient(baseURL, username, password string, pageLimit int, pageDelay time.Duration, stats *FetchStats) *Client {
	if pageLimit <= 0 {
		pageLimit = 10000
	}
	if pageDelay <= 0 {
		pageDelay = 200 * time.Millisecond
	}
	if stats == nil {
		stats = &FetchStats{}
	}
	return &Client{
		BaseURL:    baseURL,
		Username:   username,
		Password:   password,
		PageLimit:  pageLimit,
		HttpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(pageDelay), 1),
		stats:      stats,
	}
}

// Stats returns a snapshot of the accumulated request metrics.
func (c *Client) Stats() FetchStats {
	return *c.stats
}

type tableResponse struct {
	Result []Record `json:"result"`
}

type recordResponse struct {
	Result Record `json:"result"`
}

// FetchPage requests one page of a table. An empty slice signals
// end-of-data; transport and HTTP-level failures return an error and
// never an empty page, so callers can tell the two apart.
func (c *Client) FetchPage(ctx context.Context, table, query string, fields []string, limit, offset int) ([]Record, error) {
	params := url.Values{}
	if query != "" {
		params.Set("sysparm_query", query)
	}
	if len(fields) > 0 {
		params.Set("sysparm_fields", strings.Join(fields, ","))
	}
	params.Set("sysparm_limit", fmt.Sprintf("%d", limit))
	params.Set("sysparm_offset", fmt.Sprintf("%d", offset))

	var resp tableResponse
	if err := c.get(ctx, "/api/now/table/"+table, params, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// FetchAll pages through a table until an empty page is returned,
// spacing requests with the client's rate limiter. Any page failure
// aborts the whole fetch; no partial result is returned.
func (c *Client) FetchAll(ctx context.Context, table, query string, fields []string) ([]Record, error) {
	var all []Record
	offset := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.FetchPage(ctx, table, query, fields, c.PageLimit, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		offset += c.PageLimit
	}
}

// FetchByID reads a single record, used for display-value enrichment.
// A 404 returns (nil, nil): a dangling reference is not a failure.
func (c *Client) FetchByID(ctx context.Context, table, id string) (Record, error) {
	var resp recordResponse
	err := c.get(ctx, "/api/now/table/"+table+"/"+id, url.Values{}, &resp)
	if err != nil {
		if he, ok := err.(*httpError); ok && he.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Result, nil
}

type httpError struct {
	status int
	url    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.url, e.status)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	start := time.Now()
	c.stats.Requests++

	fullURL := c.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		c.stats.Failed++
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req)
	c.stats.APITime += time.Since(start)
	if err != nil {
		c.stats.Failed++
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.stats.Failed++
		io.Copy(io.Discard, resp.Body)
		return &httpError{status: resp.StatusCode, url: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.stats.Failed++
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
