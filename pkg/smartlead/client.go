// Package smartlead provides a read-only client for the SmartLead campaign API.
package smartlead

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/hyperke/client-health/internal/resilience"
)

const (
	defaultBaseURL  = "https://server.smartlead.ai/api/v1"
	defaultPageSize = 100
	service         = "smartlead"
)

// Client defines the SmartLead reads the not-contacted refresh needs.
type Client interface {
	// ActiveCampaigns lists campaigns whose status is ACTIVE.
	ActiveCampaigns(ctx context.Context) ([]Campaign, error)
	// Clients returns SmartLead clients keyed by id.
	Clients(ctx context.Context) (map[int64]ClientInfo, error)
	// CampaignLeads pages through every lead of a campaign and counts them by status.
	CampaignLeads(ctx context.Context, campaignID int64) (*LeadCounts, error)
}

// Campaign is one SmartLead campaign.
type Campaign struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	ClientID   *int64 `json:"client_id"`
	ClientName string `json:"client_name"`
}

// ClientInfo is one SmartLead client account.
type ClientInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
}

// LeadCounts tallies a campaign's leads by status.
type LeadCounts struct {
	Total      int64
	Started    int64
	InProgress int64
	Completed  int64
	Paused     int64
	Stopped    int64
	Blocked    int64
}

// NotContacted is the number of leads still waiting for their first email.
func (c LeadCounts) NotContacted() int64 { return c.Started }

func (c *LeadCounts) add(status string) {
	c.Total++
	switch strings.ToUpper(status) {
	case "STARTED":
		c.Started++
	case "INPROGRESS":
		c.InProgress++
	case "COMPLETED":
		c.Completed++
	case "PAUSED":
		c.Paused++
	case "STOPPED":
		c.Stopped++
	case "BLOCKED":
		c.Blocked++
	}
}

// Option configures the SmartLead client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPageSize sets the leads page size.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit caps outgoing requests per second across all goroutines.
// Zero or negative disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker shares a circuit breaker across clients.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breaker  *resilience.Breaker
}

// NewClient creates a new SmartLead client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.BreakerConfig{Name: service, Threshold: 10, Cooldown: time.Minute})
	}
	return c
}

func (c *httpClient) ActiveCampaigns(ctx context.Context) ([]Campaign, error) {
	var all listOrData[Campaign]
	if err := c.get(ctx, "/campaigns", url.Values{"include_tags": {"true"}}, &all); err != nil {
		return nil, eris.Wrap(err, "smartlead: list campaigns")
	}

	active := make([]Campaign, 0, len(all))
	for _, cp := range all {
		if cp.Status == "ACTIVE" {
			active = append(active, cp)
		}
	}
	return active, nil
}

func (c *httpClient) Clients(ctx context.Context) (map[int64]ClientInfo, error) {
	var list listOrData[ClientInfo]
	if err := c.get(ctx, "/client/", nil, &list); err != nil {
		return nil, eris.Wrap(err, "smartlead: list clients")
	}

	out := make(map[int64]ClientInfo, len(list))
	for _, ci := range list {
		out[ci.ID] = ci
	}
	return out, nil
}

type leadsPage struct {
	Data []struct {
		Status string `json:"status"`
	} `json:"data"`
	TotalLeads flexInt `json:"total_leads"`
}

func (c *httpClient) CampaignLeads(ctx context.Context, campaignID int64) (*LeadCounts, error) {
	path := "/campaigns/" + strconv.FormatInt(campaignID, 10) + "/leads"
	counts := &LeadCounts{}

	for offset := 0; ; offset += c.pageSize {
		var page leadsPage
		params := url.Values{
			"limit":  {strconv.Itoa(c.pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		if err := c.get(ctx, path, params, &page); err != nil {
			return nil, eris.Wrapf(err, "smartlead: leads for campaign %d at offset %d", campaignID, offset)
		}
		if len(page.Data) == 0 {
			break
		}
		for _, l := range page.Data {
			counts.add(l.Status)
		}

		// A missing total means we only stop on a short page.
		total := int64(page.TotalLeads)
		if len(page.Data) < c.pageSize || (total > 0 && counts.Total >= total) {
			break
		}
	}
	return counts, nil
}

// get issues a GET with retries and decodes the JSON body into out.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger(service, path)

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, path, params)
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "smartlead: decode %s", path)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "smartlead: rate limit wait")
		}
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "smartlead: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full URL, api_key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, eris.Wrapf(err, "smartlead: GET %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "smartlead: read %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &resilience.StatusError{Service: service, StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
