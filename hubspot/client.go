package hubspot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crmforge/hubscan/backoff"
	"github.com/crmforge/hubscan/errors"
	"github.com/crmforge/hubscan/internal/httpclient"
	"github.com/crmforge/hubscan/ratelimit"
)

const (
	// MaxPageSize is the CRM's page-size ceiling
	MaxPageSize = 100

	// retryAfterHeader carries the server-specified delay on HTTP 429
	retryAfterHeader = "X-HubSpot-RateLimit-Interval-Milliseconds"

	// defaultRetryAfter applies when a 429 response omits the header
	defaultRetryAfter = 10 * time.Second

	userAgent = "hubscan/1.0"
)

// ClientConfig configures the CRM client
type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RetryPolicy       backoff.Policy
	AllowPrivateHosts bool // tests against httptest servers need loopback access
}

// Client talks to the HubSpot CRM v3 API. All calls are gated by the shared
// per-tenant rate limiter, so the call budget counts real upstream requests
// including retries.
type Client struct {
	baseURL     string
	http        *httpclient.SaferClient
	limiter     *ratelimit.TenantLimiter
	retryPolicy backoff.Policy
	logger      *zap.SugaredLogger
}

// NewClient creates a CRM client sharing the given per-tenant limiter
func NewClient(cfg ClientConfig, limiter *ratelimit.TenantLimiter, logger *zap.SugaredLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	block := !cfg.AllowPrivateHosts
	hc := httpclient.NewWithOptions(timeout, httpclient.Options{BlockPrivateIP: &block})

	policy := cfg.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = backoff.DefaultPolicy()
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        hc,
		limiter:     limiter,
		retryPolicy: policy,
		logger:      logger.Named("hubspot"),
	}
}

// FetchDealsPage fetches one page of deals. The cursor is opaque: empty for
// the first page, otherwise the value returned by the previous call.
// Malformed individual records are reported in DecodeErrors, not as a page
// failure.
func (c *Client) FetchDealsPage(ctx context.Context, creds Credentials, cursor string, pageSize int, properties, associations []string) (*DealsPage, error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if len(properties) == 0 {
		properties = DefaultDealProperties
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("properties", strings.Join(properties, ","))
	if len(associations) > 0 {
		params.Set("associations", strings.Join(associations, ","))
	}
	if cursor != "" {
		params.Set("after", cursor)
	}

	body, err := c.get(ctx, creds, "/crm/v3/objects/deals", params)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
	}

	page := &DealsPage{}
	for _, raw := range resp.Results {
		rec, err := decodeDeal(raw)
		if err != nil {
			page.DecodeErrors = append(page.DecodeErrors, RecordError{
				ItemID:  probeID(raw),
				Message: err.Error(),
			})
			continue
		}
		page.Deals = append(page.Deals, rec)
	}

	if resp.Paging != nil && resp.Paging.Next != nil && resp.Paging.Next.After != "" {
		page.NextCursor = resp.Paging.Next.After
		page.HasMore = true
	}

	c.logger.Debugw("Fetched deals page",
		"tenant", creds.Tenant,
		"deal_count", len(page.Deals),
		"decode_errors", len(page.DecodeErrors),
		"has_more", page.HasMore,
	)

	return page, nil
}

// FetchDeal fetches a single deal by its CRM object id. A deal the portal
// does not know is ErrNotFound.
func (c *Client) FetchDeal(ctx context.Context, creds Credentials, dealID string, properties, associations []string) (*DealRecord, error) {
	if dealID == "" {
		return nil, errors.NewInvalidConfigurationError("deal id must not be empty")
	}
	if len(properties) == 0 {
		properties = DefaultDealProperties
	}

	params := url.Values{}
	params.Set("properties", strings.Join(properties, ","))
	if len(associations) > 0 {
		params.Set("associations", strings.Join(associations, ","))
	}

	body, err := c.get(ctx, creds, "/crm/v3/objects/deals/"+url.PathEscape(dealID), params)
	if err != nil {
		return nil, err
	}

	rec, err := decodeDeal(body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrRecordDecode, "deal %s: %v", dealID, err)
	}
	return &rec, nil
}

// FetchAccountInfo returns portal details for the tenant's token. Useful as
// a connection diagnostic beyond the bare credential probe.
func (c *Client) FetchAccountInfo(ctx context.Context, creds Credentials) (*AccountInfo, error) {
	body, err := c.get(ctx, creds, "/integrations/v1/me", nil)
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
	}
	return &info, nil
}

// FetchPipelines returns the tenant's deal pipelines with ordered stages
func (c *Client) FetchPipelines(ctx context.Context, creds Credentials) ([]Pipeline, error) {
	body, err := c.get(ctx, creds, "/crm/v3/pipelines/deals", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []wirePipeline `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
	}

	pipelines := make([]Pipeline, 0, len(resp.Results))
	for _, wp := range resp.Results {
		p := Pipeline{
			ID:           wp.ID,
			Label:        wp.Label,
			DisplayOrder: wp.DisplayOrder,
		}
		for _, ws := range wp.Stages {
			prob, _ := strconv.ParseFloat(ws.Metadata.Probability, 64)
			p.Stages = append(p.Stages, PipelineStage{
				ID:             ws.ID,
				Label:          ws.Label,
				DisplayOrder:   ws.DisplayOrder,
				WinProbability: prob,
				Closed:         ws.Metadata.IsClosed == "true",
			})
		}
		pipelines = append(pipelines, p)
	}

	return pipelines, nil
}

// FetchDealProperties returns the names of all available deal properties
func (c *Client) FetchDealProperties(ctx context.Context, creds Credentials) ([]string, error) {
	body, err := c.get(ctx, creds, "/crm/v3/properties/deals", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []wireProperty `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
	}

	names := make([]string, 0, len(resp.Results))
	for _, p := range resp.Results {
		names = append(names, p.Name)
	}
	return names, nil
}

// ValidateCredentials probes the properties endpoint with a minimal request.
// An invalid or under-scoped token surfaces as ErrAuthorization.
func (c *Client) ValidateCredentials(ctx context.Context, creds Credentials) error {
	params := url.Values{}
	params.Set("limit", "1")
	_, err := c.get(ctx, creds, "/crm/v3/properties/deals", params)
	return err
}

// get performs one rate-limited GET with bounded retry. Transient failures
// (network error, 5xx, 429) are retried with exponential backoff; 401/403
// abort immediately as ErrAuthorization.
func (c *Client) get(ctx context.Context, creds Credentials, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	if _, err := c.http.ValidateURL(fullURL); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, err.Error())
	}

	retry := backoff.NewState(c.retryPolicy)
	for {
		if err := c.limiter.Wait(ctx, creds.Tenant); err != nil {
			return nil, err
		}

		body, err := c.attempt(ctx, creds, fullURL)
		if err == nil {
			return body, nil
		}
		if !errors.IsTransientFetch(err) {
			return nil, err
		}

		if !retry.Failure() {
			return nil, errors.Wrapf(err, "retry budget exhausted after %d attempts", retry.Attempts())
		}

		c.logger.Warnw("Transient fetch failure, backing off",
			"tenant", creds.Tenant,
			"path", path,
			"attempt", retry.Attempts(),
			"next_attempt_at", retry.NextAllowed(),
			"error", err,
		)

		if err := retry.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single HTTP request and classifies the outcome
func (c *Client) attempt(ctx context.Context, creds Credentials, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrTransientFetch, err.Error())
		}
		return body, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(errors.ErrAuthorization, "upstream returned %d", resp.StatusCode)

	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(errors.ErrNotFound, "upstream returned 404")

	case resp.StatusCode == http.StatusTooManyRequests:
		delay := retryAfterDelay(resp.Header)
		c.limiter.Penalize(creds.Tenant, delay)
		return nil, errors.Wrapf(errors.ErrTransientFetch, "rate limited, retry after %s", delay)

	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrTransientFetch, "upstream returned %d", resp.StatusCode)

	default:
		return nil, errors.Newf("unexpected upstream status %d", resp.StatusCode)
	}
}

// retryAfterDelay reads the server-specified delay from a 429 response
func retryAfterDelay(h http.Header) time.Duration {
	if v := h.Get(retryAfterHeader); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultRetryAfter
}

// probeID best-effort extracts the object id from a record that failed to
// decode, for the error trail.
func probeID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}
