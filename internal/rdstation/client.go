package rdstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/metrics"
)

// ErrMissingCredential is returned when the client is constructed
// without an OAuth client ID and secret.
var ErrMissingCredential = errors.New("rdstation: missing client ID or secret")

const defaultBaseURL = "https://api.rd.services"

// Client talks to the RD Station CRM REST API. The API's endpoint
// paths and filter parameter spellings vary across accounts and plan
// tiers, so list fetches walk an ordered set of candidates and adopt
// the first combination that answers with data. Exhausting every
// candidate yields an empty result, not an error.
type Client struct {
	clientID     string
	clientSecret string
	accountID    string
	baseURL      string
	tokenURL     string
	tokenPath    string
	pageSize     int
	maxPages     int
	httpClient   *http.Client
	logger       *zap.Logger
	metrics      *metrics.Metrics

	tokenMu sync.Mutex
}

// EmailMetrics are the per-campaign delivery counters, with the API's
// alternate key spellings already folded together.
type EmailMetrics struct {
	Sends  int64 `json:"sends"`
	Opens  int64 `json:"opens"`
	Clicks int64 `json:"clicks"`
}

// Item is one raw list element from the API. Field names vary by
// endpoint version, so access goes through the lookup helpers.
type Item map[string]interface{}

// String returns the first present, non-empty value among the keys,
// rendered as a string. Numeric IDs are rendered without an exponent.
func (it Item) String(keys ...string) string {
	for _, k := range keys {
		v, ok := it[k]
		if !ok || v == nil {
			continue
		}
		switch vv := v.(type) {
		case string:
			if vv != "" {
				return vv
			}
		case float64:
			return strconv.FormatFloat(vv, 'f', -1, 64)
		}
	}
	return ""
}

// ID returns the campaign identifier under its known spellings.
func (it Item) ID() string {
	return it.String("id", "campaignId", "uuid")
}

// SendDate returns the campaign's send date as YYYY-MM-DD, falling
// back through the known timestamp fields and finally to the given
// default.
func (it Item) SendDate(fallback string) string {
	s := it.String("send_datetime", "sent_at", "scheduled_at", "created_at")
	if s == "" {
		s = fallback
	}
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// Stage returns the contact's funnel stage under its known field
// spellings. Contacts carrying none land in "unknown".
func (it Item) Stage() string {
	s := it.String("lifecycle_stage", "funnel_stage", "status")
	if s == "" {
		return "unknown"
	}
	return s
}

// New builds a CRM client from configuration. The constructor is
// eager about credentials but does not touch the network; a missing
// token surfaces on first fetch.
func New(cfg config.RDStationConfig, fetchCfg config.FetchConfig, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredential
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	pageSize := fetchCfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	maxPages := fetchCfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accountID:    cfg.AccountID,
		baseURL:      baseURL,
		tokenURL:     baseURL + "/auth/token",
		tokenPath:    cfg.TokenPath,
		pageSize:     pageSize,
		maxPages:     maxPages,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		metrics:      m,
	}, nil
}

// FetchEmailCampaigns lists email campaigns sent inside the inclusive
// date range, walking endpoint and filter-spelling candidates.
func (c *Client) FetchEmailCampaigns(ctx context.Context, startDate, endDate string) ([]Item, error) {
	endpoints := []string{
		c.baseURL + "/platform/emails/campaigns",
		c.baseURL + "/marketing/email/campaigns",
	}
	variants := c.paramVariants([]url.Values{
		{"start_date": {startDate}, "end_date": {endDate}},
		{"sent_at[start]": {startDate}, "sent_at[end]": {endDate}},
		{},
	})
	return c.fetchPaginated(ctx, endpoints, variants, []string{"items", "campaigns"})
}

// FetchContacts lists contacts updated inside the inclusive date
// range, under the same candidate-walking discipline.
func (c *Client) FetchContacts(ctx context.Context, updatedStart, updatedEnd string) ([]Item, error) {
	endpoints := []string{
		c.baseURL + "/platform/contacts",
		c.baseURL + "/contacts",
	}
	variants := c.paramVariants([]url.Values{
		{"updated_at[start]": {updatedStart}, "updated_at[end]": {updatedEnd}},
		{"updated_start": {updatedStart}, "updated_end": {updatedEnd}},
		{},
	})
	return c.fetchPaginated(ctx, endpoints, variants, []string{"items", "contacts"})
}

// FetchEmailMetrics returns a campaign's delivery counters. A campaign
// unknown to every endpoint reports zeros, it is not an error.
func (c *Client) FetchEmailMetrics(ctx context.Context, campaignID string) (EmailMetrics, error) {
	tok, err := c.ensureToken(ctx)
	if err != nil {
		return EmailMetrics{}, err
	}

	endpoints := []string{
		c.baseURL + "/platform/emails/campaigns/" + campaignID + "/metrics",
		c.baseURL + "/marketing/email/campaigns/" + campaignID + "/metrics",
	}
	for _, endpoint := range endpoints {
		status, body, err := c.get(ctx, tok, endpoint, nil)
		if err != nil {
			return EmailMetrics{}, err
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			return EmailMetrics{}, fmt.Errorf("rdstation: metrics for %s: unexpected status %d", campaignID, status)
		}
		var raw Item
		if err := json.Unmarshal(body, &raw); err != nil {
			return EmailMetrics{}, fmt.Errorf("rdstation: decode metrics: %w", err)
		}
		return EmailMetrics{
			Sends:  intKey(raw, "sends", "delivered", "sent"),
			Opens:  intKey(raw, "opens", "unique_opens"),
			Clicks: intKey(raw, "clicks", "unique_clicks"),
		}, nil
	}
	return EmailMetrics{}, nil
}

// FetchEmailCampaignByID returns a single campaign's metadata, trying
// the known endpoints and account-ID spellings. An ID unknown
// everywhere yields a nil item.
func (c *Client) FetchEmailCampaignByID(ctx context.Context, campaignID string) (Item, error) {
	tok, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoints := []string{
		c.baseURL + "/platform/emails/campaigns/" + campaignID,
		c.baseURL + "/marketing/email/campaigns/" + campaignID,
	}
	variants := []url.Values{{}}
	if c.accountID != "" {
		variants = append(variants,
			url.Values{"account_id": {c.accountID}},
			url.Values{"accountId": {c.accountID}})
	}
	for _, endpoint := range endpoints {
		for _, params := range variants {
			status, body, err := c.get(ctx, tok, endpoint, params)
			if err != nil {
				return nil, err
			}
			switch {
			case status == http.StatusNotFound:
				continue
			case status != http.StatusOK:
				return nil, fmt.Errorf("rdstation: campaign %s: unexpected status %d", campaignID, status)
			}
			var item Item
			if err := json.Unmarshal(body, &item); err != nil {
				return nil, fmt.Errorf("rdstation: decode campaign: %w", err)
			}
			return item, nil
		}
	}
	return nil, nil
}

// paramVariants expands the base filter spellings with the account-ID
// spellings when an account is configured.
func (c *Client) paramVariants(bases []url.Values) []url.Values {
	variants := make([]url.Values, 0, len(bases)*3)
	for _, base := range bases {
		variants = append(variants, cloneValues(base))
		if c.accountID != "" {
			withAcc := cloneValues(base)
			withAcc.Set("account_id", c.accountID)
			variants = append(variants, withAcc)
			withAcc2 := cloneValues(base)
			withAcc2.Set("accountId", c.accountID)
			variants = append(variants, withAcc2)
		}
	}
	return variants
}

// fetchPaginated walks endpoint candidates and parameter variants,
// adopting the first combination whose first page answers 200 with at
// least one item, then pages it to exhaustion. A 404 abandons the
// endpoint, a 400/422/500 abandons the variant. Running out of
// candidates returns an empty slice.
func (c *Client) fetchPaginated(ctx context.Context, endpoints []string, variants []url.Values, itemKeys []string) ([]Item, error) {
	tok, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
endpointLoop:
	for _, endpoint := range endpoints {
	variantLoop:
		for _, variant := range variants {
			var collected []Item
		pageLoop:
			for page := 1; page <= c.maxPages; page++ {
				params := cloneValues(variant)
				params.Set("page", strconv.Itoa(page))
				params.Set("size", strconv.Itoa(c.pageSize))

				status, body, err := c.get(ctx, tok, endpoint, params)
				if err != nil {
					return nil, err
				}
				// Errors after the combination was adopted end the run,
				// keeping what was collected.
				switch status {
				case http.StatusNotFound:
					if len(collected) > 0 {
						break pageLoop
					}
					c.recordFallback("endpoint_not_found")
					continue endpointLoop
				case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError:
					if len(collected) > 0 {
						break pageLoop
					}
					c.recordFallback("variant_rejected")
					continue variantLoop
				case http.StatusOK:
				default:
					return nil, fmt.Errorf("rdstation: %s: unexpected status %d", endpoint, status)
				}

				items, err := extractItems(body, itemKeys)
				if err != nil {
					return nil, err
				}
				if len(items) == 0 {
					if page == 1 {
						continue variantLoop
					}
					break
				}
				collected = append(collected, items...)
				if len(items) < c.pageSize {
					break
				}
			}
			if len(collected) > 0 {
				if c.metrics != nil {
					c.metrics.RecordFetch("rdstation", "list", "ok", time.Since(start))
				}
				c.logger.Debug("rdstation list fetched",
					zap.String("endpoint", endpoint),
					zap.Int("items", len(collected)))
				return collected, nil
			}
		}
	}

	c.logger.Warn("rdstation fetch exhausted every endpoint and variant, returning empty result")
	if c.metrics != nil {
		c.metrics.RecordFetch("rdstation", "list", "empty", time.Since(start))
	}
	return nil, nil
}

func (c *Client) get(ctx context.Context, tok *Token, endpoint string, params url.Values) (int, []byte, error) {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("rdstation: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	if c.accountID != "" {
		req.Header.Set("X-Account-Id", c.accountID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("rdstation: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("rdstation: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) recordFallback(reason string) {
	if c.metrics != nil {
		c.metrics.RecordFallback(reason)
	}
}

// extractItems accepts either a bare JSON array or an object wrapping
// the list under one of the known keys.
func extractItems(body []byte, itemKeys []string) ([]Item, error) {
	var asList []Item
	if err := json.Unmarshal(body, &asList); err == nil {
		return asList, nil
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("rdstation: decode list response: %w", err)
	}
	for _, key := range itemKeys {
		raw, ok := asObject[key]
		if !ok {
			continue
		}
		var items []Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("rdstation: decode %q list: %w", key, err)
		}
		return items, nil
	}
	return nil, nil
}

func intKey(it Item, keys ...string) int64 {
	for _, k := range keys {
		v, ok := it[k]
		if !ok || v == nil {
			continue
		}
		switch vv := v.(type) {
		case float64:
			if vv != 0 {
				return int64(vv)
			}
		case string:
			if n, err := strconv.ParseInt(vv, 10, 64); err == nil && n != 0 {
				return n
			}
		}
	}
	return 0
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
