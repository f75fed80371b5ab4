package ga4

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/retry"
)

var (
	// ErrMissingCredential is returned when the client is constructed
	// without a property ID or credentials.
	ErrMissingCredential = errors.New("ga4: missing property ID or credentials")

	// ErrInvalidQuery is returned before any request is sent when a
	// requested dimension or metric is not present in the property's
	// metadata.
	ErrInvalidQuery = errors.New("ga4: unknown dimension or metric")
)

// Client fetches reports from the Google Analytics Data API for a single
// property. Results are paginated transparently and optionally served
// from a local file cache.
type Client struct {
	propertyID string
	svc        *analyticsdata.Service
	cache      *Cache
	retryCfg   retry.Config
	pageSize   int64
	maxPages   int
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	metaDims map[string]struct{}
	metaMets map[string]struct{}
}

// New builds a client for the configured property. Extra client options
// are appended after the credential option, so tests can override the
// endpoint and transport.
func New(ctx context.Context, cfg config.GA4Config, fetchCfg config.FetchConfig, cacheDir string, logger *zap.Logger, m *metrics.Metrics, opts ...option.ClientOption) (*Client, error) {
	if cfg.PropertyID == "" {
		return nil, fmt.Errorf("%w: property ID is empty", ErrMissingCredential)
	}

	clientOpts := make([]option.ClientOption, 0, len(opts)+1)
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := analyticsdata.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("ga4: create service: %w", err)
	}

	retryCfg := retry.FromFetchConfig(fetchCfg)
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("ga4 request retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if m != nil {
			m.RecordRetry("ga4")
		}
	}

	var cache *Cache
	if cacheDir != "" {
		cache = NewCache(cacheDir, logger)
	}

	return &Client{
		propertyID: cfg.PropertyID,
		svc:        svc,
		cache:      cache,
		retryCfg:   retryCfg,
		pageSize:   int64(fetchCfg.PageSize),
		maxPages:   fetchCfg.MaxPages,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Metadata returns the property's available dimension and metric API
// names, fetching them on first use.
func (c *Client) Metadata(ctx context.Context) (dims, mets map[string]struct{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metaDims != nil {
		return c.metaDims, c.metaMets, nil
	}

	var resp *analyticsdata.Metadata
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.svc.Properties.GetMetadata("properties/" + c.propertyID + "/metadata").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ga4: fetch metadata: %w", err)
	}

	dims = make(map[string]struct{}, len(resp.Dimensions))
	for _, d := range resp.Dimensions {
		dims[d.ApiName] = struct{}{}
	}
	mets = make(map[string]struct{}, len(resp.Metrics))
	for _, mm := range resp.Metrics {
		mets[mm.ApiName] = struct{}{}
	}
	c.metaDims, c.metaMets = dims, mets
	return dims, mets, nil
}

// validate checks the query's names against property metadata. When the
// metadata itself cannot be fetched, validation is skipped and the
// request proceeds, letting the API be the judge.
func (c *Client) validate(ctx context.Context, q Query) error {
	dims, mets, err := c.Metadata(ctx)
	if err != nil {
		c.logger.Warn("ga4 metadata unavailable, skipping query validation", zap.Error(err))
		return nil
	}

	var unknown []string
	for _, d := range q.Dimensions {
		if _, ok := dims[d]; !ok {
			unknown = append(unknown, "dimension "+d)
		}
	}
	for _, m := range q.Metrics {
		if _, ok := mets[m]; !ok {
			unknown = append(unknown, "metric "+m)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(unknown, ", "))
	}
	return nil
}

// RunReport executes the query against the API, walking offset pages
// until a short page signals the end. The query is validated against
// property metadata first; an unrecognized name fails fast without
// issuing the report request.
func (c *Client) RunReport(ctx context.Context, q Query) (*Report, error) {
	if err := c.validate(ctx, q); err != nil {
		return nil, err
	}

	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: q.StartDate, EndDate: q.EndDate}},
		Limit:      c.pageSize,
	}
	for _, d := range q.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range q.Metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}

	report := &Report{}
	start := time.Now()
	for page := 0; c.maxPages <= 0 || page < c.maxPages; page++ {
		req.Offset = int64(page) * c.pageSize

		var resp *analyticsdata.RunReportResponse
		err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
			var callErr error
			resp, callErr = c.svc.Properties.RunReport("properties/"+c.propertyID, req).Context(ctx).Do()
			return callErr
		})
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordFetch("ga4", "run_report", "error", time.Since(start))
			}
			return nil, fmt.Errorf("ga4: run report page %d: %w", page, err)
		}

		if page == 0 {
			for _, h := range resp.DimensionHeaders {
				report.DimensionHeaders = append(report.DimensionHeaders, h.Name)
			}
			for _, h := range resp.MetricHeaders {
				report.MetricHeaders = append(report.MetricHeaders, h.Name)
			}
		}
		for _, row := range resp.Rows {
			report.Rows = append(report.Rows, convertRow(row))
		}

		if int64(len(resp.Rows)) < c.pageSize {
			break
		}
	}

	if c.metrics != nil {
		c.metrics.RecordFetch("ga4", "run_report", "ok", time.Since(start))
	}
	c.logger.Debug("ga4 report fetched",
		zap.Strings("dimensions", q.Dimensions),
		zap.Strings("metrics", q.Metrics),
		zap.String("start", q.StartDate),
		zap.String("end", q.EndDate),
		zap.Int("rows", len(report.Rows)))
	return report, nil
}

// RunReportCached serves the query from the file cache when a matching
// result exists, fetching and storing it otherwise. Empty results are
// cached too. Force bypasses the lookup and overwrites the entry.
func (c *Client) RunReportCached(ctx context.Context, q Query, force bool) (*Report, error) {
	if c.cache == nil {
		return c.RunReport(ctx, q)
	}

	if !force {
		if cached, ok := c.cache.Get(q); ok {
			if c.metrics != nil {
				c.metrics.RecordCacheHit("ga4")
			}
			return cached, nil
		}
	}

	report, err := c.RunReport(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Put(q, report)
	return report, nil
}

func convertRow(r *analyticsdata.Row) Row {
	row := Row{
		Dimensions: make([]string, 0, len(r.DimensionValues)),
		Metrics:    make([]*float64, 0, len(r.MetricValues)),
	}
	for _, dv := range r.DimensionValues {
		row.Dimensions = append(row.Dimensions, dv.Value)
	}
	for _, mv := range r.MetricValues {
		row.Metrics = append(row.Metrics, parseMetric(mv.Value))
	}
	return row
}

// parseMetric converts the API's string metric cell to a number,
// returning nil for anything unparsable so a bad cell lands as NULL
// instead of a silent zero.
func parseMetric(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
