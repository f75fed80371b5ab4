package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	youtubeanalytics "google.golang.org/api/youtubeanalytics/v2"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/models"
	"github.com/classplay/novodash/internal/retry"
)

// ErrMissingCredential is returned when the client is constructed
// without credentials.
var ErrMissingCredential = errors.New("youtube: missing credentials")

const channelMetrics = "views,estimatedMinutesWatched,averageViewDuration"

// Client fetches channel and per-video aggregates from the YouTube
// Analytics API for the authenticated channel.
type Client struct {
	svc      *youtubeanalytics.Service
	ids      string
	retryCfg retry.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New builds a client for the authenticated channel. Extra options are
// appended after the credential option, so tests can override the
// endpoint and transport.
func New(ctx context.Context, cfg config.YouTubeConfig, fetchCfg config.FetchConfig, logger *zap.Logger, m *metrics.Metrics, opts ...option.ClientOption) (*Client, error) {
	if cfg.CredentialsFile == "" && len(opts) == 0 {
		return nil, fmt.Errorf("%w: credentials file is empty", ErrMissingCredential)
	}

	clientOpts := make([]option.ClientOption, 0, len(opts)+1)
	switch {
	case cfg.CredentialsFile != "" && cfg.TokenFile != "":
		ts, err := tokenSource(ctx, cfg.CredentialsFile, cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := youtubeanalytics.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}

	ids := "channel==MINE"
	if cfg.ChannelID != "" {
		ids = "channel==" + cfg.ChannelID
	}

	retryCfg := retry.FromFetchConfig(fetchCfg)
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("youtube request retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if m != nil {
			m.RecordRetry("youtube")
		}
	}

	return &Client{
		svc:      svc,
		ids:      ids,
		retryCfg: retryCfg,
		logger:   logger,
		metrics:  m,
	}, nil
}

// tokenSource pairs the OAuth client secret with a stored user token.
// The source refreshes the access token on demand, so a token file from
// the one-time consent flow keeps working indefinitely.
func tokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("youtube: read oauth client secret: %w", err)
	}
	conf, err := google.ConfigFromJSON(secret, youtubeanalytics.YtAnalyticsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("youtube: parse oauth client secret: %w", err)
	}

	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("youtube: read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("youtube: parse oauth token: %w", err)
	}
	return conf.TokenSource(ctx, &tok), nil
}

// ChannelDaily returns per-day channel aggregates for the inclusive
// date range, sorted by day.
func (c *Client) ChannelDaily(ctx context.Context, startDate, endDate string) ([]models.ChannelDailyFact, error) {
	resp, err := c.query(ctx, "channel_daily", func() *youtubeanalytics.ReportsQueryCall {
		return c.svc.Reports.Query().
			Ids(c.ids).
			StartDate(startDate).
			EndDate(endDate).
			Dimensions("day").
			Metrics(channelMetrics).
			Sort("day")
	})
	if err != nil {
		return nil, err
	}

	facts := make([]models.ChannelDailyFact, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row) < 4 {
			continue
		}
		facts = append(facts, models.ChannelDailyFact{
			Date:                    cellString(row[0]),
			Views:                   cellInt(row[1]),
			EstimatedMinutesWatched: cellInt(row[2]),
			AverageViewDuration:     cellFloat(row[3]),
		})
	}
	return facts, nil
}

// TopVideos returns the period's top videos by views, stamped with the
// requested window.
func (c *Client) TopVideos(ctx context.Context, startDate, endDate string, maxResults int64) ([]models.VideoPeriodFact, error) {
	resp, err := c.query(ctx, "top_videos", func() *youtubeanalytics.ReportsQueryCall {
		return c.svc.Reports.Query().
			Ids(c.ids).
			StartDate(startDate).
			EndDate(endDate).
			Dimensions("video").
			Metrics(channelMetrics).
			Sort("-views").
			MaxResults(maxResults)
	})
	if err != nil {
		return nil, err
	}

	facts := make([]models.VideoPeriodFact, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row) < 4 {
			continue
		}
		facts = append(facts, models.VideoPeriodFact{
			VideoID:                 cellString(row[0]),
			Views:                   cellInt(row[1]),
			EstimatedMinutesWatched: cellInt(row[2]),
			AverageViewDuration:     cellFloat(row[3]),
			StartDate:               startDate,
			EndDate:                 endDate,
		})
	}
	return facts, nil
}

func (c *Client) query(ctx context.Context, operation string, build func() *youtubeanalytics.ReportsQueryCall) (*youtubeanalytics.QueryResponse, error) {
	start := time.Now()
	var resp *youtubeanalytics.QueryResponse
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = build().Context(ctx).Do()
		return callErr
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFetch("youtube", operation, "error", time.Since(start))
		}
		return nil, fmt.Errorf("youtube: %s query: %w", operation, err)
	}
	if c.metrics != nil {
		c.metrics.RecordFetch("youtube", operation, "ok", time.Since(start))
	}
	c.logger.Debug("youtube report fetched",
		zap.String("operation", operation),
		zap.Int("rows", len(resp.Rows)))
	return resp, nil
}

// Report cells arrive as untyped JSON values. Anything not of the
// expected kind lands as NULL rather than a fabricated zero.

func cellString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func cellInt(v interface{}) *int64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

func cellFloat(v interface{}) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
