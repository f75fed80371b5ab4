// Package refresh orchestrates the write path: fetch from a source,
// normalize, and upsert into the warehouse under a windowed replace.
// Each operation returns a human-readable status string for logs and
// the dashboard.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/ga4"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/models"
	"github.com/classplay/novodash/internal/rdstation"
	"github.com/classplay/novodash/internal/warehouse"
)

// GA4Reporter is the slice of the GA4 client the refreshers need.
type GA4Reporter interface {
	RunReportCached(ctx context.Context, q ga4.Query, force bool) (*ga4.Report, error)
}

// VideoReporter is the slice of the YouTube client the refreshers need.
type VideoReporter interface {
	ChannelDaily(ctx context.Context, startDate, endDate string) ([]models.ChannelDailyFact, error)
	TopVideos(ctx context.Context, startDate, endDate string, maxResults int64) ([]models.VideoPeriodFact, error)
}

// CRMFetcher is the slice of the RD Station client the refreshers need.
type CRMFetcher interface {
	FetchEmailCampaigns(ctx context.Context, startDate, endDate string) ([]rdstation.Item, error)
	FetchEmailCampaignByID(ctx context.Context, campaignID string) (rdstation.Item, error)
	FetchEmailMetrics(ctx context.Context, campaignID string) (rdstation.EmailMetrics, error)
	FetchContacts(ctx context.Context, updatedStart, updatedEnd string) ([]rdstation.Item, error)
}

// Service runs the refresh operations. Any client may be nil; the
// operations needing it report a configuration error instead of
// panicking, so a partially configured deployment can still refresh
// the sources it has credentials for.
type Service struct {
	wh      *warehouse.Warehouse
	ga4     GA4Reporter
	yt      VideoReporter
	crm     CRMFetcher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(wh *warehouse.Warehouse, ga4c GA4Reporter, yt VideoReporter, crm CRMFetcher, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{wh: wh, ga4: ga4c, yt: yt, crm: crm, logger: logger, metrics: m}
}

func statusLine(table, start, end string, n int) string {
	return fmt.Sprintf("Updated %s for %s..%s (n=%d)", table, start, end, n)
}

func (s *Service) record(table, status string, rows int, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordRefresh(table, status, rows, elapsed)
	}
}

// Result is the outcome of one step of a multi-source run.
type Result struct {
	Source string `json:"source"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunAll refreshes every configured source for the window, then
// rebuilds the derived tables. Failures are isolated per step: one
// source erroring never stops the others, and the derived
// materializations still run over whatever data landed.
func (s *Service) RunAll(ctx context.Context, startDate, endDate string, force bool) []Result {
	runID := uuid.New().String()
	log := s.logger.With(zap.String("run_id", runID))
	log.Info("refresh run started",
		zap.String("start", startDate),
		zap.String("end", endDate),
		zap.Bool("force", force))

	steps := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{"dim_date", func(ctx context.Context) (string, error) { return s.RefreshDimDate(ctx) }},
		{"ga4_sessions", func(ctx context.Context) (string, error) { return s.RefreshSessions(ctx, startDate, endDate, force) }},
		{"ga4_pages", func(ctx context.Context) (string, error) { return s.RefreshPages(ctx, startDate, endDate, force) }},
		{"ga4_events", func(ctx context.Context) (string, error) { return s.RefreshEvents(ctx, startDate, endDate, force) }},
		{"ga4_utm", func(ctx context.Context) (string, error) {
			return s.RefreshSessionsByUTM(ctx, startDate, endDate, force)
		}},
		{"ga4_countries", func(ctx context.Context) (string, error) {
			return s.RefreshSessionsByCountry(ctx, startDate, endDate, force)
		}},
		{"yt_channel", func(ctx context.Context) (string, error) { return s.RefreshChannelDaily(ctx, startDate, endDate) }},
		{"yt_videos", func(ctx context.Context) (string, error) { return s.RefreshTopVideos(ctx, startDate, endDate) }},
		{"rd_email", func(ctx context.Context) (string, error) { return s.RefreshEmailCampaigns(ctx, startDate, endDate) }},
		{"rd_leads", func(ctx context.Context) (string, error) { return s.RefreshLeadStages(ctx, startDate, endDate) }},
		{"engagement", func(ctx context.Context) (string, error) { return s.MaterializeEngagementDaily(ctx) }},
		{"comms_daily", func(ctx context.Context) (string, error) { return s.MaterializeCommsImpactDaily(ctx) }},
		{"comms_summary", func(ctx context.Context) (string, error) { return s.MaterializeCommsImpactSummary(ctx) }},
	}

	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		status, err := step.fn(ctx)
		if err != nil {
			log.Error("refresh step failed",
				zap.String("source", step.name),
				zap.Error(err))
			results = append(results, Result{Source: step.name, Error: err.Error()})
			continue
		}
		log.Info("refresh step finished",
			zap.String("source", step.name),
			zap.String("status", status))
		results = append(results, Result{Source: step.name, Status: status})
	}

	log.Info("refresh run finished", zap.Int("steps", len(results)))
	return results
}

// RefreshDimDate rebuilds the calendar dimension over a fixed horizon
// around today.
func (s *Service) RefreshDimDate(ctx context.Context) (string, error) {
	started := time.Now()
	end := time.Now().AddDate(1, 0, 0)
	start := time.Now().AddDate(-3, 0, 0)
	n, err := s.wh.BuildDimDate(ctx, start, end)
	if err != nil {
		s.record("dim_date", "error", 0, time.Since(started))
		return "", err
	}
	s.record("dim_date", "ok", n, time.Since(started))
	return statusLine("dim_date", start.Format("2006-01-02"), end.Format("2006-01-02"), n), nil
}
