package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/classplay/novodash/internal/ga4"
	"github.com/classplay/novodash/internal/normalize"
)

// ErrSourceNotConfigured is returned when an operation's client was
// not wired because its credentials are absent.
var ErrSourceNotConfigured = errors.New("refresh: source not configured")

// RefreshSessions pulls the per-day traffic aggregate into
// fact_sessions.
func (s *Service) RefreshSessions(ctx context.Context, startDate, endDate string, force bool) (string, error) {
	return s.refreshGA4(ctx, ga4Spec{
		table:   "fact_sessions",
		query:   ga4.Query{Dimensions: []string{"date"}, Metrics: []string{"totalUsers", "sessions", "screenPageViews"}},
		columns: []string{"date", "pageviews", "sessions", "users"},
		build: func(rep *ga4.Report, row ga4.Row) []any {
			return []any{
				normalize.Date(rep.Dim(row, "date")),
				normalize.IntFromFloat(rep.Metric(row, "screenPageViews")),
				normalize.IntFromFloat(rep.Metric(row, "sessions")),
				normalize.IntFromFloat(rep.Metric(row, "totalUsers")),
			}
		},
	}, startDate, endDate, force)
}

// RefreshPages pulls per-day per-page metrics into
// fact_ga4_pages_daily.
func (s *Service) RefreshPages(ctx context.Context, startDate, endDate string, force bool) (string, error) {
	return s.refreshGA4(ctx, ga4Spec{
		table:   "fact_ga4_pages_daily",
		query:   ga4.Query{Dimensions: []string{"date", "pagePath", "pageTitle"}, Metrics: []string{"screenPageViews", "sessions", "totalUsers"}},
		columns: []string{"date", "pagePath", "pageTitle", "screenPageViews", "sessions", "totalUsers"},
		build: func(rep *ga4.Report, row ga4.Row) []any {
			return []any{
				normalize.Date(rep.Dim(row, "date")),
				rep.Dim(row, "pagePath"),
				rep.Dim(row, "pageTitle"),
				normalize.IntFromFloat(rep.Metric(row, "screenPageViews")),
				normalize.IntFromFloat(rep.Metric(row, "sessions")),
				normalize.IntFromFloat(rep.Metric(row, "totalUsers")),
			}
		},
	}, startDate, endDate, force)
}

// RefreshEvents pulls per-day per-event counts into
// fact_ga4_events_daily.
func (s *Service) RefreshEvents(ctx context.Context, startDate, endDate string, force bool) (string, error) {
	return s.refreshGA4(ctx, ga4Spec{
		table:   "fact_ga4_events_daily",
		query:   ga4.Query{Dimensions: []string{"date", "eventName"}, Metrics: []string{"eventCount", "activeUsers"}},
		columns: []string{"date", "eventName", "eventCount", "activeUsers"},
		build: func(rep *ga4.Report, row ga4.Row) []any {
			return []any{
				normalize.Date(rep.Dim(row, "date")),
				rep.Dim(row, "eventName"),
				normalize.IntFromFloat(rep.Metric(row, "eventCount")),
				normalize.IntFromFloat(rep.Metric(row, "activeUsers")),
			}
		},
	}, startDate, endDate, force)
}

// RefreshSessionsByUTM pulls per-day acquisition rows into
// fact_ga4_sessions_by_utm_daily.
func (s *Service) RefreshSessionsByUTM(ctx context.Context, startDate, endDate string, force bool) (string, error) {
	return s.refreshGA4(ctx, ga4Spec{
		table:   "fact_ga4_sessions_by_utm_daily",
		query:   ga4.Query{Dimensions: []string{"date", "sessionSource", "sessionMedium", "sessionCampaignName"}, Metrics: []string{"sessions", "totalUsers"}},
		columns: []string{"date", "source", "medium", "campaign", "sessions", "users"},
		build: func(rep *ga4.Report, row ga4.Row) []any {
			return []any{
				normalize.Date(rep.Dim(row, "date")),
				rep.Dim(row, "sessionSource"),
				rep.Dim(row, "sessionMedium"),
				rep.Dim(row, "sessionCampaignName"),
				normalize.IntFromFloat(rep.Metric(row, "sessions")),
				normalize.IntFromFloat(rep.Metric(row, "totalUsers")),
			}
		},
	}, startDate, endDate, force)
}

// RefreshSessionsByCountry pulls per-day per-country user counts into
// fact_sessions_by_country. The GA4 country ID is the ISO 3166 alpha-2
// code.
func (s *Service) RefreshSessionsByCountry(ctx context.Context, startDate, endDate string, force bool) (string, error) {
	return s.refreshGA4(ctx, ga4Spec{
		table:   "fact_sessions_by_country",
		query:   ga4.Query{Dimensions: []string{"date", "countryId"}, Metrics: []string{"totalUsers"}},
		columns: []string{"date", "country_id", "users"},
		build: func(rep *ga4.Report, row ga4.Row) []any {
			return []any{
				normalize.Date(rep.Dim(row, "date")),
				rep.Dim(row, "countryId"),
				normalize.IntFromFloat(rep.Metric(row, "totalUsers")),
			}
		},
	}, startDate, endDate, force)
}

type ga4Spec struct {
	table   string
	query   ga4.Query
	columns []string
	build   func(rep *ga4.Report, row ga4.Row) []any
}

func (s *Service) refreshGA4(ctx context.Context, spec ga4Spec, startDate, endDate string, force bool) (string, error) {
	if s.ga4 == nil {
		return "", ErrSourceNotConfigured
	}
	started := time.Now()

	q := spec.query
	q.StartDate, q.EndDate = startDate, endDate
	rep, err := s.ga4.RunReportCached(ctx, q, force)
	if err != nil {
		s.record(spec.table, "error", 0, time.Since(started))
		return "", err
	}

	rows := make([][]any, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		rows = append(rows, spec.build(rep, row))
	}

	n, err := s.wh.ReplaceDateWindow(ctx, spec.table, startDate, endDate, spec.columns, rows)
	if err != nil {
		s.record(spec.table, "error", 0, time.Since(started))
		return "", err
	}
	s.record(spec.table, "ok", n, time.Since(started))
	return statusLine(spec.table, startDate, endDate, n), nil
}
