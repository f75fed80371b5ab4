package report

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"github.com/classplay/novodash/internal/models"
	"github.com/classplay/novodash/internal/warehouse"
)

// KPIs sums users, sessions and pageviews over the inclusive window.
// An empty window is all zeros.
func (s *Service) KPIs(ctx context.Context, startDate, endDate string) (models.KPISummary, error) {
	var out models.KPISummary
	err := s.cached(ctx, "kpis", []string{startDate, endDate}, &out, func() (interface{}, error) {
		var k models.KPISummary
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(users), 0),
			       COALESCE(SUM(sessions), 0),
			       COALESCE(SUM(pageviews), 0)
			FROM fact_sessions
			WHERE date BETWEEN ? AND ?`,
			startDate, endDate).Scan(&k.Users, &k.Sessions, &k.Pageviews)
		if err != nil && !warehouse.IsMissingTable(err) {
			return nil, fmt.Errorf("kpis: %w", err)
		}
		return k, nil
	})
	return out, err
}

// TopPages ranks pages by summed views. The page title varies across
// days, so the max observed value represents the page.
func (s *Service) TopPages(ctx context.Context, startDate, endDate string, limit int) ([]models.TopPage, error) {
	out := []models.TopPage{}
	err := s.cached(ctx, "top_pages", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		pages := []models.TopPage{}
		err := s.queryRows(ctx, `
			SELECT pagePath,
			       COALESCE(MAX(pageTitle), pagePath),
			       COALESCE(SUM(screenPageViews), 0) AS pageviews
			FROM fact_ga4_pages_daily
			WHERE date BETWEEN ? AND ?
			GROUP BY pagePath
			ORDER BY pageviews DESC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var p models.TopPage
				if err := rows.Scan(&p.PagePath, &p.PageTitle, &p.Pageviews); err != nil {
					return err
				}
				pages = append(pages, p)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("top pages: %w", err)
		}
		return pages, nil
	})
	return out, err
}

// PagesWeeklyComparison buckets pageviews by year-week using
// strftime('%Y-%W') (weeks start on Monday, week 00 covers the days
// before the year's first Monday), keeps the most recent `weeks`
// buckets and returns them oldest first.
func (s *Service) PagesWeeklyComparison(ctx context.Context, weeks int) ([]models.WeeklyBucket, error) {
	out := []models.WeeklyBucket{}
	err := s.cached(ctx, "pages_weekly", []string{strconv.Itoa(weeks)}, &out, func() (interface{}, error) {
		buckets := []models.WeeklyBucket{}
		err := s.queryRows(ctx, `
			WITH weekly AS (
			  SELECT strftime('%Y-%W', date) AS year_week,
			         COALESCE(SUM(pageviews), 0) AS pageviews
			  FROM fact_sessions
			  GROUP BY 1
			  ORDER BY 1 DESC
			  LIMIT ?
			)
			SELECT year_week, pageviews FROM weekly ORDER BY year_week ASC`,
			[]interface{}{weeks},
			func(rows *sql.Rows) error {
				var b models.WeeklyBucket
				if err := rows.Scan(&b.YearWeek, &b.Pageviews); err != nil {
					return err
				}
				buckets = append(buckets, b)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("weekly comparison: %w", err)
		}
		return buckets, nil
	})
	return out, err
}

// VideoFunnel reports video_start vs video_progress event volumes.
// CompletionRate is exactly 0.0 when there are no starts.
func (s *Service) VideoFunnel(ctx context.Context, startDate, endDate string) (models.VideoFunnel, error) {
	var out models.VideoFunnel
	err := s.cached(ctx, "video_funnel", []string{startDate, endDate}, &out, func() (interface{}, error) {
		totals := map[string]int64{}
		err := s.queryRows(ctx, `
			SELECT eventName, COALESCE(SUM(eventCount), 0)
			FROM fact_ga4_events_daily
			WHERE date BETWEEN ? AND ?
			  AND eventName IN ('video_start', 'video_progress')
			GROUP BY 1`,
			[]interface{}{startDate, endDate},
			func(rows *sql.Rows) error {
				var name string
				var total int64
				if err := rows.Scan(&name, &total); err != nil {
					return err
				}
				totals[name] = total
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("video funnel: %w", err)
		}

		f := models.VideoFunnel{
			Start:    totals["video_start"],
			Progress: totals["video_progress"],
		}
		if f.Start > 0 {
			f.CompletionRate = math.Round(float64(f.Progress)/float64(f.Start)*100*100) / 100
		}
		return f, nil
	})
	return out, err
}

// TopCountries ranks countries by summed users.
func (s *Service) TopCountries(ctx context.Context, startDate, endDate string, limit int) ([]models.TopCountry, error) {
	out := []models.TopCountry{}
	err := s.cached(ctx, "top_countries", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		countries := []models.TopCountry{}
		err := s.queryRows(ctx, `
			SELECT country_id, COALESCE(SUM(users), 0) AS users
			FROM fact_sessions_by_country
			WHERE date BETWEEN ? AND ?
			GROUP BY 1
			ORDER BY users DESC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var c models.TopCountry
				if err := rows.Scan(&c.CountryID, &c.Users); err != nil {
					return err
				}
				countries = append(countries, c)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("top countries: %w", err)
		}
		return countries, nil
	})
	return out, err
}

// TopWeekdays ranks days of week by summed users. Weekday follows
// strftime('%w'): 0 is Sunday.
func (s *Service) TopWeekdays(ctx context.Context, startDate, endDate string) ([]models.WeekdayUsers, error) {
	out := []models.WeekdayUsers{}
	err := s.cached(ctx, "top_weekdays", []string{startDate, endDate}, &out, func() (interface{}, error) {
		days := []models.WeekdayUsers{}
		err := s.queryRows(ctx, `
			SELECT strftime('%w', date) AS weekday,
			       COALESCE(SUM(users), 0) AS users
			FROM fact_sessions
			WHERE date BETWEEN ? AND ?
			GROUP BY 1
			ORDER BY users DESC`,
			[]interface{}{startDate, endDate},
			func(rows *sql.Rows) error {
				var d models.WeekdayUsers
				if err := rows.Scan(&d.Weekday, &d.Users); err != nil {
					return err
				}
				days = append(days, d)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("top weekdays: %w", err)
		}
		return days, nil
	})
	return out, err
}

// PagesPareto ranks pages descending and carries the running share of
// the grand total. Shares are 0 for every row when the total is zero.
func (s *Service) PagesPareto(ctx context.Context, startDate, endDate string, limit int) ([]models.ParetoPage, error) {
	out := []models.ParetoPage{}
	err := s.cached(ctx, "pages_pareto", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		pages := []models.ParetoPage{}
		err := s.queryRows(ctx, `
			WITH ranked AS (
			  SELECT pagePath,
			         COALESCE(SUM(screenPageViews), 0) AS pageviews
			  FROM fact_ga4_pages_daily
			  WHERE date BETWEEN ? AND ?
			  GROUP BY pagePath
			)
			SELECT pagePath,
			       pageviews,
			       SUM(pageviews) OVER (ORDER BY pageviews DESC, pagePath ASC
			                            ROWS UNBOUNDED PRECEDING) AS cum,
			       SUM(pageviews) OVER () AS total
			FROM ranked
			ORDER BY pageviews DESC, pagePath ASC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var p models.ParetoPage
				var cum, total int64
				if err := rows.Scan(&p.PagePath, &p.Pageviews, &cum, &total); err != nil {
					return err
				}
				if total > 0 {
					p.CumShare = float64(cum) / float64(total)
				}
				pages = append(pages, p)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("pages pareto: %w", err)
		}
		return pages, nil
	})
	return out, err
}

// ChannelDaily returns the YouTube channel series for the window.
func (s *Service) ChannelDaily(ctx context.Context, startDate, endDate string) ([]models.ChannelDailyPoint, error) {
	out := []models.ChannelDailyPoint{}
	err := s.cached(ctx, "yt_channel_daily", []string{startDate, endDate}, &out, func() (interface{}, error) {
		points := []models.ChannelDailyPoint{}
		err := s.queryRows(ctx, `
			SELECT date,
			       COALESCE(views, 0),
			       COALESCE(estimatedMinutesWatched, 0),
			       COALESCE(averageViewDuration, 0.0)
			FROM fact_yt_channel_daily
			WHERE date BETWEEN ? AND ?
			ORDER BY date ASC`,
			[]interface{}{startDate, endDate},
			func(rows *sql.Rows) error {
				var p models.ChannelDailyPoint
				if err := rows.Scan(&p.Date, &p.Views, &p.EstimatedMinutesWatched, &p.AverageViewDuration); err != nil {
					return err
				}
				points = append(points, p)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("channel daily: %w", err)
		}
		return points, nil
	})
	return out, err
}

// TopVideos returns the ranked videos stored for the exact period.
func (s *Service) TopVideos(ctx context.Context, startDate, endDate string, limit int) ([]models.TopVideo, error) {
	out := []models.TopVideo{}
	err := s.cached(ctx, "yt_top_videos", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		videos := []models.TopVideo{}
		err := s.queryRows(ctx, `
			SELECT videoId,
			       COALESCE(views, 0),
			       COALESCE(estimatedMinutesWatched, 0),
			       COALESCE(averageViewDuration, 0.0)
			FROM fact_yt_video_period
			WHERE startDate = ? AND endDate = ?
			ORDER BY views DESC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var v models.TopVideo
				if err := rows.Scan(&v.VideoID, &v.Views, &v.EstimatedMinutesWatched, &v.AverageViewDuration); err != nil {
					return err
				}
				videos = append(videos, v)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("top videos: %w", err)
		}
		return videos, nil
	})
	return out, err
}

// VideoRetention approximates retention as minutes watched per view
// for each video in the stored period, ranked by that ratio.
func (s *Service) VideoRetention(ctx context.Context, startDate, endDate string, limit int) ([]models.VideoRetention, error) {
	out := []models.VideoRetention{}
	err := s.cached(ctx, "yt_retention", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		videos := []models.VideoRetention{}
		err := s.queryRows(ctx, `
			SELECT videoId,
			       COALESCE(views, 0) AS views,
			       COALESCE(estimatedMinutesWatched, 0) AS minutes,
			       CASE WHEN COALESCE(views, 0) > 0
			            THEN COALESCE(estimatedMinutesWatched, 0) * 1.0 / views
			            ELSE 0.0 END AS avg_minutes,
			       COALESCE(averageViewDuration, 0.0)
			FROM fact_yt_video_period
			WHERE startDate = ? AND endDate = ?
			ORDER BY avg_minutes DESC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var v models.VideoRetention
				if err := rows.Scan(&v.VideoID, &v.Views, &v.MinutesWatched, &v.AvgMinutesPerView, &v.AverageViewDuration); err != nil {
					return err
				}
				videos = append(videos, v)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("video retention: %w", err)
		}
		return videos, nil
	})
	return out, err
}

// EngagementSeries returns the combined GA4+YouTube daily series.
func (s *Service) EngagementSeries(ctx context.Context, startDate, endDate string) ([]models.EngagementPoint, error) {
	out := []models.EngagementPoint{}
	err := s.cached(ctx, "engagement_series", []string{startDate, endDate}, &out, func() (interface{}, error) {
		points := []models.EngagementPoint{}
		err := s.queryRows(ctx, `
			SELECT date, sessions, pageviews, views, estimatedMinutesWatched, averageViewDuration
			FROM fact_engagement_daily
			WHERE date BETWEEN ? AND ?
			ORDER BY date ASC`,
			[]interface{}{startDate, endDate},
			func(rows *sql.Rows) error {
				var p models.EngagementPoint
				if err := rows.Scan(&p.Date, &p.Sessions, &p.Pageviews, &p.Views, &p.EstimatedMinutesWatched, &p.AverageViewDuration); err != nil {
					return err
				}
				points = append(points, p)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("engagement series: %w", err)
		}
		return points, nil
	})
	return out, err
}

// EngagementKPIs sums the engagement series over the window.
func (s *Service) EngagementKPIs(ctx context.Context, startDate, endDate string) (models.EngagementKPI, error) {
	var out models.EngagementKPI
	err := s.cached(ctx, "engagement_kpis", []string{startDate, endDate}, &out, func() (interface{}, error) {
		var k models.EngagementKPI
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(sessions), 0),
			       COALESCE(SUM(pageviews), 0),
			       COALESCE(SUM(views), 0),
			       COALESCE(SUM(estimatedMinutesWatched), 0)
			FROM fact_engagement_daily
			WHERE date BETWEEN ? AND ?`,
			startDate, endDate).Scan(&k.Sessions, &k.Pageviews, &k.Views, &k.MinutesWatched)
		if err != nil && !warehouse.IsMissingTable(err) {
			return nil, fmt.Errorf("engagement kpis: %w", err)
		}
		return k, nil
	})
	return out, err
}

// UTMAggregates ranks (source, medium, campaign) triples by sessions.
func (s *Service) UTMAggregates(ctx context.Context, startDate, endDate string, limit int) ([]models.UTMAggregate, error) {
	out := []models.UTMAggregate{}
	err := s.cached(ctx, "utm_aggregates", []string{startDate, endDate, strconv.Itoa(limit)}, &out, func() (interface{}, error) {
		aggs := []models.UTMAggregate{}
		err := s.queryRows(ctx, `
			SELECT source, medium, campaign,
			       COALESCE(SUM(sessions), 0) AS sessions,
			       COALESCE(SUM(users), 0) AS users
			FROM fact_ga4_sessions_by_utm_daily
			WHERE date BETWEEN ? AND ?
			GROUP BY 1, 2, 3
			ORDER BY sessions DESC
			LIMIT ?`,
			[]interface{}{startDate, endDate, limit},
			func(rows *sql.Rows) error {
				var a models.UTMAggregate
				if err := rows.Scan(&a.Source, &a.Medium, &a.Campaign, &a.Sessions, &a.Users); err != nil {
					return err
				}
				aggs = append(aggs, a)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("utm aggregates: %w", err)
		}
		return aggs, nil
	})
	return out, err
}

// CampaignSessions returns the per-day per-campaign attribution rows.
func (s *Service) CampaignSessions(ctx context.Context, startDate, endDate string) ([]models.CampaignSessions, error) {
	out := []models.CampaignSessions{}
	err := s.cached(ctx, "campaign_sessions", []string{startDate, endDate}, &out, func() (interface{}, error) {
		rows := []models.CampaignSessions{}
		err := s.queryRows(ctx, `
			SELECT date, campaignId, COALESCE(sessions, 0), COALESCE(users, 0)
			FROM fact_comms_impact_daily
			WHERE date BETWEEN ? AND ?
			ORDER BY date ASC, campaignId ASC`,
			[]interface{}{startDate, endDate},
			func(r *sql.Rows) error {
				var c models.CampaignSessions
				if err := r.Scan(&c.Date, &c.CampaignID, &c.Sessions, &c.Users); err != nil {
					return err
				}
				rows = append(rows, c)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("campaign sessions: %w", err)
		}
		return rows, nil
	})
	return out, err
}

// ImpactSummaries returns the per-send uplift summary rows, newest
// sends first.
func (s *Service) ImpactSummaries(ctx context.Context) ([]models.ImpactSummary, error) {
	out := []models.ImpactSummary{}
	err := s.cached(ctx, "impact_summaries", nil, &out, func() (interface{}, error) {
		rows := []models.ImpactSummary{}
		err := s.queryRows(ctx, `
			SELECT campaignId, send_date,
			       COALESCE(ses_d_1, 0), COALESCE(ses_d0, 0), COALESCE(ses_d0_d2, 0),
			       COALESCE(uplift_abs, 0), COALESCE(uplift_pct, 0.0),
			       COALESCE(sends, 0), COALESCE(opens, 0), COALESCE(clicks, 0)
			FROM fact_comms_impact_summary
			ORDER BY send_date DESC, campaignId ASC`,
			nil,
			func(r *sql.Rows) error {
				var i models.ImpactSummary
				if err := r.Scan(&i.CampaignID, &i.SendDate, &i.SesDMinus1, &i.SesD0, &i.SesD0D2,
					&i.UpliftAbs, &i.UpliftPct, &i.Sends, &i.Opens, &i.Clicks); err != nil {
					return err
				}
				rows = append(rows, i)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("impact summaries: %w", err)
		}
		return rows, nil
	})
	return out, err
}

// Health reports the warehouse freshness snapshot. Never cached.
func (s *Service) Health(ctx context.Context) (*models.WarehouseHealth, error) {
	return s.wh.Health(ctx)
}
