package refresh

import (
	"context"
	"time"
)

// MaterializeEngagementDaily rebuilds fact_engagement_daily, the
// per-day union of web traffic and channel watch time keyed on
// dim_date so every calendar day appears even when one source has no
// row.
func (s *Service) MaterializeEngagementDaily(ctx context.Context) (string, error) {
	started := time.Now()
	n, err := s.wh.Materialize(ctx, "fact_engagement_daily", `
		INSERT INTO fact_engagement_daily (date, sessions, pageviews, views, estimatedMinutesWatched, averageViewDuration)
		SELECT
		  d.date,
		  COALESCE(s.sessions, 0),
		  COALESCE(s.pageviews, 0),
		  COALESCE(y.views, 0),
		  COALESCE(y.estimatedMinutesWatched, 0),
		  COALESCE(y.averageViewDuration, 0.0)
		FROM dim_date d
		LEFT JOIN fact_sessions s ON s.date = d.date
		LEFT JOIN fact_yt_channel_daily y ON y.date = d.date`)
	if err != nil {
		s.record("fact_engagement_daily", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_engagement_daily", "ok", n, time.Since(started))
	return statusLine("fact_engagement_daily", "dim_date", "dim_date", n), nil
}

// MaterializeCommsImpactDaily rebuilds the per-day per-campaign
// attribution table by joining UTM session facts to the campaign map
// on case-insensitive, trimmed (source, medium, campaign) equality.
// Unmapped rows are dropped, not zero-filled.
func (s *Service) MaterializeCommsImpactDaily(ctx context.Context) (string, error) {
	started := time.Now()
	n, err := s.wh.Materialize(ctx, "fact_comms_impact_daily", `
		INSERT INTO fact_comms_impact_daily (date, campaignId, sessions, users)
		SELECT
		  g.date,
		  m.campaignId,
		  SUM(COALESCE(g.sessions, 0)),
		  SUM(COALESCE(g.users, 0))
		FROM fact_ga4_sessions_by_utm_daily g
		JOIN map_utm_campaign m
		  ON lower(trim(g.campaign)) = m.utm_campaign_norm
		 AND lower(trim(g.source)) = m.utm_source_norm
		 AND lower(trim(g.medium)) = m.utm_medium_norm
		WHERE m.campaignId IS NOT NULL
		GROUP BY 1, 2`)
	if err != nil {
		s.record("fact_comms_impact_daily", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_comms_impact_daily", "ok", n, time.Since(started))
	return statusLine("fact_comms_impact_daily", "derived", "derived", n), nil
}

// MaterializeCommsImpactSummary rebuilds the per-send uplift table:
// for each campaign send date, sessions on the eve (D-1), the day
// itself (D0) and the D0..D+2 window, plus absolute and percent
// uplift. The percent carries the comparative sentinels: 0 when both
// days are zero, 100 when only the baseline is.
func (s *Service) MaterializeCommsImpactSummary(ctx context.Context) (string, error) {
	started := time.Now()
	n, err := s.wh.Materialize(ctx, "fact_comms_impact_summary", `
		INSERT INTO fact_comms_impact_summary
		  (campaignId, send_date, ses_d_1, ses_d0, ses_d0_d2, uplift_abs, uplift_pct, sends, opens, clicks)
		WITH sends AS (
		  SELECT campaignId,
		         date AS send_date,
		         SUM(COALESCE(sends, 0)) AS sends,
		         SUM(COALESCE(opens, 0)) AS opens,
		         SUM(COALESCE(clicks, 0)) AS clicks
		  FROM fact_rd_email_campaign
		  GROUP BY 1, 2
		), pvt AS (
		  SELECT c.campaignId,
		         c.send_date,
		         COALESCE(SUM(CASE WHEN i.date = date(c.send_date, '-1 day') THEN i.sessions END), 0) AS ses_d_1,
		         COALESCE(SUM(CASE WHEN i.date = c.send_date THEN i.sessions END), 0) AS ses_d0,
		         COALESCE(SUM(CASE WHEN i.date BETWEEN c.send_date AND date(c.send_date, '+2 day') THEN i.sessions END), 0) AS ses_d0_d2
		  FROM sends c
		  LEFT JOIN fact_comms_impact_daily i ON i.campaignId = c.campaignId
		  GROUP BY 1, 2
		)
		SELECT p.campaignId,
		       p.send_date,
		       p.ses_d_1,
		       p.ses_d0,
		       p.ses_d0_d2,
		       p.ses_d0 - p.ses_d_1,
		       CASE WHEN p.ses_d_1 > 0
		            THEN (p.ses_d0 - p.ses_d_1) * 100.0 / p.ses_d_1
		            WHEN p.ses_d0 > 0 THEN 100.0
		            ELSE 0.0 END,
		       s.sends,
		       s.opens,
		       s.clicks
		FROM pvt p
		JOIN sends s ON s.campaignId = p.campaignId AND s.send_date = p.send_date`)
	if err != nil {
		s.record("fact_comms_impact_summary", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_comms_impact_summary", "ok", n, time.Since(started))
	return statusLine("fact_comms_impact_summary", "derived", "derived", n), nil
}
