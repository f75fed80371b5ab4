package models

// Aggregation outputs. These are the records the rendering layer and the
// Slack composer consume; field names are part of the wire contract.

// KPISummary sums traffic over an inclusive date window. Absent rows
// contribute zero, never null.
type KPISummary struct {
	Users     float64 `json:"users"`
	Sessions  float64 `json:"sessions"`
	Pageviews float64 `json:"pageviews"`
}

// TopPage is one row of the page ranking.
type TopPage struct {
	PagePath  string `json:"page_path"`
	PageTitle string `json:"page_title"`
	Pageviews int64  `json:"pageviews"`
}

// WeeklyBucket is one year-week bucket of the weekly comparison.
type WeeklyBucket struct {
	YearWeek  string `json:"year_week"`
	Pageviews int64  `json:"pageviews"`
}

// VideoFunnel reports the start/progress funnel. CompletionRate is
// progress/start*100 rounded to two decimals, and exactly 0.0 when there
// are no starts.
type VideoFunnel struct {
	Start          int64   `json:"start"`
	Progress       int64   `json:"progress"`
	CompletionRate float64 `json:"completion_rate"`
}

// TopCountry is one row of the country ranking.
type TopCountry struct {
	CountryID string `json:"country_id"`
	Users     int64  `json:"users"`
}

// WeekdayUsers is one row of the users-by-weekday ranking. Weekday uses
// strftime('%w'): 0=Sunday .. 6=Saturday.
type WeekdayUsers struct {
	Weekday string `json:"weekday"`
	Users   int64  `json:"users"`
}

// ParetoPage is one row of the Pareto ranking. CumShare is the running
// share of the grand total in [0,1]; 0 for every row when the total is
// zero.
type ParetoPage struct {
	PagePath  string  `json:"page_path"`
	Pageviews int64   `json:"pageviews"`
	CumShare  float64 `json:"cum_share"`
}

// MetricDelta compares a current window against a previous one.
// DeltaPct is 0.0 when both are zero and 100.0 when only the previous
// window is zero.
type MetricDelta struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	DeltaPct float64 `json:"delta_pct"`
}

// Comparatives bundles the WoW or MTD deltas shown on the dashboard
// header.
type Comparatives struct {
	Sessions MetricDelta `json:"sessions"`
	Minutes  MetricDelta `json:"minutes"`
}

// ChannelDailyPoint is one day of the YouTube channel series.
type ChannelDailyPoint struct {
	Date                    string  `json:"date"`
	Views                   int64   `json:"views"`
	EstimatedMinutesWatched int64   `json:"estimatedMinutesWatched"`
	AverageViewDuration     float64 `json:"averageViewDuration"`
}

// TopVideo is one row of the per-period video ranking.
type TopVideo struct {
	VideoID                 string  `json:"videoId"`
	Views                   int64   `json:"views"`
	EstimatedMinutesWatched int64   `json:"estimatedMinutesWatched"`
	AverageViewDuration     float64 `json:"averageViewDuration"`
}

// VideoRetention approximates per-video retention as minutes watched
// relative to views.
type VideoRetention struct {
	VideoID             string  `json:"videoId"`
	Views               int64   `json:"views"`
	MinutesWatched      int64   `json:"minutesWatched"`
	AvgMinutesPerView   float64 `json:"avg_minutes_per_view"`
	AverageViewDuration float64 `json:"averageViewDuration"`
}

// EngagementPoint is one day of the combined GA4+YouTube engagement
// series (fact_engagement_daily).
type EngagementPoint struct {
	Date                    string  `json:"date"`
	Sessions                int64   `json:"sessions"`
	Pageviews               int64   `json:"pageviews"`
	Views                   int64   `json:"views"`
	EstimatedMinutesWatched int64   `json:"estimatedMinutesWatched"`
	AverageViewDuration     float64 `json:"averageViewDuration"`
}

// EngagementKPI sums the engagement series over a window.
type EngagementKPI struct {
	Sessions       float64 `json:"sessions"`
	Pageviews      float64 `json:"pageviews"`
	Views          float64 `json:"views"`
	MinutesWatched float64 `json:"minutesWatched"`
}

// UTMAggregate is one (source,medium,campaign) acquisition row.
type UTMAggregate struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Sessions int64  `json:"sessions"`
	Users    int64  `json:"users"`
}

// CampaignSessions is one per-day per-campaign attribution row
// (fact_comms_impact_daily).
type CampaignSessions struct {
	Date       string `json:"date"`
	CampaignID string `json:"campaignId"`
	Sessions   int64  `json:"sessions"`
	Users      int64  `json:"users"`
}

// ImpactSummary is one campaign send with day-relative session windows
// and uplift (fact_comms_impact_summary).
type ImpactSummary struct {
	CampaignID string  `json:"campaignId"`
	SendDate   string  `json:"send_date"`
	SesDMinus1 int64   `json:"ses_d_1"`
	SesD0      int64   `json:"ses_d0"`
	SesD0D2    int64   `json:"ses_d0_d2"`
	UpliftAbs  int64   `json:"uplift_abs"`
	UpliftPct  float64 `json:"uplift_pct"`
	Sends      int64   `json:"sends"`
	Opens      int64   `json:"opens"`
	Clicks     int64   `json:"clicks"`
}

// TableHealth reports row count and data freshness for one fact table.
type TableHealth struct {
	Table      string `json:"table"`
	Rows       int64  `json:"rows"`
	LatestDate string `json:"latest_date,omitempty"`
}

// WarehouseHealth is the freshness snapshot for the whole warehouse.
type WarehouseHealth struct {
	Tables []TableHealth `json:"tables"`
}
