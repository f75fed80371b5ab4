package warehouse

// Canonical warehouse schema. Column names are the wire contract for
// dashboards and reports; do not rename them without migrating every
// reader.

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS dim_date (
		date TEXT PRIMARY KEY,
		year INTEGER,
		month INTEGER,
		week INTEGER,
		day INTEGER,
		dow INTEGER,
		is_weekend INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sessions (
		date TEXT,
		pageviews INTEGER,
		sessions INTEGER,
		users INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_ga4_pages_daily (
		date TEXT,
		pagePath TEXT,
		pageTitle TEXT,
		screenPageViews INTEGER,
		sessions INTEGER,
		totalUsers INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_ga4_events_daily (
		date TEXT,
		eventName TEXT,
		eventCount INTEGER,
		activeUsers INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_ga4_sessions_by_utm_daily (
		date TEXT,
		source TEXT,
		medium TEXT,
		campaign TEXT,
		sessions INTEGER,
		users INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sessions_by_country (
		date TEXT,
		country_id TEXT,
		users INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_yt_channel_daily (
		date TEXT,
		views INTEGER,
		estimatedMinutesWatched INTEGER,
		averageViewDuration REAL
	);`,
	`CREATE TABLE IF NOT EXISTS fact_yt_video_period (
		videoId TEXT,
		views INTEGER,
		estimatedMinutesWatched INTEGER,
		averageViewDuration REAL,
		startDate TEXT,
		endDate TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS fact_rd_email_campaign (
		date TEXT,
		campaignId TEXT,
		sends INTEGER,
		opens INTEGER,
		clicks INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_rd_lead_stage_daily (
		date TEXT,
		stage TEXT,
		count INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS map_utm_campaign (
		utm_source TEXT,
		utm_medium TEXT,
		utm_campaign TEXT,
		campaignId TEXT,
		campaign_name TEXT,
		utm_source_norm TEXT,
		utm_medium_norm TEXT,
		utm_campaign_norm TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS fact_engagement_daily (
		date TEXT,
		sessions INTEGER,
		pageviews INTEGER,
		views INTEGER,
		estimatedMinutesWatched INTEGER,
		averageViewDuration REAL
	);`,
	`CREATE TABLE IF NOT EXISTS fact_comms_impact_daily (
		date TEXT,
		campaignId TEXT,
		sessions INTEGER,
		users INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS fact_comms_impact_summary (
		campaignId TEXT,
		send_date TEXT,
		ses_d_1 INTEGER,
		ses_d0 INTEGER,
		ses_d0_d2 INTEGER,
		uplift_abs INTEGER,
		uplift_pct REAL,
		sends INTEGER,
		opens INTEGER,
		clicks INTEGER
	);`,
}

// tableColumns is the whitelist used to validate identifiers before they
// are interpolated into SQL. Values are bound as parameters; identifiers
// never come from callers outside this list.
var tableColumns = map[string][]string{
	"dim_date":                       {"date", "year", "month", "week", "day", "dow", "is_weekend"},
	"fact_sessions":                  {"date", "pageviews", "sessions", "users"},
	"fact_ga4_pages_daily":           {"date", "pagePath", "pageTitle", "screenPageViews", "sessions", "totalUsers"},
	"fact_ga4_events_daily":          {"date", "eventName", "eventCount", "activeUsers"},
	"fact_ga4_sessions_by_utm_daily": {"date", "source", "medium", "campaign", "sessions", "users"},
	"fact_sessions_by_country":       {"date", "country_id", "users"},
	"fact_yt_channel_daily":          {"date", "views", "estimatedMinutesWatched", "averageViewDuration"},
	"fact_yt_video_period":           {"videoId", "views", "estimatedMinutesWatched", "averageViewDuration", "startDate", "endDate"},
	"fact_rd_email_campaign":         {"date", "campaignId", "sends", "opens", "clicks"},
	"fact_rd_lead_stage_daily":       {"date", "stage", "count"},
	"map_utm_campaign":               {"utm_source", "utm_medium", "utm_campaign", "campaignId", "campaign_name", "utm_source_norm", "utm_medium_norm", "utm_campaign_norm"},
	"fact_engagement_daily":          {"date", "sessions", "pageviews", "views", "estimatedMinutesWatched", "averageViewDuration"},
	"fact_comms_impact_daily":        {"date", "campaignId", "sessions", "users"},
	"fact_comms_impact_summary":      {"campaignId", "send_date", "ses_d_1", "ses_d0", "ses_d0_d2", "uplift_abs", "uplift_pct", "sends", "opens", "clicks"},
}

// healthTables are the facts reported by the freshness snapshot, with
// the column used for "latest date" (empty when the table has no single
// date column).
var healthTables = []struct {
	name    string
	dateCol string
}{
	{"fact_sessions", "date"},
	{"fact_ga4_pages_daily", "date"},
	{"fact_ga4_events_daily", "date"},
	{"fact_ga4_sessions_by_utm_daily", "date"},
	{"fact_yt_channel_daily", "date"},
	{"fact_yt_video_period", "endDate"},
	{"fact_rd_email_campaign", "date"},
	{"fact_rd_lead_stage_daily", "date"},
	{"fact_engagement_daily", "date"},
	{"fact_comms_impact_daily", "date"},
	{"fact_comms_impact_summary", "send_date"},
}
