package models

// Fact table rows. Numeric measures are pointers so that a value that
// failed best-effort parsing stays NULL in the warehouse instead of
// collapsing to zero; aggregation queries coalesce NULL to zero, but raw
// records keep the distinction.

// SessionFact is a per-day traffic aggregate (fact_sessions).
type SessionFact struct {
	Date      string `json:"date"`
	Pageviews *int64 `json:"pageviews"`
	Sessions  *int64 `json:"sessions"`
	Users     *int64 `json:"users"`
}

// PageFact is a per-day per-page aggregate (fact_ga4_pages_daily).
// PagePath is the natural key within a date; the title may drift between
// refreshes and the max-observed value wins at query time.
type PageFact struct {
	Date            string `json:"date"`
	PagePath        string `json:"pagePath"`
	PageTitle       string `json:"pageTitle"`
	ScreenPageViews *int64 `json:"screenPageViews"`
	Sessions        *int64 `json:"sessions"`
	TotalUsers      *int64 `json:"totalUsers"`
}

// EventFact is a per-day per-event aggregate (fact_ga4_events_daily).
type EventFact struct {
	Date        string `json:"date"`
	EventName   string `json:"eventName"`
	EventCount  *int64 `json:"eventCount"`
	ActiveUsers *int64 `json:"activeUsers"`
}

// UTMSessionFact is a per-day per-(source,medium,campaign) aggregate
// (fact_ga4_sessions_by_utm_daily).
type UTMSessionFact struct {
	Date     string `json:"date"`
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Sessions *int64 `json:"sessions"`
	Users    *int64 `json:"users"`
}

// ChannelDailyFact is a per-day YouTube channel aggregate
// (fact_yt_channel_daily).
type ChannelDailyFact struct {
	Date                    string   `json:"date"`
	Views                   *int64   `json:"views"`
	EstimatedMinutesWatched *int64   `json:"estimatedMinutesWatched"`
	AverageViewDuration     *float64 `json:"averageViewDuration"`
}

// VideoPeriodFact is a per-period per-video aggregate
// (fact_yt_video_period). Natural key is (videoId, startDate, endDate);
// a refresh for a given window fully replaces prior rows for that exact
// window.
type VideoPeriodFact struct {
	VideoID                 string   `json:"videoId"`
	Views                   *int64   `json:"views"`
	EstimatedMinutesWatched *int64   `json:"estimatedMinutesWatched"`
	AverageViewDuration     *float64 `json:"averageViewDuration"`
	StartDate               string   `json:"startDate"`
	EndDate                 string   `json:"endDate"`
}

// EmailCampaignFact is an RD Station email campaign aggregate keyed by
// send date (fact_rd_email_campaign).
type EmailCampaignFact struct {
	Date       string `json:"date"`
	CampaignID string `json:"campaignId"`
	Sends      int64  `json:"sends"`
	Opens      int64  `json:"opens"`
	Clicks     int64  `json:"clicks"`
}

// CampaignMapping attributes normalized UTM triples to CRM campaigns
// (map_utm_campaign).
type CampaignMapping struct {
	UTMSource    string `json:"utm_source"`
	UTMMedium    string `json:"utm_medium"`
	UTMCampaign  string `json:"utm_campaign"`
	CampaignID   string `json:"campaignId"`
	CampaignName string `json:"campaign_name"`
}
