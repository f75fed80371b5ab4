package refresh

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/ga4"
	"github.com/classplay/novodash/internal/models"
	"github.com/classplay/novodash/internal/rdstation"
	"github.com/classplay/novodash/internal/warehouse"
)

func newTestWarehouse(t *testing.T) *warehouse.Warehouse {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return warehouse.New(db, zap.NewNop())
}

func fptr(f float64) *float64 { return &f }
func iptr(i int64) *int64     { return &i }

type fakeGA4 struct {
	report    *ga4.Report
	err       error
	lastQuery ga4.Query
	lastForce bool
	calls     int
}

func (f *fakeGA4) RunReportCached(_ context.Context, q ga4.Query, force bool) (*ga4.Report, error) {
	f.calls++
	f.lastQuery = q
	f.lastForce = force
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeYT struct {
	daily  []models.ChannelDailyFact
	videos []models.VideoPeriodFact
	err    error
}

func (f *fakeYT) ChannelDaily(context.Context, string, string) ([]models.ChannelDailyFact, error) {
	return f.daily, f.err
}

func (f *fakeYT) TopVideos(_ context.Context, startDate, endDate string, _ int64) ([]models.VideoPeriodFact, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.VideoPeriodFact, len(f.videos))
	for i, v := range f.videos {
		v.StartDate, v.EndDate = startDate, endDate
		out[i] = v
	}
	return out, nil
}

type fakeCRM struct {
	campaigns []rdstation.Item
	details   map[string]rdstation.Item
	metrics   map[string]rdstation.EmailMetrics
	contacts  []rdstation.Item
	err       error
}

func (f *fakeCRM) FetchEmailCampaigns(context.Context, string, string) ([]rdstation.Item, error) {
	return f.campaigns, f.err
}

func (f *fakeCRM) FetchEmailCampaignByID(_ context.Context, id string) (rdstation.Item, error) {
	return f.details[id], nil
}

func (f *fakeCRM) FetchEmailMetrics(_ context.Context, id string) (rdstation.EmailMetrics, error) {
	return f.metrics[id], nil
}

func (f *fakeCRM) FetchContacts(context.Context, string, string) ([]rdstation.Item, error) {
	return f.contacts, f.err
}

func sessionsReport() *ga4.Report {
	return &ga4.Report{
		DimensionHeaders: []string{"date"},
		MetricHeaders:    []string{"totalUsers", "sessions", "screenPageViews"},
		Rows: []ga4.Row{
			{Dimensions: []string{"20240101"}, Metrics: []*float64{fptr(40), fptr(50), fptr(100)}},
			{Dimensions: []string{"20240102"}, Metrics: []*float64{fptr(70), fptr(90), fptr(200)}},
		},
	}
}

func TestRefreshSessions(t *testing.T) {
	wh := newTestWarehouse(t)
	api := &fakeGA4{report: sessionsReport()}
	svc := NewService(wh, api, nil, nil, zap.NewNop(), nil)

	status, err := svc.RefreshSessions(context.Background(), "2024-01-01", "2024-01-02", true)
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_sessions for 2024-01-01..2024-01-02 (n=2)", status)
	assert.True(t, api.lastForce)
	assert.Equal(t, "2024-01-01", api.lastQuery.StartDate)

	var pv, ses, usr int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT pageviews, sessions, users FROM fact_sessions WHERE date = '2024-01-02'").Scan(&pv, &ses, &usr))
	assert.Equal(t, int64(200), pv)
	assert.Equal(t, int64(90), ses)
	assert.Equal(t, int64(70), usr)
}

func TestRefreshSessionsByCountry(t *testing.T) {
	wh := newTestWarehouse(t)
	api := &fakeGA4{report: &ga4.Report{
		DimensionHeaders: []string{"date", "countryId"},
		MetricHeaders:    []string{"totalUsers"},
		Rows: []ga4.Row{
			{Dimensions: []string{"20240101", "BR"}, Metrics: []*float64{fptr(80)}},
			{Dimensions: []string{"20240101", "PT"}, Metrics: []*float64{fptr(12)}},
		},
	}}
	svc := NewService(wh, api, nil, nil, zap.NewNop(), nil)

	status, err := svc.RefreshSessionsByCountry(context.Background(), "2024-01-01", "2024-01-01", false)
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_sessions_by_country for 2024-01-01..2024-01-01 (n=2)", status)

	var users int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT users FROM fact_sessions_by_country WHERE country_id = 'BR'").Scan(&users))
	assert.Equal(t, int64(80), users)
}

func TestRefreshSessionsNotConfigured(t *testing.T) {
	svc := NewService(newTestWarehouse(t), nil, nil, nil, zap.NewNop(), nil)
	_, err := svc.RefreshSessions(context.Background(), "2024-01-01", "2024-01-02", false)
	assert.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestRefreshChannelDaily(t *testing.T) {
	wh := newTestWarehouse(t)
	yt := &fakeYT{daily: []models.ChannelDailyFact{
		{Date: "2024-01-01", Views: iptr(500), EstimatedMinutesWatched: iptr(1200), AverageViewDuration: fptr(144.0)},
	}}
	svc := NewService(wh, nil, yt, nil, zap.NewNop(), nil)

	status, err := svc.RefreshChannelDaily(context.Background(), "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_yt_channel_daily for 2024-01-01..2024-01-01 (n=1)", status)

	var views int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT views FROM fact_yt_channel_daily WHERE date = '2024-01-01'").Scan(&views))
	assert.Equal(t, int64(500), views)
}

func TestRefreshTopVideosReplacesOnlyItsPeriod(t *testing.T) {
	wh := newTestWarehouse(t)
	yt := &fakeYT{videos: []models.VideoPeriodFact{
		{VideoID: "vid-a", Views: iptr(10)},
	}}
	svc := NewService(wh, nil, yt, nil, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := svc.RefreshTopVideos(ctx, "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	_, err = svc.RefreshTopVideos(ctx, "2024-01-08", "2024-01-14")
	require.NoError(t, err)

	// Re-running the first window must not disturb the second.
	yt.videos = []models.VideoPeriodFact{{VideoID: "vid-b", Views: iptr(20)}}
	_, err = svc.RefreshTopVideos(ctx, "2024-01-01", "2024-01-07")
	require.NoError(t, err)

	var n int
	require.NoError(t, wh.DB().QueryRow("SELECT COUNT(*) FROM fact_yt_video_period").Scan(&n))
	assert.Equal(t, 2, n)

	var id string
	require.NoError(t, wh.DB().QueryRow(
		"SELECT videoId FROM fact_yt_video_period WHERE startDate = '2024-01-01'").Scan(&id))
	assert.Equal(t, "vid-b", id)
}

func TestRefreshEmailCampaignsSkipsMissingIDs(t *testing.T) {
	wh := newTestWarehouse(t)
	crm := &fakeCRM{
		campaigns: []rdstation.Item{
			{"id": "c1", "send_datetime": "2024-01-03T10:00:00Z"},
			{"name": "no id here"},
		},
		metrics: map[string]rdstation.EmailMetrics{
			"c1": {Sends: 1000, Opens: 300, Clicks: 50},
		},
	}
	svc := NewService(wh, nil, nil, crm, zap.NewNop(), nil)

	status, err := svc.RefreshEmailCampaigns(context.Background(), "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_rd_email_campaign for 2024-01-01..2024-01-07 (n=1)", status)

	var date string
	var sends int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT date, sends FROM fact_rd_email_campaign WHERE campaignId = 'c1'").Scan(&date, &sends))
	assert.Equal(t, "2024-01-03", date)
	assert.Equal(t, int64(1000), sends)
}

func TestRefreshEmailCampaignsDropsOutOfWindowRows(t *testing.T) {
	wh := newTestWarehouse(t)
	crm := &fakeCRM{
		campaigns: []rdstation.Item{
			{"id": "c1", "send_datetime": "2024-01-05T10:00:00Z"},
			{"id": "c2", "send_datetime": "2024-02-10T10:00:00Z"},
		},
		metrics: map[string]rdstation.EmailMetrics{
			"c1": {Sends: 1000},
			"c2": {Sends: 500},
		},
	}
	svc := NewService(wh, nil, nil, crm, zap.NewNop(), nil)
	ctx := context.Background()

	// The CRM hands back c1 even though it was sent before the window.
	// Re-running the same window must not accumulate it outside the
	// replaced range.
	for i := 0; i < 2; i++ {
		status, err := svc.RefreshEmailCampaigns(ctx, "2024-02-01", "2024-02-28")
		require.NoError(t, err)
		assert.Equal(t, "Updated fact_rd_email_campaign for 2024-02-01..2024-02-28 (n=1)", status)
	}

	var n int
	require.NoError(t, wh.DB().QueryRow(
		"SELECT COUNT(*) FROM fact_rd_email_campaign").Scan(&n))
	assert.Equal(t, 1, n)

	var date string
	require.NoError(t, wh.DB().QueryRow(
		"SELECT date FROM fact_rd_email_campaign WHERE campaignId = 'c2'").Scan(&date))
	assert.Equal(t, "2024-02-10", date)
}

func TestRefreshEmailCampaignsResolvesDateFromDetail(t *testing.T) {
	wh := newTestWarehouse(t)
	crm := &fakeCRM{
		campaigns: []rdstation.Item{
			{"id": "c1"}, // slim listing object, no timestamp
		},
		details: map[string]rdstation.Item{
			"c1": {"id": "c1", "send_datetime": "2024-01-04T08:00:00Z"},
		},
		metrics: map[string]rdstation.EmailMetrics{
			"c1": {Sends: 700},
		},
	}
	svc := NewService(wh, nil, nil, crm, zap.NewNop(), nil)

	_, err := svc.RefreshEmailCampaigns(context.Background(), "2024-01-01", "2024-01-07")
	require.NoError(t, err)

	var date string
	require.NoError(t, wh.DB().QueryRow(
		"SELECT date FROM fact_rd_email_campaign WHERE campaignId = 'c1'").Scan(&date))
	assert.Equal(t, "2024-01-04", date)
}

func TestRefreshLeadStages(t *testing.T) {
	wh := newTestWarehouse(t)
	crm := &fakeCRM{contacts: []rdstation.Item{
		{"id": "u1", "lifecycle_stage": "customer"},
		{"id": "u2", "funnel_stage": "lead"},
		{"id": "u3", "status": "lead"},
		{"id": "u4"},
	}}
	svc := NewService(wh, nil, nil, crm, zap.NewNop(), nil)
	ctx := context.Background()

	status, err := svc.RefreshLeadStages(ctx, "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_rd_lead_stage_daily for 2024-01-01..2024-01-07 (n=3)", status)

	var n int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT count FROM fact_rd_lead_stage_daily WHERE date = '2024-01-07' AND stage = 'lead'").Scan(&n))
	assert.Equal(t, int64(2), n)
	require.NoError(t, wh.DB().QueryRow(
		"SELECT count FROM fact_rd_lead_stage_daily WHERE date = '2024-01-07' AND stage = 'unknown'").Scan(&n))
	assert.Equal(t, int64(1), n)

	// A re-run of the same window replaces that snapshot date only.
	crm.contacts = crm.contacts[:1]
	_, err = svc.RefreshLeadStages(ctx, "2024-01-01", "2024-01-07")
	require.NoError(t, err)

	var rows int
	require.NoError(t, wh.DB().QueryRow(
		"SELECT COUNT(*) FROM fact_rd_lead_stage_daily").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestRefreshLeadStagesNotConfigured(t *testing.T) {
	svc := NewService(newTestWarehouse(t), nil, nil, nil, zap.NewNop(), nil)
	_, err := svc.RefreshLeadStages(context.Background(), "2024-01-01", "2024-01-07")
	assert.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	wh := newTestWarehouse(t)
	api := &fakeGA4{err: errors.New("quota exceeded")}
	yt := &fakeYT{daily: []models.ChannelDailyFact{
		{Date: "2024-01-01", Views: iptr(5), EstimatedMinutesWatched: iptr(10), AverageViewDuration: fptr(120)},
	}}
	svc := NewService(wh, api, yt, nil, zap.NewNop(), nil)

	results := svc.RunAll(context.Background(), "2024-01-01", "2024-01-02", false)
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Source] = r
	}

	assert.Contains(t, byName["ga4_sessions"].Error, "quota exceeded")
	assert.Contains(t, byName["rd_email"].Error, "not configured")
	assert.Contains(t, byName["rd_leads"].Error, "not configured")
	assert.Empty(t, byName["yt_channel"].Error)
	assert.Contains(t, byName["yt_channel"].Status, "n=1")
	// Derived tables still rebuild after upstream failures.
	assert.Empty(t, byName["engagement"].Error)
	assert.Empty(t, byName["comms_summary"].Error)
}

func seedSessions(t *testing.T, wh *warehouse.Warehouse, rows [][]any) {
	t.Helper()
	cols := []string{"date", "pageviews", "sessions", "users"}
	_, err := wh.Append(context.Background(), "fact_sessions", cols, rows)
	require.NoError(t, err)
}

func TestMaterializeEngagementDaily(t *testing.T) {
	wh := newTestWarehouse(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := wh.BuildDimDate(ctx, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)

	seedSessions(t, wh, [][]any{{"2024-01-01", int64(100), int64(50), int64(40)}})
	_, err = wh.Append(ctx, "fact_yt_channel_daily",
		[]string{"date", "views", "estimatedMinutesWatched", "averageViewDuration"},
		[][]any{{"2024-01-02", int64(30), int64(90), 180.0}})
	require.NoError(t, err)

	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)
	_, err = svc.MaterializeEngagementDaily(ctx)
	require.NoError(t, err)

	// Jan 1 has web traffic only, Jan 2 watch time only; the missing
	// side coalesces to zero.
	var ses, views int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT sessions, views FROM fact_engagement_daily WHERE date = '2024-01-01'").Scan(&ses, &views))
	assert.Equal(t, int64(50), ses)
	assert.Equal(t, int64(0), views)

	var mins int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT sessions, estimatedMinutesWatched FROM fact_engagement_daily WHERE date = '2024-01-02'").Scan(&ses, &mins))
	assert.Equal(t, int64(0), ses)
	assert.Equal(t, int64(90), mins)
}

func seedCampaignMap(t *testing.T, wh *warehouse.Warehouse) {
	t.Helper()
	cols := []string{"utm_source", "utm_medium", "utm_campaign", "campaignId", "campaign_name",
		"utm_source_norm", "utm_medium_norm", "utm_campaign_norm"}
	_, err := wh.ReplaceAll(context.Background(), "map_utm_campaign", cols, [][]any{
		{"RD Station", "Email", "Launch-Jan", "c1", "January Launch", "rd station", "email", "launch-jan"},
	})
	require.NoError(t, err)
}

func seedUTMSessions(t *testing.T, wh *warehouse.Warehouse, rows [][]any) {
	t.Helper()
	cols := []string{"date", "source", "medium", "campaign", "sessions", "users"}
	_, err := wh.Append(context.Background(), "fact_ga4_sessions_by_utm_daily", cols, rows)
	require.NoError(t, err)
}

func TestMaterializeCommsImpactDaily(t *testing.T) {
	wh := newTestWarehouse(t)
	ctx := context.Background()
	seedCampaignMap(t, wh)
	seedUTMSessions(t, wh, [][]any{
		// Casing and whitespace differ from the mapping row on purpose.
		{"2024-01-10", " rd station ", "EMAIL", "Launch-Jan", int64(30), int64(25)},
		{"2024-01-10", "RD Station", "email", "launch-jan ", int64(20), int64(15)},
		{"2024-01-10", "google", "organic", "none", int64(99), int64(80)},
	})

	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)
	status, err := svc.MaterializeCommsImpactDaily(ctx)
	require.NoError(t, err)
	assert.Contains(t, status, "n=1")

	var ses, usr int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT sessions, users FROM fact_comms_impact_daily WHERE campaignId = 'c1' AND date = '2024-01-10'").Scan(&ses, &usr))
	assert.Equal(t, int64(50), ses)
	assert.Equal(t, int64(40), usr)
}

func TestMaterializeCommsImpactSummary(t *testing.T) {
	wh := newTestWarehouse(t)
	ctx := context.Background()

	_, err := wh.Append(ctx, "fact_rd_email_campaign", emailCampaignCols, [][]any{
		{"2024-01-10", "c1", int64(1000), int64(300), int64(50)},
		{"2024-01-10", "c2", int64(500), int64(100), int64(20)},
		{"2024-01-10", "c3", int64(200), int64(40), int64(5)},
	})
	require.NoError(t, err)

	_, err = wh.Append(ctx, "fact_comms_impact_daily",
		[]string{"date", "campaignId", "sessions", "users"},
		[][]any{
			{"2024-01-09", "c1", int64(40), int64(30)}, // D-1
			{"2024-01-10", "c1", int64(100), int64(80)},
			{"2024-01-11", "c1", int64(60), int64(50)},
			{"2024-01-12", "c1", int64(20), int64(15)},
			{"2024-01-13", "c1", int64(999), int64(1)}, // past D+2
			{"2024-01-10", "c2", int64(10), int64(8)},  // no baseline
		})
	require.NoError(t, err)

	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)
	_, err = svc.MaterializeCommsImpactSummary(ctx)
	require.NoError(t, err)

	var d1, d0, d02 int64
	var abs, pct float64
	row := wh.DB().QueryRow(
		"SELECT ses_d_1, ses_d0, ses_d0_d2, uplift_abs, uplift_pct FROM fact_comms_impact_summary WHERE campaignId = 'c1'")
	require.NoError(t, row.Scan(&d1, &d0, &d02, &abs, &pct))
	assert.Equal(t, int64(40), d1)
	assert.Equal(t, int64(100), d0)
	assert.Equal(t, int64(180), d02)
	assert.InEpsilon(t, 60.0, abs, 1e-9)
	assert.InEpsilon(t, 150.0, pct, 1e-9)

	// Zero baseline with activity on the send day pins the percent.
	row = wh.DB().QueryRow(
		"SELECT uplift_pct FROM fact_comms_impact_summary WHERE campaignId = 'c2'")
	require.NoError(t, row.Scan(&pct))
	assert.InEpsilon(t, 100.0, pct, 1e-9)

	// No attributed traffic at all: both sentinels collapse to zero.
	row = wh.DB().QueryRow(
		"SELECT uplift_pct FROM fact_comms_impact_summary WHERE campaignId = 'c3'")
	require.NoError(t, row.Scan(&pct))
	assert.Zero(t, pct)
}

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportCampaignMapCSV(t *testing.T) {
	wh := newTestWarehouse(t)
	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)

	path := writeTempCSV(t, "map.csv",
		"utm_source,utm_medium,utm_campaign,campaignId,campaign_name\n"+
			" RD Station ,EMAIL,Launch-Jan,c1,January Launch\n")

	status, err := svc.ImportCampaignMapCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, status, "n=1")

	var source, norm string
	require.NoError(t, wh.DB().QueryRow(
		"SELECT utm_source, utm_source_norm FROM map_utm_campaign WHERE campaignId = 'c1'").Scan(&source, &norm))
	assert.Equal(t, " RD Station ", source)
	assert.Equal(t, "rd station", norm)
}

func TestImportPagesCSVVendorHeaders(t *testing.T) {
	wh := newTestWarehouse(t)
	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)

	path := writeTempCSV(t, "pages.csv",
		"Data,Caminho da página e classe da tela,Título da página,Visualizações,Usuários ativos\n"+
			"20240105,/home,Home,120,80\n"+
			"20240106,/pricing,Pricing,60,40\n"+
			",,Total geral,180,120\n")

	status, err := svc.ImportPagesCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Updated fact_ga4_pages_daily for 2024-01-05..2024-01-06 (n=2)", status)

	var pv int64
	require.NoError(t, wh.DB().QueryRow(
		"SELECT screenPageViews FROM fact_ga4_pages_daily WHERE pagePath = '/home'").Scan(&pv))
	assert.Equal(t, int64(120), pv)

	var n int
	require.NoError(t, wh.DB().QueryRow(
		"SELECT COUNT(*) FROM fact_ga4_pages_daily").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestImportPagesCSVUndatedRowsDoNotDuplicate(t *testing.T) {
	wh := newTestWarehouse(t)
	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)
	ctx := context.Background()

	// The second row's date cell is garbage; the window delete could
	// never claim a NULL date back, so the row must not survive to
	// the insert.
	path := writeTempCSV(t, "pages.csv",
		"Data,Caminho da página e classe da tela,Título da página,Visualizações,Usuários ativos\n"+
			"20240105,/home,Home,120,80\n"+
			"n/a,/stale,Stale,5,3\n")

	for i := 0; i < 2; i++ {
		status, err := svc.ImportPagesCSV(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "Updated fact_ga4_pages_daily for 2024-01-05..2024-01-05 (n=1)", status)
	}

	var n int
	require.NoError(t, wh.DB().QueryRow(
		"SELECT COUNT(*) FROM fact_ga4_pages_daily").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestImportEmailCampaignsCSVAppends(t *testing.T) {
	wh := newTestWarehouse(t)
	svc := NewService(wh, nil, nil, nil, zap.NewNop(), nil)
	ctx := context.Background()

	path := writeTempCSV(t, "emails.csv",
		"date,campaignId,sends,opens,clicks\n"+
			"2024-01-10,c1,1000,300,50\n")

	_, err := svc.ImportEmailCampaignsCSV(ctx, path)
	require.NoError(t, err)
	_, err = svc.ImportEmailCampaignsCSV(ctx, path)
	require.NoError(t, err)

	var n int
	require.NoError(t, wh.DB().QueryRow(
		"SELECT COUNT(*) FROM fact_rd_email_campaign").Scan(&n))
	assert.Equal(t, 2, n)
}
