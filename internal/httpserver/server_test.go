package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/database"
	"github.com/classplay/novodash/internal/warehouse"
)

func newTestServer(t *testing.T) (http.Handler, *warehouse.Warehouse) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLiteDB(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Redis:   config.RedisConfig{TTL: time.Minute},
		Metrics: config.MetricsConfig{Enabled: false},
	}
	handler := NewServer(&Dependencies{
		DB:     db,
		Config: cfg,
		Logger: zap.NewNop(),
	})
	return handler, warehouse.New(db.DB, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "tables")
}

func TestKPIsEndpoint(t *testing.T) {
	h, wh := newTestServer(t)
	_, err := wh.Append(context.Background(), "fact_sessions",
		[]string{"date", "pageviews", "sessions", "users"},
		[][]any{
			{"2024-01-01", int64(100), int64(50), int64(40)},
			{"2024-01-02", int64(200), int64(90), int64(70)},
		})
	require.NoError(t, err)

	w, body := doJSON(t, h, http.MethodGet,
		"/reports/kpis?start_date=2024-01-01&end_date=2024-01-02", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 300, body["pageviews"])
	assert.EqualValues(t, 140, body["sessions"])
	assert.EqualValues(t, 110, body["users"])
}

func TestKPIsEndpointRejectsBadDate(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodGet, "/reports/kpis?start_date=not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "start_date")
}

func TestReportsRejectNonGET(t *testing.T) {
	h, _ := newTestServer(t)
	w, _ := doJSON(t, h, http.MethodPost, "/reports/kpis", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRefreshWithoutSourceIs503(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodPost,
		"/refresh/sessions?start_date=2024-01-01&end_date=2024-01-02", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "not configured")
}

func TestRefreshRejectsGET(t *testing.T) {
	h, _ := newTestServer(t)
	w, _ := doJSON(t, h, http.MethodGet, "/refresh/sessions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRefreshAllReportsPerStepResults(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodPost,
		"/refresh/all?start_date=2024-01-01&end_date=2024-01-02", "")
	assert.Equal(t, http.StatusOK, w.Code)

	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	// Sources are unconfigured, but the run itself still reports every
	// step, and dim_date plus the materializations succeed.
	byName := make(map[string]map[string]interface{})
	for _, raw := range results {
		r := raw.(map[string]interface{})
		byName[r["source"].(string)] = r
	}
	assert.Contains(t, byName["ga4_sessions"]["error"], "not configured")
	assert.Contains(t, byName["dim_date"]["status"], "Updated dim_date")
	assert.Contains(t, byName["engagement"]["status"], "fact_engagement_daily")
}

func TestImportCampaignMap(t *testing.T) {
	h, wh := newTestServer(t)

	path := filepath.Join(t.TempDir(), "map.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("utm_source,utm_medium,utm_campaign,campaignId,campaign_name\nrd,email,jan,c1,January\n"), 0o644))

	w, body := doJSON(t, h, http.MethodPost, "/import/campaign-map",
		`{"path":`+jsonString(path)+`}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["status"], "n=1")

	var n int
	require.NoError(t, wh.DB().QueryRow("SELECT COUNT(*) FROM map_utm_campaign").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestImportRequiresPath(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodPost, "/import/pages", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "path")
}

func TestNotifyWeeklyWithoutWebhookIs503(t *testing.T) {
	h, _ := newTestServer(t)
	w, body := doJSON(t, h, http.MethodPost, "/notify/weekly", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "slack")
}

// jsonString quotes a string as a JSON value so Windows-style temp
// paths survive.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
