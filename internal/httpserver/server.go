// Package httpserver exposes the warehouse over HTTP: refresh
// triggers, CSV imports, aggregation reports and the Slack weekly
// summary.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/database"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/refresh"
	"github.com/classplay/novodash/internal/report"
	"github.com/classplay/novodash/internal/slack"
	"github.com/classplay/novodash/internal/warehouse"
)

const (
	dateLayout    = "2006-01-02"
	defaultWindow = 28 // days
	defaultLimit  = 10
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.SQLiteDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Source clients; any may be nil when unconfigured.
	GA4     refresh.GA4Reporter
	YouTube refresh.VideoReporter
	CRM     refresh.CRMFetcher
	Slack   *slack.Client
}

// Server wraps HTTP handlers over the refresh and report services.
type Server struct {
	refreshService *refresh.Service
	reportService  *report.Service
	slackClient    *slack.Client
	logger         *zap.Logger
	config         *config.Config
	metrics        *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	wh := warehouse.New(deps.DB.DB, deps.Logger)

	refreshSvc := refresh.NewService(wh, deps.GA4, deps.YouTube, deps.CRM, deps.Logger, deps.Metrics)
	reportSvc := report.NewService(wh, deps.Redis, deps.Config.Redis.TTL, deps.Logger, deps.Metrics)

	s := &Server{
		refreshService: refreshSvc,
		reportService:  reportSvc,
		slackClient:    deps.Slack,
		logger:         deps.Logger,
		config:         deps.Config,
		metrics:        deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Refresh triggers
	mux.HandleFunc("/refresh/all", s.handleRefreshAll)
	mux.HandleFunc("/refresh/sessions", s.refreshHandler(refreshSvc.RefreshSessions))
	mux.HandleFunc("/refresh/pages", s.refreshHandler(refreshSvc.RefreshPages))
	mux.HandleFunc("/refresh/events", s.refreshHandler(refreshSvc.RefreshEvents))
	mux.HandleFunc("/refresh/utm", s.refreshHandler(refreshSvc.RefreshSessionsByUTM))
	mux.HandleFunc("/refresh/countries", s.refreshHandler(refreshSvc.RefreshSessionsByCountry))
	mux.HandleFunc("/refresh/youtube/channel", s.windowHandler(refreshSvc.RefreshChannelDaily))
	mux.HandleFunc("/refresh/youtube/videos", s.windowHandler(refreshSvc.RefreshTopVideos))
	mux.HandleFunc("/refresh/rdstation/emails", s.windowHandler(refreshSvc.RefreshEmailCampaigns))
	mux.HandleFunc("/refresh/rdstation/leads", s.windowHandler(refreshSvc.RefreshLeadStages))
	mux.HandleFunc("/refresh/engagement", s.materializeHandler(refreshSvc.MaterializeEngagementDaily))
	mux.HandleFunc("/refresh/comms/daily", s.materializeHandler(refreshSvc.MaterializeCommsImpactDaily))
	mux.HandleFunc("/refresh/comms/summary", s.materializeHandler(refreshSvc.MaterializeCommsImpactSummary))

	// CSV imports
	mux.HandleFunc("/import/campaign-map", s.importHandler(refreshSvc.ImportCampaignMapCSV))
	mux.HandleFunc("/import/pages", s.importHandler(refreshSvc.ImportPagesCSV))
	mux.HandleFunc("/import/emails", s.importHandler(refreshSvc.ImportEmailCampaignsCSV))

	// Aggregation reports
	mux.HandleFunc("/reports/kpis", s.handleKPIs)
	mux.HandleFunc("/reports/pages/top", s.handleTopPages)
	mux.HandleFunc("/reports/pages/weekly", s.handlePagesWeekly)
	mux.HandleFunc("/reports/pages/pareto", s.handlePagesPareto)
	mux.HandleFunc("/reports/videos/funnel", s.handleVideoFunnel)
	mux.HandleFunc("/reports/countries", s.handleTopCountries)
	mux.HandleFunc("/reports/weekdays", s.handleTopWeekdays)
	mux.HandleFunc("/reports/comparatives/wow", s.handleWoW)
	mux.HandleFunc("/reports/comparatives/mtd", s.handleMTD)
	mux.HandleFunc("/reports/youtube/channel", s.handleChannelDaily)
	mux.HandleFunc("/reports/youtube/videos", s.handleTopVideos)
	mux.HandleFunc("/reports/youtube/retention", s.handleVideoRetention)
	mux.HandleFunc("/reports/engagement/series", s.handleEngagementSeries)
	mux.HandleFunc("/reports/engagement/kpis", s.handleEngagementKPIs)
	mux.HandleFunc("/reports/utm", s.handleUTMAggregates)
	mux.HandleFunc("/reports/comms/campaigns", s.handleCampaignSessions)
	mux.HandleFunc("/reports/comms/impact", s.handleImpactSummaries)

	// Slack
	mux.HandleFunc("/notify/weekly", s.handleNotifyWeekly)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.reportService.Health(r.Context())
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.errorResponse(w, "health check failed", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, health)
}

// ---- Refresh ----

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := s.refreshService.RunAll(r.Context(), start, end, force(r))
	s.jsonResponse(w, map[string]interface{}{
		"start_date": start,
		"end_date":   end,
		"results":    results,
	})
}

// refreshHandler adapts a windowed, force-aware refresh operation.
func (s *Server) refreshHandler(fn func(ctx context.Context, start, end string, force bool) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start, end, err := window(r)
		if err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, err := fn(r.Context(), start, end, force(r))
		if err != nil {
			s.refreshError(w, r, err)
			return
		}
		s.jsonResponse(w, map[string]string{"status": status})
	}
}

// windowHandler adapts a windowed refresh operation without a force
// flag.
func (s *Server) windowHandler(fn func(ctx context.Context, start, end string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start, end, err := window(r)
		if err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, err := fn(r.Context(), start, end)
		if err != nil {
			s.refreshError(w, r, err)
			return
		}
		s.jsonResponse(w, map[string]string{"status": status})
	}
}

// materializeHandler adapts a derived-table rebuild.
func (s *Server) materializeHandler(fn func(ctx context.Context) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status, err := fn(r.Context())
		if err != nil {
			s.refreshError(w, r, err)
			return
		}
		s.jsonResponse(w, map[string]string{"status": status})
	}
}

// importHandler adapts a CSV import. The file path comes from the
// request body so it never collides with query-string auth params.
func (s *Server) importHandler(fn func(ctx context.Context, path string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Path == "" {
			s.errorResponse(w, "path is required", http.StatusBadRequest)
			return
		}
		status, err := fn(r.Context(), req.Path)
		if err != nil {
			s.refreshError(w, r, err)
			return
		}
		s.jsonResponse(w, map[string]string{"status": status})
	}
}

func (s *Server) refreshError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, refresh.ErrSourceNotConfigured) {
		s.errorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.logger.Error("refresh failed", zap.String("path", r.URL.Path), zap.Error(err))
	s.errorResponse(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func force(r *http.Request) bool {
	f, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return f
}

// window reads start_date/end_date query params, defaulting to the
// trailing four weeks ending today.
func window(r *http.Request) (string, string, error) {
	return windowDays(r, defaultWindow)
}

func windowDays(r *http.Request, days int) (string, string, error) {
	q := r.URL.Query()
	end := q.Get("end_date")
	start := q.Get("start_date")

	if end == "" {
		end = time.Now().Format(dateLayout)
	}
	if start == "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return "", "", errInvalidDate("end_date", end)
		}
		start = t.AddDate(0, 0, -(days - 1)).Format(dateLayout)
	}

	for _, d := range []struct{ name, v string }{{"start_date", start}, {"end_date", end}} {
		if _, err := time.Parse(dateLayout, d.v); err != nil {
			return "", "", errInvalidDate(d.name, d.v)
		}
	}
	return start, end, nil
}

func errInvalidDate(name, value string) error {
	return fmt.Errorf("%s %q is not a valid YYYY-MM-DD date", name, value)
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultLimit
}
